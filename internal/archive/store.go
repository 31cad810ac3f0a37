package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

const rawEventVersion = "1.0"

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store archives raw inbound payloads to S3 for replay and debugging.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
	now      func() time.Time
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		bucket:   bucket,
		s3Client: s3Client,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Enabled returns true if archival is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveRaw writes the payload under
// raw/v1/<channel>/<org>/YYYY/MM/DD/<id>.json and returns the key.
// Payloads that are not valid JSON are stored as a JSON string.
func (s *Store) ArchiveRaw(ctx context.Context, orgID, channel string, payload []byte) (string, error) {
	if !s.Enabled() {
		return "", nil
	}

	body := json.RawMessage(payload)
	if !json.Valid(payload) {
		quoted, err := json.Marshal(string(payload))
		if err != nil {
			return "", fmt.Errorf("archive: quote payload: %w", err)
		}
		body = quoted
	}

	now := s.now()
	event := RawEvent{
		Version:    rawEventVersion,
		ID:         uuid.NewString(),
		OrgID:      orgID,
		Channel:    channel,
		ReceivedAt: now,
		Payload:    body,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("archive: marshal raw event: %w", err)
	}

	key := fmt.Sprintf("raw/v1/%s/%s/%d/%02d/%02d/%s.json",
		channel, orgID, now.Year(), now.Month(), now.Day(), event.ID)

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put %s: %w", key, err)
	}

	s.logger.Debug("archived raw inbound event", "org_id", orgID, "channel", channel, "s3_key", key)
	return key, nil
}
