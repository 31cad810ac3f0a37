package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

const jobTTL = 24 * time.Hour

// JobStatus represents the lifecycle of a reply job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusSkipped   JobStatus = "skipped"
	JobStatusFailed    JobStatus = "failed"
)

// ErrJobNotFound indicates the requested job ID does not exist.
var ErrJobNotFound = errors.New("ai: job not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// JobRecord captures the persisted state of a reply job.
type JobRecord struct {
	JobID            string    `dynamodbav:"jobId" json:"jobId"`
	OrgID            string    `dynamodbav:"orgId" json:"orgId"`
	ConversationID   string    `dynamodbav:"conversationId" json:"conversationId"`
	InboundMessageID string    `dynamodbav:"inboundMessageId" json:"inboundMessageId"`
	Status           JobStatus `dynamodbav:"status" json:"status"`
	Stage            string    `dynamodbav:"stage,omitempty" json:"stage,omitempty"`
	ReplyMessageID   string    `dynamodbav:"replyMessageId,omitempty" json:"replyMessageId,omitempty"`
	ErrorMessage     string    `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt        string    `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt        string    `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt        int64     `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// JobRecorder stores pending jobs.
type JobRecorder interface {
	PutPending(ctx context.Context, job *JobRecord) error
}

// JobUpdater records terminal job states.
type JobUpdater interface {
	MarkFinished(ctx context.Context, jobID string, status JobStatus, stage, replyMessageID, errMsg string) error
}

// JobStore persists job records to DynamoDB.
type JobStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ JobRecorder = (*JobStore)(nil)
var _ JobUpdater = (*JobStore)(nil)

// NewJobStore builds a store backed by the provided DynamoDB client.
func NewJobStore(client dynamoAPI, tableName string, logger *logging.Logger) *JobStore {
	if client == nil {
		panic("ai: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("ai: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &JobStore{client: client, tableName: tableName, logger: logger}
}

// PutPending inserts a new pending job record.
func (s *JobStore) PutPending(ctx context.Context, job *JobRecord) error {
	if job == nil {
		return errors.New("ai: job cannot be nil")
	}
	now := time.Now().UTC()
	job.Status = JobStatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("ai: failed to marshal job: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("ai: failed to persist job: %w", err)
	}
	return nil
}

// MarkFinished moves a job to a terminal status.
func (s *JobStore) MarkFinished(ctx context.Context, jobID string, status JobStatus, stage, replyMessageID, errMsg string) error {
	if jobID == "" {
		return errors.New("ai: jobID required")
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression: aws.String("SET #status = :status, #stage = :stage, replyMessageId = :reply, #error = :error, #updated = :updated"),
		ExpressionAttributeNames: map[string]string{
			"#status":  "status",
			"#stage":   "stage",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(status)},
			":stage":   &types.AttributeValueMemberS{Value: stage},
			":reply":   &types.AttributeValueMemberS{Value: replyMessageID},
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("ai: failed to update job %s: %w", jobID, err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, errors.New("ai: jobID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ai: failed to fetch job: %w", err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}
	var job JobRecord
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("ai: failed to decode job: %w", err)
	}
	return &job, nil
}

// MemoryJobStore tracks jobs in process.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]JobRecord
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]JobRecord)}
}

func (s *MemoryJobStore) PutPending(_ context.Context, job *JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.JobID]; exists {
		return fmt.Errorf("ai: job %s already exists", job.JobID)
	}
	job.Status = JobStatusPending
	s.jobs[job.JobID] = *job
	return nil
}

func (s *MemoryJobStore) MarkFinished(_ context.Context, jobID string, status JobStatus, stage, replyMessageID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status, job.Stage, job.ReplyMessageID, job.ErrorMessage = status, stage, replyMessageID, errMsg
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryJobStore) GetJob(_ context.Context, jobID string) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &job, nil
}
