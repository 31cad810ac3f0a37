package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

func TestJobStore_PutPendingPersistsDefaults(t *testing.T) {
	mock := &mockDynamo{}
	store := NewJobStore(mock, "ai_reply_jobs", logging.Default())

	job := &JobRecord{JobID: "job-123", OrgID: "org-1", ConversationID: "conv-1"}
	if err := store.PutPending(context.Background(), job); err != nil {
		t.Fatalf("PutPending returned error: %v", err)
	}
	if mock.putInput == nil {
		t.Fatalf("expected PutItem to be called")
	}

	var stored JobRecord
	if err := attributevalue.UnmarshalMap(mock.putInput.Item, &stored); err != nil {
		t.Fatalf("failed to unmarshal stored job: %v", err)
	}
	if stored.Status != JobStatusPending {
		t.Fatalf("expected status pending, got %s", stored.Status)
	}
	if stored.CreatedAt == "" || stored.UpdatedAt == "" {
		t.Fatal("expected timestamps to be populated")
	}
	if stored.ExpiresAt <= time.Now().Unix() {
		t.Fatal("expected TTL to be in the future")
	}
	if expr := mock.putInput.ConditionExpression; expr == nil || *expr != "attribute_not_exists(jobId)" {
		t.Fatalf("expected condition expression to prevent overwrites, got %v", expr)
	}
}

func TestJobStore_PutPendingNilJob(t *testing.T) {
	store := NewJobStore(&mockDynamo{}, "ai_reply_jobs", logging.Default())
	if err := store.PutPending(context.Background(), nil); err == nil {
		t.Fatal("expected error when job is nil")
	}
}

func TestJobStore_MarkFinishedUsesReservedAttributeNames(t *testing.T) {
	mock := &mockDynamo{}
	store := NewJobStore(mock, "ai_reply_jobs", logging.Default())

	if err := store.MarkFinished(context.Background(), "job-123", JobStatusSkipped, "settings", "", "ai disabled"); err != nil {
		t.Fatalf("MarkFinished returned error: %v", err)
	}
	if len(mock.updateInputs) != 1 {
		t.Fatalf("expected 1 update call, got %d", len(mock.updateInputs))
	}

	update := mock.updateInputs[0]
	names := update.ExpressionAttributeNames
	if names["#status"] != "status" || names["#error"] != "errorMessage" {
		t.Fatalf("expected reserved attribute names to be aliased, got %v", names)
	}
	values := update.ExpressionAttributeValues
	if status := values[":status"].(*types.AttributeValueMemberS).Value; status != string(JobStatusSkipped) {
		t.Fatalf("expected skipped status, got %s", status)
	}
	if stage := values[":stage"].(*types.AttributeValueMemberS).Value; stage != "settings" {
		t.Fatalf("expected settings stage, got %s", stage)
	}
}

func TestJobStore_MarkFinishedPropagatesError(t *testing.T) {
	mock := &mockDynamo{updateErr: errors.New("dynamo failed")}
	store := NewJobStore(mock, "ai_reply_jobs", logging.Default())

	err := store.MarkFinished(context.Background(), "job-1", JobStatusCompleted, "persist", "msg-1", "")
	if err == nil || !strings.Contains(err.Error(), "dynamo failed") {
		t.Fatalf("expected dynamo error, got %v", err)
	}
}

func TestJobStore_GetJob(t *testing.T) {
	mock := &mockDynamo{
		getOutput: &dynamodb.GetItemOutput{
			Item: map[string]types.AttributeValue{
				"jobId":  &types.AttributeValueMemberS{Value: "job-42"},
				"status": &types.AttributeValueMemberS{Value: string(JobStatusCompleted)},
			},
		},
	}
	store := NewJobStore(mock, "ai_reply_jobs", logging.Default())

	job, err := store.GetJob(context.Background(), "job-42")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if job.JobID != "job-42" || job.Status != JobStatusCompleted {
		t.Fatalf("unexpected job result: %#v", job)
	}

	empty := NewJobStore(&mockDynamo{getOutput: &dynamodb.GetItemOutput{}}, "ai_reply_jobs", logging.Default())
	if _, err := empty.GetJob(context.Background(), "job-42"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if _, err := empty.GetJob(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty jobID")
	}
}

func TestMemoryJobStoreLifecycle(t *testing.T) {
	store := NewMemoryJobStore()
	ctx := context.Background()
	if err := store.PutPending(ctx, &JobRecord{JobID: "j1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.PutPending(ctx, &JobRecord{JobID: "j1"}); err == nil {
		t.Fatal("expected duplicate job to be rejected")
	}
	if err := store.MarkFinished(ctx, "j1", JobStatusCompleted, "persist", "msg-9", ""); err != nil {
		t.Fatalf("mark: %v", err)
	}
	job, err := store.GetJob(ctx, "j1")
	if err != nil || job.Status != JobStatusCompleted || job.ReplyMessageID != "msg-9" {
		t.Fatalf("unexpected job %+v err %v", job, err)
	}
	if err := store.MarkFinished(ctx, "missing", JobStatusFailed, "", "", ""); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

type mockDynamo struct {
	putInput     *dynamodb.PutItemInput
	putErr       error
	updateInputs []*dynamodb.UpdateItemInput
	updateErr    error
	getOutput    *dynamodb.GetItemOutput
	getErr       error
}

func (m *mockDynamo) PutItem(ctx context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = input
	return &dynamodb.PutItemOutput{}, m.putErr
}

func (m *mockDynamo) UpdateItem(ctx context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.updateInputs = append(m.updateInputs, input)
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, input *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.getOutput == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return m.getOutput, nil
}
