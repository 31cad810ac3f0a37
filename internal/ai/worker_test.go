package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type stubHandler struct {
	mu       sync.Mutex
	jobs     []Job
	outcomes map[string]Outcome
	errs     map[string]error
}

func (h *stubHandler) HandleAIReply(_ context.Context, job Job) (Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs = append(h.jobs, job)
	out, ok := h.outcomes[job.ID]
	if !ok {
		out = Outcome{Status: JobStatusCompleted, Stage: StagePersist}
	}
	return out, h.errs[job.ID]
}

func (h *stubHandler) handled() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.jobs)
}

type recordingQueue struct {
	*MemoryQueue
	mu      sync.Mutex
	deleted []string
}

func (q *recordingQueue) Delete(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, receipt)
	return nil
}

func (q *recordingQueue) deletedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.deleted)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWorkerProcessesJobsAndReportsFailures(t *testing.T) {
	queue := &recordingQueue{MemoryQueue: NewMemoryQueue(8)}
	jobs := NewMemoryJobStore()
	handler := &stubHandler{
		outcomes: map[string]Outcome{
			"job-fail": {Status: JobStatusFailed, Stage: StageGenerate},
			"job-skip": {Status: JobStatusSkipped, Stage: StageSettings, Reason: "ai disabled for organization"},
		},
		errs: map[string]error{"job-fail": ErrProviderRateLimited},
	}
	pub := NewPublisher(queue, jobs, nil)
	ctx := context.Background()
	for _, id := range []string{"job-ok", "job-fail", "job-skip"} {
		if _, err := pub.Enqueue(ctx, Job{ID: id, OrgID: "org-1", ConversationID: "conv-1"}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	if err := queue.Send(ctx, "not json"); err != nil {
		t.Fatalf("send: %v", err)
	}

	worker := NewWorker(handler, queue, nil, WithWorkerCount(2), WithReceiveWaitSeconds(1), WithJobUpdater(jobs))
	runCtx, cancel := context.WithCancel(ctx)
	worker.Start(runCtx)

	select {
	case failure := <-worker.Failures():
		if failure.Job.ID != "job-fail" || failure.Stage != StageGenerate || !errors.Is(failure.Err, ErrProviderRateLimited) {
			t.Fatalf("unexpected failure %+v", failure)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a failure report")
	}

	waitFor(t, func() bool { return handler.handled() == 3 && queue.deletedCount() == 4 })
	cancel()
	worker.Wait()

	cases := map[string]JobStatus{"job-ok": JobStatusCompleted, "job-fail": JobStatusFailed, "job-skip": JobStatusSkipped}
	for id, want := range cases {
		rec, err := jobs.GetJob(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if rec.Status != want {
			t.Fatalf("job %s: expected %s, got %s", id, want, rec.Status)
		}
	}
	skip, _ := jobs.GetJob(ctx, "job-skip")
	if skip.ErrorMessage != "ai disabled for organization" {
		t.Fatalf("expected skip reason recorded, got %q", skip.ErrorMessage)
	}
}

func TestWorkerDropsFailuresWhenChannelFull(t *testing.T) {
	handler := &stubHandler{errs: map[string]error{"a": errors.New("x"), "b": errors.New("y")}}
	worker := NewWorker(handler, NewMemoryQueue(1), nil, WithFailureBuffer(1))

	worker.handleMessage(context.Background(), QueueMessage{Body: `{"id":"a"}`})
	worker.handleMessage(context.Background(), QueueMessage{Body: `{"id":"b"}`})

	if got := len(worker.Failures()); got != 1 {
		t.Fatalf("expected one buffered failure, got %d", got)
	}
	if f := <-worker.Failures(); f.Job.ID != "a" {
		t.Fatalf("expected first failure kept, got %s", f.Job.ID)
	}
}

func TestWorkerStopsOnCancel(t *testing.T) {
	worker := NewWorker(&stubHandler{}, NewMemoryQueue(1), nil, WithWorkerCount(3), WithReceiveWaitSeconds(5))
	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not stop after cancel")
	}
}
