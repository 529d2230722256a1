package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
)

type testSchedulerConfig struct {
	redisURL string
}

func (c testSchedulerConfig) GetRedisURL() string       { return c.redisURL }
func (c testSchedulerConfig) GetRedisTLSInsecure() bool { return false }
func (c testSchedulerConfig) GetAsynqQueueName() string { return "engine" }
func (c testSchedulerConfig) GetAsynqConcurrency() int  { return 1 }

func TestScheduleRunResumeEnqueues(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := NewClient(testSchedulerConfig{redisURL: "redis://" + srv.Addr()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer func() { _ = client.Close() }()

	runAt := time.Now().Add(30 * time.Minute)
	if err := client.ScheduleRunResume(context.Background(), uuid.New(), uuid.New(), runAt); err != nil {
		t.Fatalf("ScheduleRunResume: %v", err)
	}

	if len(srv.Keys()) == 0 {
		t.Fatal("no task landed in redis")
	}
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(testSchedulerConfig{}); err == nil {
		t.Fatal("NewClient accepted an empty redis url")
	}
}

func TestNilClientHintIsNoop(t *testing.T) {
	var client *Client
	if err := client.ScheduleRunResume(context.Background(), uuid.New(), uuid.New(), time.Now()); err != nil {
		t.Fatalf("nil client hint returned %v", err)
	}
}

func TestWorkflowRunDuePayloadRoundTrip(t *testing.T) {
	task, err := NewWorkflowRunDueTask(WorkflowRunDuePayload{RunID: "r1", TenantID: "t1"})
	if err != nil {
		t.Fatalf("NewWorkflowRunDueTask: %v", err)
	}
	payload, err := ParseWorkflowRunDuePayload(task)
	if err != nil {
		t.Fatalf("ParseWorkflowRunDuePayload: %v", err)
	}
	if payload.RunID != "r1" || payload.TenantID != "t1" {
		t.Fatalf("payload = %+v", payload)
	}
}
