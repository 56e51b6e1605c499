package validationsvc

import (
	"errors"
	"testing"
	"time"

	"github.com/meridian-chain/meridian-node/internal/config"
	"github.com/meridian-chain/meridian-node/internal/core"
	"github.com/meridian-chain/meridian-node/internal/types"
)

func testConfig() config.ValidationServiceConfig {
	return config.ValidationServiceConfig{
		MaxCPUUsage:           90, // small throttle sleep so the test runs fast
		MaxMemoryUsage:        80,
		QueueSizeLimit:        16,
		ProcessingTimeSlotMs:  5,
		BatchSize:             8,
		HealthCheckIntervalMs: 5,
		MaxRecoveryAttempts:   2,
	}
}

func TestCPUCapSleepFormula(t *testing.T) {
	slot := 100 * time.Millisecond
	got := cpuCapSleep(slot, 75)
	want := time.Duration(float64(slot) * (25.0 / 75.0))
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
	if cpuCapSleep(slot, 100) != 0 {
		t.Fatal("expected zero sleep at max_cpu_usage=100")
	}
}

func TestServiceProcessesSubmittedTasks(t *testing.T) {
	var processed []Task
	done := make(chan struct{}, 1)
	handler := func(t Task) error {
		processed = append(processed, t)
		if len(processed) == 1 {
			done <- struct{}{}
		}
		return nil
	}

	s := NewService(testConfig(), handler, nil, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	tx := &core.Transaction{}
	task := NewTask(TaskProcessTransactions, types.PriorityNormal)
	task.Transactions = []*core.Transaction{tx}
	if !s.Submit(task) {
		t.Fatal("expected Submit to succeed")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task to be processed")
	}

	stats := s.Statistics()
	if stats.TransactionsProcessed != 1 {
		t.Fatalf("expected 1 transaction processed, got %d", stats.TransactionsProcessed)
	}
}

func TestServiceHandlerErrorsRecordedInStats(t *testing.T) {
	handlerErr := errors.New("boom")
	done := make(chan struct{}, 1)
	handler := func(t Task) error {
		done <- struct{}{}
		return handlerErr
	}

	s := NewService(testConfig(), handler, nil, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	s.Submit(NewTask(TaskCustom, types.PriorityLow))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task handling")
	}
	time.Sleep(20 * time.Millisecond) // let runTask finish recording stats

	stats := s.Statistics()
	if stats.ValidationErrors == 0 {
		t.Fatal("expected at least one recorded validation error")
	}
	if stats.LastError != handlerErr.Error() {
		t.Fatalf("expected LastError %q, got %q", handlerErr.Error(), stats.LastError)
	}
}

func TestServiceStartStopLifecycle(t *testing.T) {
	s := NewService(testConfig(), nil, nil, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Fatal("expected a second Start to fail")
	}
	if s.State() != StateRunning {
		t.Fatalf("expected Running, got %v", s.State())
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.State() != StateStopped {
		t.Fatalf("expected Stopped, got %v", s.State())
	}
	if err := s.Stop(); err == nil {
		t.Fatal("expected a second Stop to fail")
	}
}

func TestServiceRecoversFromStuckQueue(t *testing.T) {
	// BatchSize=0: tasks never drain, so the queue length stays non-zero and
	// unchanged across health checks, triggering the stuck-queue recovery path.
	cfg := testConfig()
	cfg.BatchSize = 0 // scheduler never drains the queue
	s := NewService(cfg, func(Task) error { return nil }, nil, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	s.Submit(NewTask(TaskCustom, types.PriorityLow))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == StateFailed {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	// With MaxRecoveryAttempts=2 and a queue that never stops looking stuck
	// (BatchSize=0 means nothing ever drains), recovery eventually exhausts
	// its attempts and the service transitions to Failed.
	if s.State() != StateFailed {
		t.Fatalf("expected service to reach Failed after exhausting recovery attempts, got %v", s.State())
	}
}
