package validationsvc

import (
	"testing"

	"github.com/meridian-chain/meridian-node/internal/types"
)

func TestTaskQueueEvictsLowestPriorityWhenFull(t *testing.T) {
	q := NewTaskQueue(2)
	if !q.Push(NewTask(TaskHealthCheck, types.PriorityLow)) {
		t.Fatal("expected push into empty slot to succeed")
	}
	if !q.Push(NewTask(TaskHealthCheck, types.PriorityNormal)) {
		t.Fatal("expected push into empty slot to succeed")
	}

	// Queue full at [Normal, Low]; a Low push should be rejected (does not
	// strictly exceed the lowest resident).
	if q.Push(NewTask(TaskHealthCheck, types.PriorityLow)) {
		t.Fatal("expected a non-exceeding push to be rejected")
	}
	if q.Len() != 2 {
		t.Fatalf("expected queue to remain at 2, got %d", q.Len())
	}

	// A High push should evict the Low resident.
	if !q.Push(NewTask(TaskHealthCheck, types.PriorityHigh)) {
		t.Fatal("expected a strictly-higher push to evict the lowest resident")
	}
	if q.Len() != 2 {
		t.Fatalf("expected queue to remain at capacity 2, got %d", q.Len())
	}

	first, ok := q.Pop()
	if !ok || first.Priority != types.PriorityHigh {
		t.Fatalf("expected highest priority popped first, got %+v", first)
	}
	second, ok := q.Pop()
	if !ok || second.Priority != types.PriorityNormal {
		t.Fatalf("expected Normal popped second, got %+v", second)
	}
}

func TestTaskQueueClear(t *testing.T) {
	q := NewTaskQueue(4)
	q.Push(NewTask(TaskHealthCheck, types.PriorityLow))
	q.Push(NewTask(TaskHealthCheck, types.PriorityNormal))
	q.Clear()
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after Clear, got %d", q.Len())
	}
}
