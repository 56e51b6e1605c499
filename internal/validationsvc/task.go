package validationsvc

import (
	"github.com/google/uuid"

	"github.com/meridian-chain/meridian-node/internal/core"
	"github.com/meridian-chain/meridian-node/internal/types"
)

// TaskType enumerates the background validation service's task kinds, per
// spec.md §4.7.
type TaskType uint8

const (
	TaskProcessTransactions TaskType = iota
	TaskValidateBlock
	TaskGenerateBlock
	TaskHealthCheck
	TaskUpdateValidators
	TaskCustom
)

// Task is a unit of work on the validation service's queue. Only the fields
// relevant to its Type are populated; Id is assigned at construction for log
// correlation, per SPEC_FULL.md §4.7.
type Task struct {
	ID       string
	Type     TaskType
	Priority types.Priority

	Transactions []*core.Transaction // TaskProcessTransactions
	Block        *core.Block         // TaskValidateBlock
	CustomName   string              // TaskCustom
	CustomBytes  []byte              // TaskCustom
}

// NewTask constructs a Task with a fresh uuid identifier.
func NewTask(t TaskType, priority types.Priority) Task {
	return Task{ID: uuid.NewString(), Type: t, Priority: priority}
}
