// Package validationsvc implements the C7 background validation service of
// spec.md §4.7: a single daemon draining a bounded, priority-ordered task
// queue on a CPU-capped schedule, with a health monitor and a bounded
// recovery path.
package validationsvc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meridian-chain/meridian-node/internal/config"
	"github.com/meridian-chain/meridian-node/internal/merrors"
	"github.com/meridian-chain/meridian-node/internal/types"
)

// State is the service's lifecycle state machine of spec.md §4.7.
type State uint8

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StatePaused
	StateRecovering
	StateFailed
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateRecovering:
		return "Recovering"
	case StateFailed:
		return "Failed"
	case StateShuttingDown:
		return "ShuttingDown"
	default:
		return "Unknown"
	}
}

// Handler processes one Task. Implementations live in the owning subsystems
// (mempool, consensus, network) and are wired in by the daemon at startup.
type Handler func(Task) error

// Stats are the service's atomically-readable counters, per spec.md §4.7.
type Stats struct {
	TransactionsProcessed uint64
	BlocksValidated       uint64
	BlocksGenerated       uint64
	ValidationErrors      uint64
	QueueLength           int
	AvgTransactionTimeMs  float64
	UptimeSeconds         float64
	CPUUsage              float64
	MemoryUsage           float64
	LastError             string
}

// Service is the background validation daemon.
type Service struct {
	cfg     config.ValidationServiceConfig
	queue   *TaskQueue
	log     *logrus.Entry
	handler Handler

	running int32 // atomic bool: 1 while the scheduler/health-monitor goroutines should keep running
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu              sync.RWMutex
	state           State
	startedAt       time.Time
	recoveryAttempts int
	unchangedChecks  int
	lastQueueLen     int

	statsMu sync.RWMutex
	stats   Stats

	totalTxTimeMs   float64
	processedTxSamples uint64

	now func() time.Time
}

// NewService constructs a Service in the Stopped state.
func NewService(cfg config.ValidationServiceConfig, handler Handler, log *logrus.Entry, nowFn func() time.Time) *Service {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Service{
		cfg:     cfg,
		queue:   NewTaskQueue(cfg.QueueSizeLimit),
		log:     log,
		handler: handler,
		state:   StateStopped,
		now:     nowFn,
	}
}

// State reports the service's current lifecycle state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Service) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Submit enqueues t, applying the bounded-queue eviction rule of spec.md
// §4.7.
func (s *Service) Submit(t Task) bool {
	ok := s.queue.Push(t)
	s.statsMu.Lock()
	s.stats.QueueLength = s.queue.Len()
	s.statsMu.Unlock()
	return ok
}

// Start transitions Stopped -> Starting -> Running and launches the
// scheduler and health-monitor goroutines. Calling Start while already
// running is a no-op error, per spec.md §5's idempotent-stop/no-double-start
// cancellation model.
func (s *Service) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return merrors.New(merrors.Other, "validation service already running")
	}
	s.setState(StateStarting)
	s.stopCh = make(chan struct{})
	s.mu.Lock()
	s.startedAt = s.now()
	s.mu.Unlock()
	s.setState(StateRunning)

	s.wg.Add(2)
	go s.schedulerLoop()
	go s.healthMonitorLoop()
	return nil
}

// Stop signals both goroutines to exit at their next loop boundary and waits
// for them. A second call returns a "not running" error, per spec.md §5.
func (s *Service) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return merrors.New(merrors.Other, "validation service is not running")
	}
	s.setState(StateShuttingDown)
	close(s.stopCh)
	s.wg.Wait()
	s.setState(StateStopped)
	return nil
}

// schedulerLoop wakes every processing_time_slot_ms, drains up to batch_size
// tasks, then sleeps slot x (100-max_cpu_usage)/max_cpu_usage, per spec.md
// §4.7.
func (s *Service) schedulerLoop() {
	defer s.wg.Done()
	slot := time.Duration(s.cfg.ProcessingTimeSlotMs) * time.Millisecond
	if slot <= 0 {
		slot = 100 * time.Millisecond
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-time.After(slot):
		}

		if s.State() != StateRunning {
			continue
		}

		s.processBatch()

		sleepFor := cpuCapSleep(slot, s.cfg.MaxCPUUsage)
		if sleepFor > 0 {
			select {
			case <-s.stopCh:
				return
			case <-time.After(sleepFor):
			}
		}
	}
}

// cpuCapSleep computes slot x (100-maxCPUUsage)/maxCPUUsage, the CPU-cap
// throttle of spec.md §4.7.
func cpuCapSleep(slot time.Duration, maxCPUUsage float64) time.Duration {
	if maxCPUUsage <= 0 || maxCPUUsage >= 100 {
		return 0
	}
	factor := (100 - maxCPUUsage) / maxCPUUsage
	return time.Duration(float64(slot) * factor)
}

func (s *Service) processBatch() {
	processed := 0
	for processed < s.cfg.BatchSize {
		t, ok := s.queue.Pop()
		if !ok {
			break
		}
		processed++
		s.runTask(t)
	}
	s.statsMu.Lock()
	s.stats.QueueLength = s.queue.Len()
	s.statsMu.Unlock()
}

func (s *Service) runTask(t Task) {
	start := s.now()
	var err error
	if s.handler != nil {
		err = s.handler(t)
	}
	elapsedMs := float64(s.now().Sub(start).Microseconds()) / 1000.0

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if err != nil {
		s.stats.ValidationErrors++
		s.stats.LastError = err.Error()
		if s.log != nil {
			s.log.WithField("task_id", t.ID).WithError(err).Warn("task failed")
		}
	}
	switch t.Type {
	case TaskProcessTransactions:
		s.stats.TransactionsProcessed += uint64(len(t.Transactions))
		s.totalTxTimeMs += elapsedMs
		s.processedTxSamples++
		if s.processedTxSamples > 0 {
			s.stats.AvgTransactionTimeMs = s.totalTxTimeMs / float64(s.processedTxSamples)
		}
	case TaskValidateBlock:
		if err == nil {
			s.stats.BlocksValidated++
		}
	case TaskGenerateBlock:
		if err == nil {
			s.stats.BlocksGenerated++
		}
	}
}

// healthMonitorLoop runs every health_check_interval_ms and enforces spec.md
// §4.7's stuck-queue detection and recovery escalation.
func (s *Service) healthMonitorLoop() {
	defer s.wg.Done()
	interval := time.Duration(s.cfg.HealthCheckIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-time.After(interval):
		}
		s.checkHealth()
	}
}

func (s *Service) checkHealth() {
	if s.State() != StateRunning {
		return
	}

	qlen := s.queue.Len()
	capacity := s.queue.Capacity()
	stuck := false

	s.mu.Lock()
	if qlen > 0 && qlen == s.lastQueueLen {
		s.unchangedChecks++
	} else {
		s.unchangedChecks = 0
	}
	s.lastQueueLen = qlen
	if s.unchangedChecks >= 3 {
		stuck = true
	}
	s.mu.Unlock()

	overHalf := capacity > 0 && float64(qlen) > 0.5*float64(capacity)

	if overHalf || stuck {
		s.Submit(NewTask(TaskHealthCheck, types.PriorityCritical))
		if s.log != nil {
			s.log.WithField("queue_len", qlen).Warn("validation service queue health degraded")
		}
	}

	if stuck {
		s.recover()
	}
}

// recover implements spec.md §4.7's recovery path: clear the queue, enqueue
// a Critical HealthCheck, resume Running; after max_recovery_attempts failed
// recoveries, transition to Failed.
func (s *Service) recover() {
	s.setState(StateRecovering)

	s.mu.Lock()
	s.recoveryAttempts++
	attempts := s.recoveryAttempts
	s.mu.Unlock()

	if attempts > s.cfg.MaxRecoveryAttempts {
		s.setState(StateFailed)
		if s.log != nil {
			s.log.Error("validation service exhausted recovery attempts, transitioning to Failed")
		}
		return
	}

	s.queue.Clear()
	s.queue.Push(NewTask(TaskHealthCheck, types.PriorityCritical))

	s.mu.Lock()
	s.unchangedChecks = 0
	s.mu.Unlock()

	s.setState(StateRunning)
}

// Pause transitions Running -> Paused; Resume transitions back.
func (s *Service) Pause() {
	s.setState(StatePaused)
}

func (s *Service) Resume() {
	s.setState(StateRunning)
}

// Statistics returns a snapshot of the service's counters, computing uptime
// and queue length fresh, per spec.md §4.7's "readable atomically" wording.
func (s *Service) Statistics() Stats {
	s.statsMu.RLock()
	snapshot := s.stats
	s.statsMu.RUnlock()

	s.mu.RLock()
	started := s.startedAt
	s.mu.RUnlock()

	if !started.IsZero() {
		snapshot.UptimeSeconds = s.now().Sub(started).Seconds()
	}
	snapshot.QueueLength = s.queue.Len()
	return snapshot
}
