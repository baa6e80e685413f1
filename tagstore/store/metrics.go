package store

import (
	"sync"
	"time"
)

// Metrics tracks per-operation outcomes for a store
type Metrics struct {
	TotalOperations int64
	SuccessfulOps   int64
	FailedOps       int64
	SkippedFiles    int64
	OperationCounts map[string]int64
	LastOperation   time.Time
	mu              sync.RWMutex
}

func newMetrics() *Metrics {
	return &Metrics{OperationCounts: make(map[string]int64)}
}

// record updates counters for one finished operation
func (m *Metrics) record(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalOperations++
	m.OperationCounts[op]++
	if err == nil {
		m.SuccessfulOps++
	} else {
		m.FailedOps++
	}
	m.LastOperation = time.Now()
}

func (m *Metrics) skipped(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SkippedFiles += int64(n)
}

// GetMetrics returns the counters as a map
func (m *Metrics) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ops := make(map[string]int64, len(m.OperationCounts))
	for k, v := range m.OperationCounts {
		ops[k] = v
	}
	return map[string]interface{}{
		"total_operations": m.TotalOperations,
		"successful_ops":   m.SuccessfulOps,
		"failed_ops":       m.FailedOps,
		"skipped_files":    m.SkippedFiles,
		"operation_counts": ops,
		"last_operation":   m.LastOperation,
	}
}
