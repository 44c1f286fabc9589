package gpu

import (
	"errors"
	"fmt"
	"sync"
)

// Memory management errors.
var (
	// ErrMemoryBudgetExceeded is returned when an allocation would exceed the budget.
	ErrMemoryBudgetExceeded = errors.New("gpu: memory budget exceeded")

	// ErrMemoryManagerClosed is returned when allocating from a closed manager.
	ErrMemoryManagerClosed = errors.New("gpu: memory manager closed")
)

// Default memory limits.
const (
	// DefaultMaxMemoryMB is the default GPU memory budget (512 MB).
	DefaultMaxMemoryMB = 512

	// MinMemoryMB is the minimum allowed memory budget (16 MB).
	MinMemoryMB = 16
)

// MemoryStats contains GPU memory usage statistics.
type MemoryStats struct {
	// TotalBytes is the memory budget in bytes.
	TotalBytes uint64

	// UsedBytes is the currently allocated memory in bytes.
	UsedBytes uint64

	// Allocations is the number of live allocations.
	Allocations int

	// Peak is the highest UsedBytes seen.
	Peak uint64
}

// String returns a human-readable string of memory stats.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Memory[%d/%d MB, %d allocations, peak %d MB]",
		s.UsedBytes/(1024*1024),
		s.TotalBytes/(1024*1024),
		s.Allocations,
		s.Peak/(1024*1024))
}

// MemoryManager accounts for the textures the pipeline allocates. Pipeline
// textures are pinned for as long as their owner lives, so an allocation
// that does not fit is refused rather than evicting anything.
//
// A nil *MemoryManager accepts every allocation.
type MemoryManager struct {
	mu sync.Mutex

	budgetBytes uint64
	usedBytes   uint64
	peakBytes   uint64
	live        map[string]uint64
	closed      bool
}

// NewMemoryManager creates a manager with the given budget in megabytes.
// Values below MinMemoryMB select DefaultMaxMemoryMB.
func NewMemoryManager(maxMB int) *MemoryManager {
	if maxMB < MinMemoryMB {
		maxMB = DefaultMaxMemoryMB
	}
	return &MemoryManager{
		budgetBytes: uint64(maxMB) * 1024 * 1024, //nolint:gosec // bounded by MinMemoryMB
		live:        make(map[string]uint64),
	}
}

// reserve records an allocation of size bytes under label.
func (m *MemoryManager) reserve(label string, size uint64) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrMemoryManagerClosed
	}
	if m.usedBytes+size > m.budgetBytes {
		return fmt.Errorf("%w: %s needs %d bytes, %d available",
			ErrMemoryBudgetExceeded, label, size, m.budgetBytes-m.usedBytes)
	}
	m.live[label] += size
	m.usedBytes += size
	m.peakBytes = max(m.peakBytes, m.usedBytes)
	return nil
}

// release returns an allocation made with reserve.
func (m *MemoryManager) release(label string, size uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	have, ok := m.live[label]
	if !ok {
		return
	}
	size = min(size, have)
	if have == size {
		delete(m.live, label)
	} else {
		m.live[label] = have - size
	}
	m.usedBytes -= size
}

// Stats returns current memory usage statistics.
func (m *MemoryManager) Stats() MemoryStats {
	if m == nil {
		return MemoryStats{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MemoryStats{
		TotalBytes:  m.budgetBytes,
		UsedBytes:   m.usedBytes,
		Allocations: len(m.live),
		Peak:        m.peakBytes,
	}
}

// Close refuses further allocations.
func (m *MemoryManager) Close() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}
