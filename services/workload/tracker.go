package workload

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/upb/llm-scheduler/models"
)

// Snapshot is a point-in-time view of one backend's committed load
type Snapshot struct {
	Load     int
	Capacity int
}

// Remaining returns the free capacity in the snapshot
func (s Snapshot) Remaining() int {
	return s.Capacity - s.Load
}

// backendLoad serializes reserve/release for a single backend.
// Reservations are single-backend operations, so no lock ordering
// across backends is needed.
type backendLoad struct {
	mu       sync.Mutex
	load     int
	capacity int
}

// Tracker is the shared record of each backend's committed load and
// capacity ceiling. Load changes only via explicit Reserve and
// Release; it never decays by time. The tracker is passed explicitly
// to the orchestrator; there is no process-wide instance.
type Tracker struct {
	mu       sync.RWMutex
	backends map[string]*backendLoad
	logger   *zap.Logger
}

// NewTracker creates a workload tracker
func NewTracker(logger *zap.Logger) *Tracker {
	return &Tracker{
		backends: make(map[string]*backendLoad),
		logger:   logger,
	}
}

// Register adds a backend with its capacity ceiling. Registering an
// existing backend updates the ceiling but preserves committed load.
func (t *Tracker) Register(backendID string, capacity int) error {
	if capacity <= 0 {
		return fmt.Errorf("capacity for backend %q must be positive, got %d", backendID, capacity)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.backends[backendID]; ok {
		existing.mu.Lock()
		existing.capacity = capacity
		existing.mu.Unlock()
		return nil
	}
	t.backends[backendID] = &backendLoad{capacity: capacity}
	return nil
}

// Reserve commits load against a backend. Fails with
// ErrCapacityExceeded when the reservation would push committed load
// past the capacity ceiling, leaving the load unchanged.
func (t *Tracker) Reserve(backendID string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("reserve amount must not be negative, got %d", amount)
	}

	b, err := t.lookup(backendID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.load+amount > b.capacity {
		return fmt.Errorf("%w: backend %q at %d/%d, requested %d",
			models.ErrCapacityExceeded, backendID, b.load, b.capacity, amount)
	}
	b.load += amount
	return nil
}

// Release returns previously reserved load. Load never goes negative;
// over-release is clamped and logged.
func (t *Tracker) Release(backendID string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("release amount must not be negative, got %d", amount)
	}

	b, err := t.lookup(backendID)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if amount > b.load {
		t.logger.Warn("release exceeds committed load, clamping to zero",
			zap.String("backend", backendID),
			zap.Int("load", b.load),
			zap.Int("amount", amount))
		b.load = 0
		return nil
	}
	b.load -= amount
	return nil
}

// ReserveAll commits a multi-backend load delta all-or-nothing.
// Backends are reserved in sorted order; on the first failure every
// reservation already made is rolled back and the error is returned.
func (t *Tracker) ReserveAll(delta map[string]int) error {
	ids := make([]string, 0, len(delta))
	for id := range delta {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	reserved := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := t.Reserve(id, delta[id]); err != nil {
			for _, done := range reserved {
				if relErr := t.Release(done, delta[done]); relErr != nil {
					t.logger.Error("rollback release failed",
						zap.String("backend", done), zap.Error(relErr))
				}
			}
			return err
		}
		reserved = append(reserved, id)
	}
	return nil
}

// ReleaseAll releases a multi-backend load delta
func (t *Tracker) ReleaseAll(delta map[string]int) {
	for id, amount := range delta {
		if err := t.Release(id, amount); err != nil {
			t.logger.Error("release failed",
				zap.String("backend", id), zap.Error(err))
		}
	}
}

// SnapshotAll returns the current per-backend load view
func (t *Tracker) SnapshotAll() map[string]Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshot := make(map[string]Snapshot, len(t.backends))
	for id, b := range t.backends {
		b.mu.Lock()
		snapshot[id] = Snapshot{Load: b.load, Capacity: b.capacity}
		b.mu.Unlock()
	}
	return snapshot
}

// Load returns the committed load for one backend
func (t *Tracker) Load(backendID string) (int, error) {
	b, err := t.lookup(backendID)
	if err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load, nil
}

func (t *Tracker) lookup(backendID string) (*backendLoad, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b, ok := t.backends[backendID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrBackendUnknown, backendID)
	}
	return b, nil
}
