package settings

import (
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-superres/pkg/executor"
)

// Snapshot is an immutable view of the settings. The pipeline takes one per
// frame and never re-reads mid-frame.
type Snapshot struct {
	Tier executor.Tier `json:"tier"`
	Crop Crop          `json:"crop"`
}

// Default returns the startup settings: accelerator tier, largest crop.
func Default() Snapshot {
	return Snapshot{Tier: executor.TierNPU, Crop: DefaultCrop}
}

// Store publishes settings to the pipeline worker. Writers may run on any
// goroutine; readers never block.
type Store struct {
	cur atomic.Pointer[Snapshot]

	mu       sync.RWMutex
	onChange func(Snapshot)
}

// NewStore creates a store holding initial. An invalid tier or crop is
// replaced with the default.
func NewStore(initial Snapshot) *Store {
	def := Default()
	if !initial.Tier.Valid() {
		initial.Tier = def.Tier
	}
	if !initial.Crop.Valid() {
		initial.Crop = NewCrop(int(initial.Crop))
	}
	s := &Store{}
	s.cur.Store(&initial)
	return s
}

// Snapshot returns the latest published settings.
func (s *Store) Snapshot() Snapshot {
	return *s.cur.Load()
}

// OnChange registers fn to be called after every effective change. Only one
// callback is kept.
func (s *Store) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// SetTier selects the active tier.
func (s *Store) SetTier(t executor.Tier) error {
	if !t.Valid() {
		return executor.ErrUnknownTier
	}
	s.update(func(snap *Snapshot) { snap.Tier = t })
	return nil
}

// IncrementCrop grows the crop one step, clamped at MaxCrop.
func (s *Store) IncrementCrop() Crop {
	return s.update(func(snap *Snapshot) { snap.Crop = snap.Crop.Increment() }).Crop
}

// DecrementCrop shrinks the crop one step, clamped at MinCrop.
func (s *Store) DecrementCrop() Crop {
	return s.update(func(snap *Snapshot) { snap.Crop = snap.Crop.Decrement() }).Crop
}

// update applies fn with a compare-and-swap loop so concurrent writers never
// lose each other's changes.
func (s *Store) update(fn func(*Snapshot)) Snapshot {
	for {
		old := s.cur.Load()
		next := *old
		fn(&next)
		if next == *old {
			return next
		}
		if s.cur.CompareAndSwap(old, &next) {
			s.notify(next)
			return next
		}
	}
}

func (s *Store) notify(snap Snapshot) {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn(snap)
	}
}
