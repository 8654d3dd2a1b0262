package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	UsersRegistered      uint64
	LoginSuccesses       uint64
	LoginFailures        uint64
	AuthRejections       map[string]uint64
	RecipesCreated       uint64
	RecipesEdited        uint64
	CompensationsOK      uint64
	CompensationsFailed  uint64
	ThumbnailFailures    uint64
	StoreCalls           map[string]uint64 // keyed by "store/op"
	StoreDurationTotalNs int64
	HTTPRequests         map[string]uint64 // keyed by "METHOD route status"
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	usersRegistered      uint64
	loginSuccesses       uint64
	loginFailures        uint64
	recipesCreated       uint64
	recipesEdited        uint64
	compensationsOK      uint64
	compensationsFailed  uint64
	thumbnailFailures    uint64
	storeDurationTotalNs int64

	mu             sync.Mutex
	authRejections map[string]uint64
	storeCalls     map[string]uint64
	httpRequests   map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		authRejections: make(map[string]uint64),
		storeCalls:     make(map[string]uint64),
		httpRequests:   make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	rejections := make(map[string]uint64, len(m.authRejections))
	for k, v := range m.authRejections {
		rejections[k] = v
	}
	calls := make(map[string]uint64, len(m.storeCalls))
	for k, v := range m.storeCalls {
		calls[k] = v
	}
	requests := make(map[string]uint64, len(m.httpRequests))
	for k, v := range m.httpRequests {
		requests[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		UsersRegistered:      atomic.LoadUint64(&m.usersRegistered),
		LoginSuccesses:       atomic.LoadUint64(&m.loginSuccesses),
		LoginFailures:        atomic.LoadUint64(&m.loginFailures),
		AuthRejections:       rejections,
		RecipesCreated:       atomic.LoadUint64(&m.recipesCreated),
		RecipesEdited:        atomic.LoadUint64(&m.recipesEdited),
		CompensationsOK:      atomic.LoadUint64(&m.compensationsOK),
		CompensationsFailed:  atomic.LoadUint64(&m.compensationsFailed),
		ThumbnailFailures:    atomic.LoadUint64(&m.thumbnailFailures),
		StoreCalls:           calls,
		StoreDurationTotalNs: atomic.LoadInt64(&m.storeDurationTotalNs),
		HTTPRequests:         requests,
	}
}

// IncUserRegistered increments the registration counter.
func (m *InMemoryRecorder) IncUserRegistered() {
	atomic.AddUint64(&m.usersRegistered, 1)
}

// IncLogin increments the login counter for status.
func (m *InMemoryRecorder) IncLogin(status string) {
	if status == StatusSuccess {
		atomic.AddUint64(&m.loginSuccesses, 1)
		return
	}
	atomic.AddUint64(&m.loginFailures, 1)
}

// IncAuthRejected counts a rejected request by reason.
func (m *InMemoryRecorder) IncAuthRejected(reason string) {
	m.mu.Lock()
	m.authRejections[reason]++
	m.mu.Unlock()
}

// IncRecipeCreated increments the recipe created counter.
func (m *InMemoryRecorder) IncRecipeCreated() {
	atomic.AddUint64(&m.recipesCreated, 1)
}

// IncRecipeEdited increments the recipe edited counter.
func (m *InMemoryRecorder) IncRecipeEdited() {
	atomic.AddUint64(&m.recipesEdited, 1)
}

// IncCompensation counts a create rollback by outcome.
func (m *InMemoryRecorder) IncCompensation(status string) {
	if status == CompensationOK {
		atomic.AddUint64(&m.compensationsOK, 1)
		return
	}
	atomic.AddUint64(&m.compensationsFailed, 1)
}

// IncThumbnailFailure increments the thumbnail failure counter.
func (m *InMemoryRecorder) IncThumbnailFailure() {
	atomic.AddUint64(&m.thumbnailFailures, 1)
}

// ObserveStoreDuration records a store call.
func (m *InMemoryRecorder) ObserveStoreDuration(store, op string, duration time.Duration) {
	atomic.AddInt64(&m.storeDurationTotalNs, duration.Nanoseconds())
	m.mu.Lock()
	m.storeCalls[store+"/"+op]++
	m.mu.Unlock()
}

// ObserveHTTPRequest counts a served request.
func (m *InMemoryRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	m.mu.Lock()
	m.httpRequests[fmt.Sprintf("%s %s %d", method, route, status)]++
	m.mu.Unlock()
}
