package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	pb "go.gazette.dev/fleetmon/monitor/protocol"
)

var (
	// ErrAlreadyRegistered is returned by Registry.Register if the BrokerID
	// is already present, which indicates a misbehaving (double-connected) broker.
	ErrAlreadyRegistered = errors.New("broker already registered")
	// ErrNotRegistered is returned by Registry operations of an absent BrokerID.
	ErrNotRegistered = errors.New("broker not registered")
	// ErrCountOverflow is returned where a subscription count, or a sum of
	// counts, would exceed the range of an int64.
	ErrCountOverflow = errors.New("subscription count overflow")
)

// Registry tracks the live brokers of the fleet and their current
// subscription counts, along with a running total of all counts. The entry
// map and the total are guarded by a single mutex, and every mutation updates
// both together: outside of the critical section the total always equals the
// sum of entry counts.
//
// The sums of positive and of negative counts are each kept within int64,
// so that the sum of any subset of counts is also representable.
type Registry struct {
	// ClampNegative truncates a subscription delta which would otherwise drive
	// a broker's count below zero. By default, broker-reported deltas are
	// trusted and applied as-is.
	ClampNegative bool

	mu      sync.Mutex
	entries map[pb.BrokerID]*registryEntry
	total   int64
	pos     int64 // Sum of positive counts.
	neg     int64 // Sum of negative counts.
}

type registryEntry struct {
	count    int64
	joinedAt time.Time
}

// BrokerLoad is the point-in-time subscription count of a registered broker.
type BrokerLoad struct {
	ID       pb.BrokerID
	Count    int64
	JoinedAt time.Time
}

// Snapshot is a consistent, point-in-time copy of the Registry.
type Snapshot struct {
	// Brokers ordered on BrokerID.Less.
	Brokers []BrokerLoad
	// Total of Brokers counts.
	Total int64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[pb.BrokerID]*registryEntry)}
}

// Register a broker with a zero subscription count.
func (r *Registry) Register(id pb.BrokerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return ErrAlreadyRegistered
	}
	r.entries[id] = &registryEntry{joinedAt: timeNow()}
	r.updateGauges()
	return nil
}

// Deregister a broker, returning its final subscription count, which is also
// removed from the running total.
func (r *Registry) Deregister(id pb.BrokerID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var e, ok = r.entries[id]
	if !ok {
		return 0, ErrNotRegistered
	}
	delete(r.entries, id)
	r.pos -= positive(e.count)
	r.neg -= negative(e.count)
	r.total = r.pos + r.neg
	r.updateGauges()

	return e.count, nil
}

// Adjust the subscription count of a registered broker by |delta|,
// returning its updated count. A |delta| which would overflow the count or
// the Registry's sums is not applied, and returns ErrCountOverflow.
func (r *Registry) Adjust(id pb.BrokerID, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var e, ok = r.entries[id]
	if !ok {
		return 0, ErrNotRegistered
	}

	next, ok := addInt64(e.count, delta)
	if !ok {
		return e.count, errors.WithMessagef(ErrCountOverflow, "adjusting %d by %d", e.count, delta)
	}

	if next < 0 {
		if r.ClampNegative {
			log.WithFields(log.Fields{
				"broker": id,
				"count":  e.count,
				"delta":  delta,
			}).Warn("clamping broker subscription count at zero")
			next = 0
		} else {
			log.WithFields(log.Fields{
				"broker": id,
				"count":  next,
				"delta":  delta,
			}).Warn("broker subscription count is negative")
		}
	}
	pos, okPos := addInt64(r.pos-positive(e.count), positive(next))
	neg, okNeg := addInt64(r.neg-negative(e.count), negative(next))
	if !okPos || !okNeg {
		return e.count, errors.WithMessagef(ErrCountOverflow, "total of %d brokers", len(r.entries))
	}
	e.count, r.pos, r.neg, r.total = next, pos, neg, pos+neg
	r.updateGauges()

	return e.count, nil
}

// Count returns the current subscription count of a registered broker.
func (r *Registry) Count(id pb.BrokerID) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		return e.count, true
	}
	return 0, false
}

// Total returns the running total of subscriptions.
func (r *Registry) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.total
}

// Snapshot returns a consistent copy of all registered brokers and the
// running total.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	var out = Snapshot{
		Brokers: make([]BrokerLoad, 0, len(r.entries)),
		Total:   r.total,
	}
	for id, e := range r.entries {
		out.Brokers = append(out.Brokers, BrokerLoad{ID: id, Count: e.count, JoinedAt: e.joinedAt})
	}
	r.mu.Unlock()

	sort.Slice(out.Brokers, func(i, j int) bool {
		return out.Brokers[i].ID.Less(out.Brokers[j].ID)
	})
	return out
}

// updateGauges publishes current registry sizes. r.mu must be held.
func (r *Registry) updateGauges() {
	brokersGauge.Set(float64(len(r.entries)))
	subscriptionsGauge.Set(float64(r.total))
}

// addInt64 returns a+b, and false if the sum overflows.
func addInt64(a, b int64) (int64, bool) {
	var c = a + b
	return c, (c > a) == (b > 0)
}

// subInt64 returns a-b, and false if the difference overflows.
func subInt64(a, b int64) (int64, bool) {
	var c = a - b
	return c, (c < a) == (b > 0)
}

func positive(n int64) int64 {
	if n > 0 {
		return n
	}
	return 0
}

func negative(n int64) int64 {
	if n < 0 {
		return n
	}
	return 0
}

var timeNow = time.Now
