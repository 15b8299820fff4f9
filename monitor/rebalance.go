package monitor

import (
	"github.com/pkg/errors"
	pb "go.gazette.dev/fleetmon/monitor/protocol"
)

// ErrNoBrokers is returned when an allocation is requested of an empty fleet.
var ErrNoBrokers = errors.New("no brokers are registered")

// OvershootPolicy determines which brokers absorb the overshoot of a
// rebalancing: the surplus introduced by rounding the uniform per-broker
// target up to the next integer.
type OvershootPolicy string

const (
	// OvershootSpread removes the overshoot one subscription at a time from
	// the last brokers in snapshot order. Final loads differ by at most one.
	OvershootSpread OvershootPolicy = "spread"
	// OvershootLast removes the entire overshoot from the last broker in
	// snapshot order.
	OvershootLast OvershootPolicy = "last"
)

// Validate returns an error if the OvershootPolicy is not known.
func (p OvershootPolicy) Validate() error {
	switch p {
	case OvershootSpread, OvershootLast:
		return nil
	}
	return pb.NewValidationError("invalid OvershootPolicy (%q)", string(p))
}

// Rebalance computes, for a request of |n| new subscriptions, the number of
// subscriptions each of |loads| should absorb so that every broker ends as
// close as possible to a uniform load. Existing load is rebalanced too: a
// broker carrying more than its share receives a negative allocation.
//
// Each broker is first allocated (target - count), where
// target = floor((n + Σcount) / k) + 1. That overshoots the request by
// target·k - (n + Σcount), which lies in [1, k] and is then taken back
// from the last broker(s) of |loads| as directed by |policy|. The returned
// Allocations parallel |loads| and always sum to exactly |n|. Loads whose
// allocation isn't representable in an int64 return ErrCountOverflow.
func Rebalance(loads []BrokerLoad, n int64, policy OvershootPolicy) ([]pb.Allocation, error) {
	if len(loads) == 0 {
		return nil, ErrNoBrokers
	} else if err := policy.Validate(); err != nil {
		return nil, err
	}

	var k = int64(len(loads))
	var total, ok = n, true
	for _, l := range loads {
		if total, ok = addInt64(total, l.Count); !ok {
			return nil, errors.WithMessagef(ErrCountOverflow, "requesting %d", n)
		}
	}
	// target·k <= total + k.
	if _, ok = addInt64(total, k); !ok {
		return nil, errors.WithMessagef(ErrCountOverflow, "requesting %d", n)
	}
	var target = floorDiv(total, k) + 1
	var overshoot = target*k - total

	var out = make([]pb.Allocation, len(loads))
	for i, l := range loads {
		var delta, ok = subInt64(target, l.Count)
		if !ok {
			return nil, errors.WithMessagef(ErrCountOverflow, "allocating to %s", l.ID)
		}
		out[i] = pb.Allocation{Broker: l.ID, Delta: delta}
	}

	switch policy {
	case OvershootLast:
		var last = &out[len(out)-1]
		if last.Delta, ok = subInt64(last.Delta, overshoot); !ok {
			return nil, errors.WithMessagef(ErrCountOverflow, "allocating to %s", last.Broker)
		}
	case OvershootSpread:
		for i := int64(0); i != overshoot; i++ {
			var a = &out[k-1-i]
			if a.Delta, ok = subInt64(a.Delta, 1); !ok {
				return nil, errors.WithMessagef(ErrCountOverflow, "allocating to %s", a.Broker)
			}
		}
	}
	return out, nil
}

// floorDiv is integer division rounding towards negative infinity, which
// keeps target·k >= total where reported loads have gone negative.
func floorDiv(a, b int64) int64 {
	var q = a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
