package monitor

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pb "go.gazette.dev/fleetmon/monitor/protocol"
)

func TestRebalanceTwoBrokerCases(t *testing.T) {
	var a, b = brokerID("10.0.0.1", 9000, 9100), brokerID("10.0.0.2", 9000, 9100)
	var loads = []BrokerLoad{{ID: a, Count: 3}, {ID: b, Count: 5}}

	// total=12, k=2, target=7, overshoot=2. Raw allocations are {A:4, B:2}.
	var allocs, err = Rebalance(loads, 4, OvershootLast)
	require.NoError(t, err)
	assert.Equal(t, []pb.Allocation{{Broker: a, Delta: 4}, {Broker: b, Delta: 0}}, allocs)
	assert.Equal(t, []int64{7, 5}, finalLoads(loads, allocs))

	allocs, err = Rebalance(loads, 4, OvershootSpread)
	require.NoError(t, err)
	assert.Equal(t, []pb.Allocation{{Broker: a, Delta: 3}, {Broker: b, Delta: 1}}, allocs)
	assert.Equal(t, []int64{6, 6}, finalLoads(loads, allocs))
}

func TestRebalanceCases(t *testing.T) {
	var ids = []pb.BrokerID{
		brokerID("10.0.0.1", 1, 1),
		brokerID("10.0.0.2", 1, 1),
		brokerID("10.0.0.3", 1, 1),
	}
	var cases = []struct {
		counts []int64
		n      int64
		policy OvershootPolicy
		expect []int64
	}{
		// Single broker receives exactly |n|.
		{[]int64{10}, 7, OvershootLast, []int64{7}},
		{[]int64{10}, 7, OvershootSpread, []int64{7}},
		// Exact division still overshoots by k, so each broker gives one back.
		{[]int64{0, 0, 0}, 9, OvershootSpread, []int64{3, 3, 3}},
		{[]int64{0, 0, 0}, 9, OvershootLast, []int64{4, 4, 1}},
		// Existing imbalance is corrected, with negative allocations.
		{[]int64{9, 0, 0}, 0, OvershootSpread, []int64{-6, 3, 3}},
		{[]int64{9, 0, 0}, 0, OvershootLast, []int64{-5, 4, 1}},
		// A zero request over a balanced fleet allocates nothing.
		{[]int64{2, 2, 2}, 0, OvershootSpread, []int64{0, 0, 0}},
		// Negative reported loads are rebalanced like any other.
		{[]int64{-4, 0, 1}, 2, OvershootSpread, []int64{4, 0, -2}},
	}
	for _, tc := range cases {
		var loads = make([]BrokerLoad, len(tc.counts))
		for i, c := range tc.counts {
			loads[i] = BrokerLoad{ID: ids[i], Count: c}
		}
		var allocs, err = Rebalance(loads, tc.n, tc.policy)
		require.NoError(t, err)

		var deltas = make([]int64, len(allocs))
		for i, a := range allocs {
			assert.Equal(t, ids[i], a.Broker)
			deltas[i] = a.Delta
		}
		assert.Equal(t, tc.expect, deltas, "counts %v n %d policy %s", tc.counts, tc.n, tc.policy)
	}
}

func TestRebalanceProperties(t *testing.T) {
	var rnd = rand.New(rand.NewSource(42))

	for iter := 0; iter != 500; iter++ {
		var loads = make([]BrokerLoad, 1+rnd.Intn(12))
		for i := range loads {
			loads[i] = BrokerLoad{
				ID:    brokerID(fmt.Sprintf("10.1.0.%d", i), 9000, 9100),
				Count: rnd.Int63n(200),
			}
		}
		var n = rnd.Int63n(500)

		for _, policy := range []OvershootPolicy{OvershootSpread, OvershootLast} {
			var allocs, err = Rebalance(loads, n, policy)
			require.NoError(t, err)
			require.Len(t, allocs, len(loads))

			var sum int64
			for _, a := range allocs {
				sum += a.Delta
			}
			assert.Equal(t, n, sum)

			var final = finalLoads(loads, allocs)
			if policy == OvershootSpread {
				var lo, hi = final[0], final[0]
				for _, f := range final {
					lo, hi = min(lo, f), max(hi, f)
				}
				assert.LessOrEqual(t, hi-lo, int64(1), "final loads %v", final)
			} else {
				// All but the last broker end exactly at target.
				for _, f := range final[:len(final)-1] {
					assert.Equal(t, final[0], f)
				}
			}
		}
	}
}

func TestRebalanceErrors(t *testing.T) {
	var _, err = Rebalance(nil, 4, OvershootSpread)
	assert.Equal(t, ErrNoBrokers, err)

	_, err = Rebalance([]BrokerLoad{{ID: brokerID("10.0.0.1", 1, 1)}}, 4, "middle")
	assert.EqualError(t, err, `invalid OvershootPolicy ("middle")`)

	// Loads and requests are bounded by the range of an int64.
	var a, b = brokerID("10.0.0.1", 1, 1), brokerID("10.0.0.2", 1, 1)
	for _, tc := range []struct {
		loads []BrokerLoad
		n     int64
	}{
		{[]BrokerLoad{{ID: a, Count: math.MaxInt64}}, 1},
		{[]BrokerLoad{{ID: a, Count: math.MaxInt64 - 1}, {ID: b}}, 0},
		{[]BrokerLoad{{ID: a, Count: math.MinInt64}, {ID: b, Count: math.MaxInt64}}, 0},
	} {
		_, err = Rebalance(tc.loads, tc.n, OvershootLast)
		assert.True(t, errors.Is(err, ErrCountOverflow), "%v", tc.loads)
	}

	// Extremes which remain representable are allocated.
	allocs, err := Rebalance([]BrokerLoad{{ID: a, Count: math.MaxInt64 - 1}}, 0, OvershootSpread)
	require.NoError(t, err)
	assert.Equal(t, []pb.Allocation{{Broker: a, Delta: 0}}, allocs)
}

func TestFloorDiv(t *testing.T) {
	for _, tc := range []struct{ a, b, q int64 }{
		{7, 2, 3},
		{6, 2, 3},
		{0, 3, 0},
		{-1, 2, -1},
		{-4, 2, -2},
		{-5, 3, -2},
	} {
		assert.Equal(t, tc.q, floorDiv(tc.a, tc.b), "%d / %d", tc.a, tc.b)
	}
}

func finalLoads(loads []BrokerLoad, allocs []pb.Allocation) []int64 {
	var out = make([]int64, len(loads))
	for i := range loads {
		out[i] = loads[i].Count + allocs[i].Delta
	}
	return out
}
