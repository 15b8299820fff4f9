package monitor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/schema"
	log "github.com/sirupsen/logrus"
	pb "go.gazette.dev/fleetmon/monitor/protocol"
)

// FleetStatus is the JSON representation of a Registry Snapshot.
type FleetStatus struct {
	Brokers []BrokerStatus `json:"brokers" yaml:"brokers"`
	Total   int64          `json:"total" yaml:"total"`
}

// BrokerStatus is the JSON representation of a BrokerLoad.
type BrokerStatus struct {
	pb.BrokerID   `yaml:",inline"`
	Subscriptions int64     `json:"subscriptions" yaml:"subscriptions"`
	JoinedAt      time.Time `json:"joined_at" yaml:"joined_at"`
}

// AllocationPlan is the JSON representation of a Rebalance preview.
type AllocationPlan struct {
	Requested   int64               `json:"requested" yaml:"requested"`
	Policy      OvershootPolicy     `json:"policy" yaml:"policy"`
	Allocations []PlannedAllocation `json:"allocations" yaml:"allocations"`
}

// PlannedAllocation is a broker's current count, allocated delta, and
// resulting count under an AllocationPlan.
type PlannedAllocation struct {
	pb.BrokerID `yaml:",inline"`
	Current     int64 `json:"current" yaml:"current"`
	Delta       int64 `json:"delta" yaml:"delta"`
	Final       int64 `json:"final" yaml:"final"`
}

// NewFleetStatus converts a Snapshot to its FleetStatus.
func NewFleetStatus(snap Snapshot) FleetStatus {
	var out = FleetStatus{Brokers: make([]BrokerStatus, len(snap.Brokers)), Total: snap.Total}
	for i, b := range snap.Brokers {
		out.Brokers[i] = BrokerStatus{BrokerID: b.ID, Subscriptions: b.Count, JoinedAt: b.JoinedAt}
	}
	return out
}

// RegisterHTTP registers handlers of the Monitor's diagnostics API on |mux|:
//
//	GET /debug/fleet                    FleetStatus of the Registry.
//	GET /debug/fleet/allocate?count=N   AllocationPlan of N new subscriptions.
//
// Previews are computed exactly as for a subscriber request, but are
// otherwise side-effect free.
func (m *Monitor) RegisterHTTP(mux *http.ServeMux) {
	var decoder = schema.NewDecoder()
	decoder.IgnoreUnknownKeys(false)

	mux.HandleFunc("/debug/fleet", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "expected GET", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, NewFleetStatus(m.Registry.Snapshot()))
	})

	mux.HandleFunc("/debug/fleet/allocate", func(w http.ResponseWriter, r *http.Request) {
		var query struct {
			Count int64 `schema:"count,required"`
		}
		if r.Method != http.MethodGet {
			http.Error(w, "expected GET", http.StatusMethodNotAllowed)
			return
		} else if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		} else if err = decoder.Decode(&query, r.Form); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		} else if query.Count < 0 {
			http.Error(w, "count must be >= 0", http.StatusBadRequest)
			return
		}

		var allocs, snap, err = m.Allocate(query.Count)
		if err == ErrNoBrokers {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		} else if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		var plan = AllocationPlan{
			Requested:   query.Count,
			Policy:      m.cfg.Overshoot,
			Allocations: make([]PlannedAllocation, len(allocs)),
		}
		for i, a := range allocs {
			var cur = snap.Brokers[i].Count
			plan.Allocations[i] = PlannedAllocation{
				BrokerID: snap.Brokers[i].ID,
				Current:  cur,
				Delta:    a.Delta,
				Final:    cur + a.Delta,
			}
		}
		writeJSON(w, plan)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("err", err).Warn("failed to write JSON response")
	}
}
