package monitor

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	pb "go.gazette.dev/fleetmon/monitor/protocol"
)

// recorder is a PeerWriter which logs delivered events to a shared journal.
type recorder struct {
	name    string
	journal *[]string
	events  []pb.PeerEvent
	err     error
}

func (r *recorder) WritePeerEvent(ev pb.PeerEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	*r.journal = append(*r.journal, fmt.Sprintf("%s <- %s %s:%d", r.name, ev.Tag, ev.IP, ev.PeerPort))
	return nil
}

func TestPeerListJoinAnnouncedToExistingMembersOnly(t *testing.T) {
	var journal []string
	var l = NewPeerList()

	var a, b = brokerID("10.0.0.1", 9000, 9100), brokerID("10.0.0.2", 9000, 9100)
	var ra, rb = &recorder{name: "A", journal: &journal}, &recorder{name: "B", journal: &journal}

	assert.Equal(t, 0, l.AnnounceJoin(a, ra))
	journal = append(journal, "A added")
	assert.Equal(t, 1, l.AnnounceJoin(b, rb))
	journal = append(journal, "B added")

	// The first broker receives exactly one join event for the second,
	// and the second is told nothing of itself.
	assert.Equal(t, []pb.PeerEvent{{Tag: pb.Tag_BROKER_CONNECTED, IP: "10.0.0.2", PeerPort: 9100}}, ra.events)
	assert.Empty(t, rb.events)

	// B's join reached A before B became a member.
	assert.Equal(t, []string{
		"A added",
		"A <- BROKER_CONNECTED 10.0.0.2:9100",
		"B added",
	}, journal)
	assert.Equal(t, 2, l.Len())
}

func TestPeerListQuitRemovesBeforeBroadcast(t *testing.T) {
	var journal []string
	var l = NewPeerList()

	var ids = []pb.BrokerID{
		brokerID("10.0.0.1", 9000, 9100),
		brokerID("10.0.0.2", 9000, 9101),
		brokerID("10.0.0.3", 9000, 9102),
	}
	var recs = []*recorder{
		{name: "A", journal: &journal},
		{name: "B", journal: &journal},
		{name: "C", journal: &journal},
	}
	for i := range ids {
		l.AnnounceJoin(ids[i], recs[i])
	}
	journal = nil

	assert.Equal(t, 2, l.AnnounceQuit(ids[1], recs[1]))
	assert.Equal(t, []string{
		"A <- BROKER_DISCONNECTED 10.0.0.2:9101",
		"C <- BROKER_DISCONNECTED 10.0.0.2:9101",
	}, journal)
	assert.Equal(t, 2, l.Len())

	// B never hears of its own departure, and hears nothing further.
	var before = len(recs[1].events)
	l.AnnounceQuit(ids[0], recs[0])
	assert.Len(t, recs[1].events, before)
	assert.Equal(t, []pb.PeerEvent{
		{Tag: pb.Tag_BROKER_CONNECTED, IP: "10.0.0.3", PeerPort: 9102},
		{Tag: pb.Tag_BROKER_DISCONNECTED, IP: "10.0.0.2", PeerPort: 9101},
		{Tag: pb.Tag_BROKER_DISCONNECTED, IP: "10.0.0.1", PeerPort: 9100},
	}, recs[2].events)
}

func TestPeerListFailedDeliveryDoesNotStopFanOut(t *testing.T) {
	var journal []string
	var l = NewPeerList()

	var broken = &recorder{name: "A", journal: &journal, err: errors.New("broken pipe")}
	var healthy = &recorder{name: "B", journal: &journal}

	l.AnnounceJoin(brokerID("10.0.0.1", 1, 1), broken)
	l.AnnounceJoin(brokerID("10.0.0.2", 2, 2), healthy)

	assert.Equal(t, 1, l.AnnounceJoin(brokerID("10.0.0.3", 3, 3), &recorder{name: "C", journal: &journal}))
	assert.Len(t, healthy.events, 1)
	assert.Equal(t, 3, l.Len())
}

// orderRecorder is a goroutine-safe PeerWriter which records event order.
type orderRecorder struct {
	mu     sync.Mutex
	events []pb.PeerEvent
}

func (r *orderRecorder) WritePeerEvent(ev pb.PeerEvent) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func TestPeerListConcurrentAnnouncementsAreConsistentlyOrdered(t *testing.T) {
	var l = NewPeerList()
	var observers = []*orderRecorder{{}, {}, {}}
	for i, o := range observers {
		l.AnnounceJoin(brokerID("10.0.9.1", 9000+i, 9100+i), o)
	}

	var wg sync.WaitGroup
	for i := 0; i != 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var id, w = brokerID(fmt.Sprintf("10.0.2.%d", i), 9000, 9100), &orderRecorder{}
			l.AnnounceJoin(id, w)
			l.AnnounceQuit(id, w)
		}(i)
	}
	wg.Wait()

	// Every observer saw every event, in the same global order.
	assert.Len(t, observers[0].events, 40)
	assert.Equal(t, observers[0].events, observers[1].events)
	assert.Equal(t, observers[0].events, observers[2].events)
	assert.Equal(t, 3, l.Len())
}
