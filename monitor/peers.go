package monitor

import (
	"sync"

	log "github.com/sirupsen/logrus"
	pb "go.gazette.dev/fleetmon/monitor/protocol"
)

// PeerWriter delivers peer membership events to a connected broker.
type PeerWriter interface {
	WritePeerEvent(pb.PeerEvent) error
}

// PeerList is the ordered set of PeerWriters of currently connected brokers,
// to which broker joins and departures are broadcast. A single mutex
// serializes all announcements, so every member observes joins and quits in
// the same relative order.
//
// Delivery is fire-and-forget: a failed write to one member is logged and
// does not interrupt delivery to the others. A PeerWriter closes its
// connection upon a failed write, and the member's own session then
// observes the closed connection and removes it.
type PeerList struct {
	mu    sync.Mutex
	peers []PeerWriter
}

// NewPeerList returns an empty PeerList.
func NewPeerList() *PeerList { return new(PeerList) }

// AnnounceJoin broadcasts a BROKER_CONNECTED event for |id| to all current
// members, and only then adds |w| as a member. The joining broker doesn't
// receive its own event, and no member added later can miss it.
// It returns the number of members to which the event was delivered.
func (l *PeerList) AnnounceJoin(id pb.BrokerID, w PeerWriter) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n = l.broadcast(pb.PeerEvent{Tag: pb.Tag_BROKER_CONNECTED, IP: id.IP, PeerPort: id.PeerPort})
	l.peers = append(l.peers, w)
	return n
}

// AnnounceQuit removes |w| as a member, and then broadcasts a
// BROKER_DISCONNECTED event for |id| to the remaining members.
// It returns the number of members to which the event was delivered.
func (l *PeerList) AnnounceQuit(id pb.BrokerID, w PeerWriter) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.peers {
		if l.peers[i] == w {
			l.peers = append(l.peers[:i], l.peers[i+1:]...)
			break
		}
	}
	return l.broadcast(pb.PeerEvent{Tag: pb.Tag_BROKER_DISCONNECTED, IP: id.IP, PeerPort: id.PeerPort})
}

// Len returns the number of current members.
func (l *PeerList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.peers)
}

// broadcast |ev| to all members. l.mu must be held.
func (l *PeerList) broadcast(ev pb.PeerEvent) (delivered int) {
	for _, w := range l.peers {
		if err := w.WritePeerEvent(ev); err != nil {
			peerEventsTotal.WithLabelValues(ev.Tag.String(), metricsFail).Inc()

			log.WithFields(log.Fields{
				"err":   err,
				"event": ev.Tag,
				"ip":    ev.IP,
				"port":  ev.PeerPort,
			}).Warn("failed to deliver peer event")
		} else {
			peerEventsTotal.WithLabelValues(ev.Tag.String(), metricsOk).Inc()
			delivered++
		}
	}
	return
}
