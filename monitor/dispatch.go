package monitor

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	pb "go.gazette.dev/fleetmon/monitor/protocol"
	"golang.org/x/net/trace"
)

// session is the per-connection state of a monitor client.
type session struct {
	conn net.Conn
	rd   *pb.Reader
	wr   *pb.Writer
	tr   trace.Trace
	log  *log.Entry
}

// ServeConn serves a single client connection through its handshake and
// role-specific protocol, closing |conn| on return. All errors terminate
// only this connection. ServeConn returns early if |ctx| is cancelled.
func (m *Monitor) ServeConn(ctx context.Context, conn net.Conn) {
	var stopClose = context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stopClose()
	defer conn.Close()

	var s = &session{
		conn: conn,
		rd:   pb.NewReader(conn),
		wr:   pb.NewWriter(conn),
		tr:   trace.New("fleetmon.Session", conn.RemoteAddr().String()),
		log: log.WithFields(log.Fields{
			"session": uuid.New().String(),
			"remote":  conn.RemoteAddr().String(),
		}),
	}
	defer s.tr.Finish()

	var role, err = s.rd.ReadRole()
	if err != nil {
		handshakeFailuresTotal.Inc()
		s.fail(err)
		s.log.WithField("err", err).Debug("monitor handshake failed")
		return
	}
	connectionsTotal.WithLabelValues(role.String()).Inc()
	s.tr.LazyPrintf("role: %s", role)
	s.log = s.log.WithField("role", role)

	switch role {
	case pb.Role_BROKER:
		err = m.serveBroker(s)
	case pb.Role_SUBSCRIBER:
		err = m.serveSubscriber(s)
	}

	if err == nil || errors.Cause(err) == io.EOF {
		return
	} else if ctx.Err() != nil {
		s.log.WithField("err", err).Debug("session closed by monitor stop")
	} else {
		s.fail(err)
		s.log.WithField("err", err).Warn("session failed")
	}
}

// serveBroker registers the broker of the session, announces it to peers,
// and applies its reported subscription deltas until the session ends.
// The broker is then deregistered and its departure announced.
func (m *Monitor) serveBroker(s *session) error {
	var subscriberPort, peerPort int
	var err error

	if subscriberPort, err = s.rd.ReadPort(); err != nil {
		handshakeFailuresTotal.Inc()
		return errors.WithMessage(err, "reading subscriber port")
	} else if peerPort, err = s.rd.ReadPort(); err != nil {
		handshakeFailuresTotal.Inc()
		return errors.WithMessage(err, "reading peer port")
	}

	var id = pb.NewBrokerID(s.conn.RemoteAddr(), subscriberPort, peerPort)
	if err = id.Validate(); err != nil {
		handshakeFailuresTotal.Inc()
		return errors.WithMessage(err, "broker identity")
	} else if err = m.Registry.Register(id); err != nil {
		duplicateBrokersTotal.Inc()
		return errors.WithMessagef(err, "registering %s", id)
	}
	s.log = s.log.WithField("broker", id)
	s.tr.LazyPrintf("registered broker %s", id)

	var pw = &peerConn{conn: s.conn, wr: s.wr, timeout: m.cfg.PeerWriteTimeout}
	if !m.cfg.NoPeerBroadcast {
		var n = m.Peers.AnnounceJoin(id, pw)
		s.tr.LazyPrintf("announced join to %d peers", n)
	}
	s.log.Info("broker connected")

	err = m.brokerLoop(s, id)

	// Close the connection before announcing our departure,
	// so the departing broker observes no further events.
	_ = s.conn.Close()

	var last, _ = m.Registry.Deregister(id)
	if !m.cfg.NoPeerBroadcast {
		var n = m.Peers.AnnounceQuit(id, pw)
		s.tr.LazyPrintf("announced quit to %d peers", n)
	}
	s.log.WithFields(log.Fields{"subscriptions": last, "err": err}).Info("broker disconnected")

	return err
}

// brokerLoop reads (Tag, count) deltas of a broker session until the
// session is closed or violates the protocol.
func (m *Monitor) brokerLoop(s *session, id pb.BrokerID) error {
	for {
		var tag, err = s.rd.ReadTag()
		if err != nil {
			return err
		} else if !tag.IsLoadDelta() {
			return errors.WithMessagef(pb.ErrUnknownTag, "unexpected %s from broker", tag)
		}

		n, err := s.rd.ReadInt()
		if err != nil {
			return errors.WithMessagef(err, "reading %s count", tag)
		}
		if tag == pb.Tag_SUBSCRIBER_DISCONNECTED {
			n = -n
		}

		count, err := m.Registry.Adjust(id, n)
		if err != nil {
			return errors.WithMessagef(err, "applying %s %d", tag, n)
		}
		loadDeltasTotal.WithLabelValues(tag.String()).Inc()
		s.tr.LazyPrintf("%s %d => %d", tag, n, count)

		s.log.WithFields(log.Fields{"delta": n, "count": count}).Debug("broker subscriptions adjusted")
	}
}

// serveSubscriber responds to a subscriber's request with the allocation of
// its new subscriptions across the fleet, and awaits its acknowledgement.
// If no brokers are registered, the connection is closed without a response.
func (m *Monitor) serveSubscriber(s *session) error {
	var n, err = s.rd.ReadInt()
	if err != nil {
		return errors.WithMessage(err, "reading subscription count")
	} else if n < 0 {
		return pb.NewValidationError("invalid subscription count (%d; expected >= 0)", n)
	}
	requestedSubscriptions.Observe(float64(n))

	allocs, snap, err := m.Allocate(n)
	if err == ErrNoBrokers {
		allocationsTotal.WithLabelValues(metricsFail).Inc()
		s.log.WithField("requested", n).Warn("no brokers available for subscriber")
		return nil
	} else if err != nil {
		allocationsTotal.WithLabelValues(metricsFail).Inc()
		return err
	}
	s.tr.LazyPrintf("allocating %d subscriptions across %d brokers (total %d)",
		n, len(snap.Brokers), snap.Total)

	if err = s.wr.WriteAllocations(allocs); err != nil {
		allocationsTotal.WithLabelValues(metricsFail).Inc()
		return errors.WithMessage(err, "writing allocations")
	}
	allocationsTotal.WithLabelValues(metricsOk).Inc()

	s.log.WithFields(log.Fields{
		"requested": n,
		"brokers":   len(allocs),
	}).Info("sent subscription allocations to subscriber")

	// Await the subscriber's acknowledgement. Its content is ignored.
	if _, err = s.rd.ReadLine(); err != nil {
		return errors.WithMessage(err, "awaiting subscriber acknowledgement")
	}
	return nil
}

func (s *session) fail(err error) {
	s.tr.LazyPrintf("%v", err)
	s.tr.SetError()
}

// peerConn is the PeerWriter of a broker session. A failed write may have
// delivered part of an event, so the connection is closed: the broker's
// session then ends, and the broker is deregistered and must reconnect.
type peerConn struct {
	conn    net.Conn
	wr      *pb.Writer
	timeout time.Duration
}

func (p *peerConn) WritePeerEvent(ev pb.PeerEvent) error {
	if p.timeout != 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(p.timeout))
	}
	var err = p.wr.WritePeerEvent(ev)
	if err != nil {
		_ = p.conn.Close()
	}
	return err
}
