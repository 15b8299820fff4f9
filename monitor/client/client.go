// Package client implements the broker and subscriber sides of the fleet
// monitor protocol, as well as a reader of the monitor's diagnostics API.
package client

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/fleetmon/keepalive"
	pb "go.gazette.dev/fleetmon/monitor/protocol"
)

// ErrNoBrokers is returned by Allocate if the monitor closed the connection
// without a response, which it does when no brokers are registered.
var ErrNoBrokers = errors.New("monitor has no registered brokers")

// BrokerSession is a broker's long-lived session with the monitor. The
// broker reports subscription deltas over the session, while the monitor
// concurrently pushes PeerEvents of other brokers joining and leaving the
// fleet. PeerEvents must be drained from Events: a broker which stops
// reading them eventually stalls, and is then disconnected by the monitor.
type BrokerSession struct {
	conn   net.Conn
	wr     *pb.Writer
	events chan pb.PeerEvent
	done   chan struct{}

	closeOnce sync.Once
	err       error // Terminal error of the read loop, set before |events| closes.
}

// DialBroker dials the monitor at |addr| and opens a BrokerSession
// declaring |subscriberPort| and |peerPort|.
func DialBroker(ctx context.Context, addr string, subscriberPort, peerPort int) (*BrokerSession, error) {
	var conn, err = keepalive.DialerFunc(ctx, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing monitor %s", addr)
	}
	s, err := NewBrokerSession(conn, subscriberPort, peerPort)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// NewBrokerSession performs the broker handshake over |conn|, and begins
// reading PeerEvents of the monitor.
func NewBrokerSession(conn net.Conn, subscriberPort, peerPort int) (*BrokerSession, error) {
	var s = &BrokerSession{
		conn:   conn,
		wr:     pb.NewWriter(conn),
		events: make(chan pb.PeerEvent, 64),
		done:   make(chan struct{}),
	}
	if err := s.wr.WriteRole(pb.Role_BROKER); err != nil {
		return nil, errors.WithMessage(err, "writing handshake")
	} else if err = s.wr.WriteBrokerPorts(subscriberPort, peerPort); err != nil {
		return nil, errors.WithMessage(err, "writing broker ports")
	}
	go s.readLoop(pb.NewReader(conn))

	return s, nil
}

// SubscribersConnected reports |n| subscriptions added to the broker.
func (s *BrokerSession) SubscribersConnected(n int64) error {
	return s.wr.WriteLoadDelta(pb.Tag_SUBSCRIBER_CONNECTED, n)
}

// SubscribersDisconnected reports |n| subscriptions removed from the broker.
func (s *BrokerSession) SubscribersDisconnected(n int64) error {
	return s.wr.WriteLoadDelta(pb.Tag_SUBSCRIBER_DISCONNECTED, n)
}

// Events returns the PeerEvents pushed by the monitor. The channel is closed
// when the session ends, after which Err returns the reason.
func (s *BrokerSession) Events() <-chan pb.PeerEvent { return s.events }

// Err returns the terminal error of a session whose Events channel has
// closed. A session closed by either side returns nil.
func (s *BrokerSession) Err() error { return s.err }

// LocalAddr is the local address of the session connection.
func (s *BrokerSession) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Close the session. The monitor deregisters the broker.
func (s *BrokerSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *BrokerSession) readLoop(rd *pb.Reader) {
	defer close(s.events)

	for {
		var ev, err = rd.ReadPeerEvent()
		if errors.Cause(err) == io.EOF || errors.Is(err, net.ErrClosed) {
			return
		} else if err != nil {
			s.err = err
			log.WithField("err", err).Warn("broker session read failed")
			_ = s.Close()
			return
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// RequestAllocation dials the monitor at |addr| and requests the allocation
// of |n| new subscriptions across the fleet.
func RequestAllocation(ctx context.Context, addr string, n int64) ([]pb.Allocation, error) {
	var conn, err = keepalive.DialerFunc(ctx, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing monitor %s", addr)
	}
	defer conn.Close()

	var stop = context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	allocs, err := Allocate(conn, n)
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return allocs, err
}

// Allocate performs the subscriber request of |n| new subscriptions over
// |conn|, returning the monitor's Allocations. The caller closes |conn|.
func Allocate(conn net.Conn, n int64) ([]pb.Allocation, error) {
	var wr, rd = pb.NewWriter(conn), pb.NewReader(conn)

	if err := wr.WriteRole(pb.Role_SUBSCRIBER); err != nil {
		return nil, errors.WithMessage(err, "writing handshake")
	} else if err = wr.WriteInt(n); err != nil {
		return nil, errors.WithMessage(err, "writing subscription count")
	}

	var out []pb.Allocation
	for {
		var alloc, done, err = rd.ReadAllocation()

		if len(out) == 0 && isClosed(err) {
			return nil, ErrNoBrokers
		} else if errors.Cause(err) == io.EOF {
			return nil, io.ErrUnexpectedEOF
		} else if err != nil {
			return nil, errors.WithMessage(err, "reading allocation")
		} else if done {
			break
		}
		out = append(out, alloc)
	}

	// Acknowledge receipt, which releases the monitor to close.
	if err := wr.WriteLines(pb.Done); err != nil {
		return nil, errors.WithMessage(err, "writing acknowledgement")
	}
	return out, nil
}

// isClosed returns whether |err| indicates the peer closed the connection,
// either cleanly or by reset.
func isClosed(err error) bool {
	if err == nil {
		return false
	} else if errors.Cause(err) == io.EOF {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "read"
}
