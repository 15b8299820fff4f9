package monitor

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	pb "go.gazette.dev/fleetmon/monitor/protocol"
	"go.gazette.dev/fleetmon/task"
)

var (
	// ErrAlreadyRunning is returned by Serve of a Monitor which is already serving.
	ErrAlreadyRunning = errors.New("monitor already running")
	// ErrNotRunning is returned by Stop of a Monitor which isn't serving.
	ErrNotRunning = errors.New("monitor not running")
)

// Config of a Monitor.
type Config struct {
	Overshoot        OvershootPolicy `long:"overshoot" env:"OVERSHOOT" default:"spread" choice:"spread" choice:"last" description:"Policy for absorbing the rounding overshoot of a rebalancing. 'spread' removes it one subscription per broker, keeping final loads within one of each other. 'last' is the legacy allocation, which charges it all to the last broker"`
	ClampNegative    bool            `long:"clamp-negative" env:"CLAMP_NEGATIVE" description:"Clamp broker subscription counts at zero, rather than trusting reported deltas which drive a count negative"`
	NoPeerBroadcast  bool            `long:"no-peer-broadcast" env:"NO_PEER_BROADCAST" description:"Disable broadcast of broker join and leave events to connected brokers"`
	PeerWriteTimeout time.Duration   `long:"peer-write-timeout" env:"PEER_WRITE_TIMEOUT" default:"5s" description:"Timeout for delivering a peer event to a broker. Zero disables the timeout"`
}

// Validate returns an error if the Config is not well-formed.
func (cfg Config) Validate() error {
	if err := cfg.Overshoot.Validate(); err != nil {
		return pb.ExtendContext(err, "Overshoot")
	} else if cfg.PeerWriteTimeout < 0 {
		return pb.NewValidationError("invalid PeerWriteTimeout (%s; expected >= 0)", cfg.PeerWriteTimeout)
	}
	return nil
}

// Monitor serves broker sessions and subscriber allocation requests over
// the connections of a net.Listener.
type Monitor struct {
	// Registry of live brokers and their subscription counts.
	Registry *Registry
	// Peers to which broker membership events are broadcast.
	Peers *PeerList

	cfg Config

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// New returns a Monitor of the Config. An empty Overshoot policy defaults
// to OvershootSpread.
func New(cfg Config) (*Monitor, error) {
	if cfg.Overshoot == "" {
		cfg.Overshoot = OvershootSpread
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "monitor config")
	}
	var reg = NewRegistry()
	reg.ClampNegative = cfg.ClampNegative

	return &Monitor{
		Registry: reg,
		Peers:    NewPeerList(),
		cfg:      cfg,
	}, nil
}

// Serve accepts connections of |ln|, serving each on its own goroutine until
// |ctx| is cancelled or Stop is called. At that point |ln| and all open
// connections are closed, and Serve returns once every connection handler
// has exited. Serve returns ErrAlreadyRunning if the Monitor is already serving.
func (m *Monitor) Serve(ctx context.Context, ln net.Listener) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	var doneCh = make(chan struct{})
	m.running, m.cancel, m.doneCh = true, cancel, doneCh
	m.mu.Unlock()

	// Closing the listener unblocks a pending Accept.
	var stopClose = context.AfterFunc(ctx, func() { _ = ln.Close() })
	var wg sync.WaitGroup

	defer func() {
		cancel()
		if stopClose() {
			_ = ln.Close()
		}
		wg.Wait()

		m.mu.Lock()
		m.running, m.cancel = false, nil
		close(doneCh)
		m.mu.Unlock()
	}()

	log.WithField("addr", ln.Addr()).Info("monitor serving")

	var backoff time.Duration
	for {
		var conn, err = ln.Accept()

		if err != nil && ctx.Err() != nil {
			return nil // Swallow error after Stop.
		} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
			backoff = acceptBackoff(backoff)
			log.WithFields(log.Fields{"err": err, "backoff": backoff}).
				Warn("transient error accepting monitor connection")
			time.Sleep(backoff)
			continue
		} else if err != nil {
			return errors.Wrap(err, "accepting monitor connection")
		}
		backoff = 0

		wg.Add(1)
		go func() {
			defer wg.Done()
			m.ServeConn(ctx, conn)
		}()
	}
}

// Stop a serving Monitor, blocking until Serve has returned.
// Stop returns ErrNotRunning if the Monitor isn't serving.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	var cancel, doneCh = m.cancel, m.doneCh
	m.mu.Unlock()

	cancel()
	<-doneCh
	return nil
}

// Running returns whether the Monitor is serving.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.running
}

// QueueTasks queues Serve of |ln| onto the task.Group. Serve runs until the
// Group is cancelled.
func (m *Monitor) QueueTasks(tg *task.Group, ln net.Listener) {
	tg.Queue("monitor.Serve", func() error {
		return m.Serve(tg.Context(), ln)
	})
}

// Allocate computes the rebalancing of |n| new subscriptions against a
// Snapshot of the Registry. It returns ErrNoBrokers if the fleet is empty.
func (m *Monitor) Allocate(n int64) ([]pb.Allocation, Snapshot, error) {
	var snap = m.Registry.Snapshot()
	var allocs, err = Rebalance(snap.Brokers, n, m.cfg.Overshoot)
	return allocs, snap, err
}

// Config returns the Config of the Monitor.
func (m *Monitor) Config() Config { return m.cfg }

func acceptBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	} else if d *= 2; d > time.Second {
		return time.Second
	}
	return d
}
