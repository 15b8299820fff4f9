// Package server binds the single TCP port of a fleetmon process and splits
// its connections between the monitor line protocol and HTTP.
package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/soheilhy/cmux"
	"go.gazette.dev/fleetmon/keepalive"
	"go.gazette.dev/fleetmon/task"
)

// Server sniffs each accepted connection of RawListener. One which opens
// with an HTTP/1 request line is delivered to HTTPListener and served by
// HTTPMux, and any other is delivered to MonitorListener.
type Server struct {
	// Bound socket of the Server.
	RawListener *net.TCPListener
	// Connection matcher over RawListener.
	CMux cmux.CMux
	// Connections of HTTP/1 clients.
	HTTPListener net.Listener
	// Connections of monitor protocol clients.
	MonitorListener net.Listener
	// Handlers of HTTPListener. Defaults to http.DefaultServeMux, where
	// diagnostics are registered.
	HTTPMux *http.ServeMux
	// Ctx is Done after GracefulStop.
	Ctx context.Context

	cancel context.CancelFunc
}

// Config of a Server.
type Config struct {
	KeepAlive    time.Duration `long:"keepalive" env:"KEEPALIVE" default:"30s" description:"TCP keep-alive period of accepted connections"`
	SniffTimeout time.Duration `long:"sniff-timeout" env:"SNIFF_TIMEOUT" default:"10s" description:"Timeout for a new connection to send enough bytes to identify its protocol. Zero disables the timeout"`
}

// New binds |port| of network interface |iface| (all interfaces if empty)
// and returns a Server of it. A zero |port| binds an ephemeral port.
func New(iface string, port uint16, cfg Config) (*Server, error) {
	var addr = net.JoinHostPort(iface, strconv.Itoa(int(port)))

	var ln, err = net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to bind service address (%s)", addr)
	}
	var raw = ln.(*net.TCPListener)

	var mux = cmux.New(keepalive.TCPListener{TCPListener: raw, KeepAlive: cfg.KeepAlive})
	if cfg.SniffTimeout != 0 {
		mux.SetReadTimeout(cfg.SniffTimeout)
	}
	mux.HandleError(func(err error) bool {
		// Timeouts and resets of a sniffed connection are routine.
		if _, ok := err.(net.Error); !ok {
			log.WithField("err", err).Warn("failed to match a connection protocol")
		}
		return true
	})

	var ctx, cancel = context.WithCancel(context.Background())

	return &Server{
		RawListener: raw,
		CMux:        mux,
		// Order matters: cmux tries matchers in registration order.
		HTTPListener:    mux.Match(cmux.HTTP1Fast()),
		MonitorListener: mux.Match(cmux.Any()),
		HTTPMux:         http.DefaultServeMux,
		Ctx:             ctx,
		cancel:          cancel,
	}, nil
}

// Endpoint is the bound host:port of the Server.
func (s *Server) Endpoint() string {
	return s.RawListener.Addr().String()
}

// QueueTasks queues the CMux matcher, the HTTP server, and a task which
// calls GracefulStop when |tg| is cancelled. MonitorListener is served by
// the caller, and yields connections only once the CMux task is running.
func (s *Server) QueueTasks(tg *task.Group) {
	// Other tasks of |tg| may close a CMux Listener (and with it, RawListener)
	// as they observe cancellation, ahead of GracefulStop.
	var stopping = func() bool { return s.Ctx.Err() != nil || tg.Context().Err() != nil }

	tg.Queue("CMux.Serve", func() error {
		if err := s.CMux.Serve(); err != nil && !stopping() {
			return errors.Wrap(err, "matching connections")
		}
		return nil
	})
	tg.Queue("http.Serve", func() error {
		if err := http.Serve(s.HTTPListener, s.HTTPMux); err != nil && !stopping() {
			return errors.Wrap(err, "serving HTTP")
		}
		return nil
	})
	tg.Queue("server.GracefulStop", func() error {
		<-tg.Context().Done()
		s.GracefulStop()
		return nil
	})
}

// GracefulStop marks the Server as stopping and closes RawListener, which
// closes each CMux Listener in turn. Connections already handed off to
// HTTPListener or MonitorListener are unaffected.
func (s *Server) GracefulStop() {
	s.cancel()
	_ = s.RawListener.Close()
}
