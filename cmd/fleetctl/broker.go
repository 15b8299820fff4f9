package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	mbp "go.gazette.dev/fleetmon/mainboilerplate"
	"go.gazette.dev/fleetmon/monitor/client"
	pb "go.gazette.dev/fleetmon/monitor/protocol"
	"go.gazette.dev/fleetmon/task"
)

type cmdBroker struct {
	SubscriberPort int `long:"subscriber-port" required:"true" description:"Port at which subscribers reach the broker"`
	PeerPort       int `long:"peer-port" required:"true" description:"Port at which peer brokers reach the broker"`
}

func init() {
	commands.AddCommand("", "broker", "Attach to the monitor as a broker", `
Attach to the monitor as a broker having the given ports, and hold the
session open until stdin is closed or fleetctl is signaled.

Each line of stdin reports a change of the broker's subscriptions:
>    +5    Five subscribers connected.
>    -3    Three subscribers disconnected.
>    2     Two subscribers connected.

Membership events of other brokers joining and leaving the fleet are logged
as they're received. Closing the session deregisters the broker.
`, &cmdBroker{})
}

func (cmd *cmdBroker) Execute([]string) error {
	startup()

	var tasks = task.NewGroup(context.Background())
	var session, err = client.DialBroker(tasks.Context(), baseCfg.Monitor.Address, cmd.SubscriberPort, cmd.PeerPort)
	mbp.Must(err, "failed to open broker session")

	log.WithFields(log.Fields{
		"monitor":        baseCfg.Monitor.Address,
		"local":          session.LocalAddr(),
		"subscriberPort": cmd.SubscriberPort,
		"peerPort":       cmd.PeerPort,
	}).Info("broker session opened")

	tasks.Queue("session.Events", func() error {
		for ev := range session.Events() {
			log.WithFields(log.Fields{
				"tag":      ev.Tag,
				"ip":       ev.IP,
				"peerPort": ev.PeerPort,
			}).Info("peer event")
		}
		if tasks.Context().Err() != nil {
			return nil
		} else if err := session.Err(); err != nil {
			return err
		}
		return errors.New("monitor closed the broker session")
	})
	tasks.Queue("stdin", func() error {
		return reportDeltas(tasks.Context(), os.Stdin, session, tasks.Cancel)
	})
	tasks.Queue("session.Close", func() error {
		<-tasks.Context().Done()
		return session.Close()
	})
	tasks.QueueCancelOnSignal(syscall.SIGTERM, syscall.SIGINT)
	tasks.GoRun()

	mbp.Must(tasks.Wait(), "broker session failed")
	log.Info("broker session closed")

	return nil
}

// loadReporter is the subset of client.BrokerSession used to report deltas.
type loadReporter interface {
	SubscribersConnected(n int64) error
	SubscribersDisconnected(n int64) error
}

// reportDeltas reads subscription deltas from lines of |r| and reports them
// through |lr|, until |ctx| is cancelled or |r| reaches EOF. At EOF, |done|
// is called.
func reportDeltas(ctx context.Context, r io.Reader, lr loadReporter, done func()) error {
	var lines = make(chan string)
	var readErr = make(chan error, 1)

	// Reads of |r| cannot be cancelled, so they happen on a detached goroutine.
	go func() {
		var sc = bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return errors.Wrap(err, "reading stdin")
			}
			done()
			return nil
		case line := <-lines:
			var tag, n, err = parseDelta(line)
			if err != nil {
				log.WithFields(log.Fields{"line": line, "err": err}).Warn("skipping invalid delta")
				continue
			} else if n == 0 {
				continue
			}

			if tag == pb.Tag_SUBSCRIBER_CONNECTED {
				err = lr.SubscribersConnected(n)
			} else {
				err = lr.SubscribersDisconnected(n)
			}
			if err != nil {
				return errors.WithMessage(err, "reporting subscriptions")
			}
			log.WithFields(log.Fields{"tag": tag, "n": n}).Debug("reported subscriptions")
		}
	}
}

// parseDelta parses a signed subscription delta into its Tag and magnitude.
// Blank lines parse as a zero delta.
func parseDelta(line string) (pb.Tag, int64, error) {
	if line = strings.TrimSpace(line); line == "" {
		return pb.Tag_SUBSCRIBER_CONNECTED, 0, nil
	}
	var n, err = strconv.ParseInt(line, 10, 64)
	if err != nil {
		return pb.Tag_INVALID, 0, errors.Wrap(err, "parsing delta")
	} else if n < 0 {
		return pb.Tag_SUBSCRIBER_DISCONNECTED, -n, nil
	}
	return pb.Tag_SUBSCRIBER_CONNECTED, n, nil
}
