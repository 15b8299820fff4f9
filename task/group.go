// Package task runs a named set of long-lived goroutines as a unit: they
// start together, share a cancellable Context, and are waited on together.
package task

import (
	"context"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Group runs queued tasks concurrently. The Group Context is cancelled when
// a task returns an error, when Cancel is called, or when the parent Context
// passed to NewGroup is cancelled, and every task must return promptly once
// that happens. Queue, GoRun and Wait are to be called from one goroutine.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group

	queued  []queuedTask
	running bool
}

type queuedTask struct {
	name string
	fn   func() error
}

// NewGroup returns an empty Group deriving from |parent|.
func NewGroup(parent context.Context) *Group {
	var ctx, cancel = context.WithCancel(parent)
	var eg, egCtx = errgroup.WithContext(ctx)

	return &Group{ctx: egCtx, cancel: cancel, eg: eg}
}

// Context of the Group.
func (g *Group) Context() context.Context { return g.ctx }

// Cancel the Group Context, asking all tasks to return.
func (g *Group) Cancel() { g.cancel() }

// Queue |fn| to be run under |name| by GoRun. A non-nil error returned by
// |fn| is prefixed with |name| and cancels the Group.
// Queue panics if GoRun has been called.
func (g *Group) Queue(name string, fn func() error) {
	if g.running {
		panic("Queue called after GoRun")
	}
	g.queued = append(g.queued, queuedTask{name: name, fn: fn})
}

// QueueCancelOnSignal queues a task which cancels the Group upon the first
// of |signals|. Signals are captured from the time of the call, rather than
// from GoRun. The task returns without effect if the Group is otherwise
// cancelled.
func (g *Group) QueueCancelOnSignal(signals ...os.Signal) {
	var ch = make(chan os.Signal, 1)
	signal.Notify(ch, signals...)

	g.Queue("cancelOnSignal", func() error {
		defer signal.Stop(ch)

		select {
		case sig := <-ch:
			log.WithField("signal", sig).Info("caught signal; cancelling tasks")
			g.Cancel()
		case <-g.ctx.Done():
		}
		return nil
	})
}

// GoRun starts all queued tasks. It panics if called more than once.
func (g *Group) GoRun() {
	if g.running {
		panic("GoRun already called")
	}
	g.running = true

	for _, t := range g.queued {
		var t = t
		g.eg.Go(func() error {
			var err = t.fn()
			if err != nil {
				log.WithFields(log.Fields{"task": t.name, "err": err}).Debug("task failed")
			}
			return errors.WithMessage(err, t.name)
		})
	}
}

// Wait until every task has returned, and return the first task error.
// It panics if GoRun hasn't been called.
func (g *Group) Wait() error {
	if !g.running {
		panic("Wait called before GoRun")
	}
	var err = g.eg.Wait()
	g.cancel()
	return err
}
