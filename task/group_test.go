package task

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupCancelsOnFirstError(t *testing.T) {
	var tg = NewGroup(context.Background())

	tg.Queue("waits", func() error {
		<-tg.Context().Done()
		return nil
	})
	tg.Queue("fails", func() error { return errors.New("whoops") })

	tg.GoRun()
	assert.EqualError(t, tg.Wait(), "fails: whoops")
	assert.Equal(t, context.Canceled, tg.Context().Err())
}

func TestGroupExplicitCancel(t *testing.T) {
	var tg = NewGroup(context.Background())
	tg.Queue("waits", func() error {
		<-tg.Context().Done()
		return nil
	})
	tg.GoRun()
	tg.Cancel()

	assert.NoError(t, tg.Wait())
}

func TestGroupCancelOnSignal(t *testing.T) {
	var tg = NewGroup(context.Background())
	tg.QueueCancelOnSignal(syscall.SIGUSR1)
	tg.Queue("signal", func() error {
		return syscall.Kill(syscall.Getpid(), syscall.SIGUSR1)
	})
	tg.GoRun()

	assert.NoError(t, tg.Wait())
	assert.Error(t, tg.Context().Err())
}

func TestGroupMisusePanics(t *testing.T) {
	var tg = NewGroup(context.Background())
	assert.Panics(t, func() { _ = tg.Wait() })

	tg.GoRun()
	assert.Panics(t, func() { tg.GoRun() })
	assert.Panics(t, func() { tg.Queue("late", func() error { return nil }) })
	assert.NoError(t, tg.Wait())
}

func TestGroupParentCancellation(t *testing.T) {
	var parent, cancel = context.WithCancel(context.Background())
	var tg = NewGroup(parent)

	var order []string
	tg.Queue("waits", func() error {
		<-tg.Context().Done()
		order = append(order, "waits")
		return nil
	})
	tg.GoRun()
	cancel()

	assert.NoError(t, tg.Wait())
	assert.Equal(t, []string{"waits"}, order)
}

func TestGroupWaitReleasesContext(t *testing.T) {
	var tg = NewGroup(context.Background())
	tg.Queue("returns", func() error { return nil })
	tg.GoRun()

	assert.NoError(t, tg.Wait())
	assert.Equal(t, context.Canceled, tg.Context().Err())
}
