package runner

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDrainsOnContextCancel(t *testing.T) {
	var order []string
	r := NewLifecycleRunner(DrainerFunc(func() error {
		order = append(order, "drain")
		return nil
	}), Hooks{
		OnStart: func() { order = append(order, "start") },
		OnStop:  func() { order = append(order, "stop") },
	}, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	require.Eventually(t, func() bool { return r.State() == StateRunning }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-errc)
	assert.Equal(t, StateStopped, r.State())
	assert.Equal(t, []string{"start", "drain", "stop"}, order)
	assert.ErrorIs(t, r.Run(context.Background()), ErrInvalidState)
}

func TestStopBeforeRunRejectsRun(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{}, time.Second, nil)
	require.NoError(t, r.Stop())
	assert.Equal(t, StateStopped, r.State())
	assert.ErrorIs(t, r.Run(context.Background()), ErrInvalidState)
}

func TestDrainTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	r := NewLifecycleRunner(DrainerFunc(func() error {
		<-block
		return nil
	}), Hooks{}, 10*time.Millisecond, nil)
	assert.ErrorIs(t, r.Stop(), ErrDrainTimeout)
}

func TestDrainErrorIsReturned(t *testing.T) {
	boom := errors.New("boom")
	r := NewLifecycleRunner(DrainerFunc(func() error { return boom }), Hooks{}, time.Second, nil)
	assert.ErrorIs(t, r.Stop(), boom)
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.Contains(t, buf.String(), "Version: "+Version)
	PrintBanner(nil)
	assert.Equal(t, "running", StateRunning.String())
}
