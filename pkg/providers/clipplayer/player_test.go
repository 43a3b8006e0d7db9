package clipplayer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/avatarchat/pkg/errorsx"
)

func newTestPlayer(d time.Duration) *Player {
	return New(Config{DefaultDuration: d, Clips: map[string]time.Duration{"wave": d}}, nil)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("playback did not complete")
	}
}

func TestUnknownClipIsRejected(t *testing.T) {
	p := newTestPlayer(time.Millisecond)
	err := p.Play("dance", false, "", func() {})
	assert.ErrorIs(t, err, ErrClipNotFound)
	assert.True(t, errorsx.HasReason(err, errorsx.ReasonPlayerClipNotFound))

	err = p.Play("greeting", false, "dance", func() {})
	assert.ErrorIs(t, err, ErrClipNotFound)
	assert.Contains(t, p.Clips(), "wave")
}

func TestCompletionFiresAfterFollowUp(t *testing.T) {
	p := newTestPlayer(20 * time.Millisecond)
	done := make(chan struct{})
	start := time.Now()
	require.NoError(t, p.Play("greeting", false, "listening", func() { close(done) }))

	require.Eventually(t, func() bool { return p.State().Clip == "listening" }, time.Second, time.Millisecond)
	waitDone(t, done)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, State{Clip: "listening"}, p.State())
}

func TestLoopingClipOnScreenContinues(t *testing.T) {
	p := newTestPlayer(5 * time.Millisecond)
	done := make(chan struct{})
	require.NoError(t, p.Play("greeting", false, "listening", func() { close(done) }))
	waitDone(t, done)

	require.NoError(t, p.Play("listening", true, "", nil))
	assert.Equal(t, State{Clip: "listening", Loop: true}, p.State())
}

func TestReplacedPlaybackNeverCompletes(t *testing.T) {
	p := newTestPlayer(10 * time.Millisecond)
	fired := make(chan string, 2)
	require.NoError(t, p.Play("greeting", false, "", func() { fired <- "greeting" }))
	require.NoError(t, p.Play("goodbye", false, "", func() { fired <- "goodbye" }))

	assert.Equal(t, "goodbye", <-fired)
	select {
	case got := <-fired:
		t.Fatalf("unexpected completion for %s", got)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestLoopHasNoCompletion(t *testing.T) {
	p := newTestPlayer(time.Millisecond)
	fired := false
	require.NoError(t, p.Play("idle", true, "", func() { fired = true }))
	time.Sleep(10 * time.Millisecond)
	assert.False(t, fired)
}

func TestPauseHoldsRemainingTime(t *testing.T) {
	p := newTestPlayer(30 * time.Millisecond)
	done := make(chan struct{})
	require.NoError(t, p.Play("prompt", false, "", func() { close(done) }))
	require.NoError(t, p.Pause())
	assert.True(t, p.State().Paused)

	select {
	case <-done:
		t.Fatal("paused clip completed")
	case <-time.After(60 * time.Millisecond):
	}

	require.NoError(t, p.Resume())
	waitDone(t, done)
}

func TestReleaseStopsEverything(t *testing.T) {
	p := newTestPlayer(5 * time.Millisecond)
	fired := make(chan struct{}, 1)
	require.NoError(t, p.Play("prompt", false, "", func() { fired <- struct{}{} }))
	require.NoError(t, p.Release())

	assert.ErrorIs(t, p.Play("idle", true, "", nil), ErrReleased)
	assert.ErrorIs(t, p.Pause(), ErrReleased)
	select {
	case <-fired:
		t.Fatal("released player completed a clip")
	case <-time.After(20 * time.Millisecond):
	}
}
