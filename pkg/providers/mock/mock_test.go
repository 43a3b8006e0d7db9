package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerCompletesEachPlayOnce(t *testing.T) {
	p := NewPlayer(PlayerConfig{})
	calls := 0
	require.NoError(t, p.Play("greeting", false, "listening", func() { calls++ }))
	require.NoError(t, p.Play("idle", true, "", nil))

	assert.False(t, p.Complete(), "looping play has no completion")
	assert.True(t, p.CompletePlay(0))
	assert.False(t, p.CompletePlay(0))
	assert.Equal(t, 1, calls)
	assert.Equal(t, Play{Clip: "idle", Loop: true}, p.Last())
	assert.Len(t, p.Plays(), 2)
}

func TestPlayerFailNextAndRelease(t *testing.T) {
	p := NewPlayer(PlayerConfig{})
	boom := errors.New("boom")
	p.FailNext(boom)
	assert.ErrorIs(t, p.Play("prompt", false, "", func() {}), boom)
	assert.NoError(t, p.Play("prompt", false, "", func() {}))

	require.NoError(t, p.Release())
	assert.ErrorIs(t, p.Play("idle", true, "", nil), ErrReleased)
	assert.True(t, p.Released())
}

func TestPlayerClipDurationAutoCompletes(t *testing.T) {
	p := NewPlayer(PlayerConfig{ClipDuration: time.Millisecond})
	done := make(chan struct{})
	require.NoError(t, p.Play("goodbye", false, "", func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("play did not complete")
	}
}

func TestRecognizerCancelSuppressesCallbacks(t *testing.T) {
	r := NewRecognizer(RecognizerConfig{})
	var got []string
	r.SetCallbacks(func(text string) { got = append(got, text) }, func(error) {})
	require.NoError(t, r.StartListening(context.Background()))
	assert.True(t, r.Listening())

	require.NoError(t, r.Cancel())
	assert.False(t, r.Recognize("hello"))
	assert.Empty(t, got)

	assert.True(t, r.ResultFor(0, "late"), "forced delivery reaches the old callbacks")
	assert.Equal(t, []string{"late"}, got)
}

func TestRecognizerSingleOutcomePerSession(t *testing.T) {
	r := NewRecognizer(RecognizerConfig{})
	results, failures := 0, 0
	r.SetCallbacks(func(string) { results++ }, func(error) { failures++ })
	require.NoError(t, r.StartListening(context.Background()))

	assert.True(t, r.Recognize("hello"))
	assert.False(t, r.Fail(errors.New("late")))
	assert.Equal(t, 1, results)
	assert.Equal(t, 0, failures)
}

func TestRecognizerScript(t *testing.T) {
	r := NewRecognizer(RecognizerConfig{Script: []string{"hello", ""}})
	got := make(chan string, 2)
	r.SetCallbacks(func(text string) { got <- text }, func(err error) { got <- "error:" + err.Error() })

	require.NoError(t, r.StartListening(context.Background()))
	assert.Equal(t, "hello", <-got)
	require.NoError(t, r.StartListening(context.Background()))
	assert.Equal(t, "error:"+errScripted.Error(), <-got)
	require.NoError(t, r.Destroy())
	assert.True(t, r.Destroyed())
}
