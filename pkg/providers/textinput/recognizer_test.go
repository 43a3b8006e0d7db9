package textinput

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedOnlyWhileListening(t *testing.T) {
	r := New(nil)
	var got []string
	r.SetCallbacks(func(text string) { got = append(got, text) }, func(error) {})
	require.NoError(t, r.Initialize(context.Background()))

	assert.False(t, r.Feed("hello"), "no session yet")
	require.NoError(t, r.StartListening(context.Background()))
	assert.True(t, r.Listening())
	assert.False(t, r.Feed("   "))
	assert.True(t, r.Feed("  hello there "))
	assert.False(t, r.Feed("again"), "one result per session")
	assert.Equal(t, []string{"hello there"}, got)
}

func TestStopWithoutInputFails(t *testing.T) {
	r := New(nil)
	var errs []error
	r.SetCallbacks(func(string) {}, func(err error) { errs = append(errs, err) })
	require.NoError(t, r.StartListening(context.Background()))
	require.NoError(t, r.StopListening())
	require.NoError(t, r.StopListening())
	assert.Equal(t, []error{ErrNoInput}, errs)
}

func TestCancelAndDestroy(t *testing.T) {
	r := New(nil)
	called := false
	r.SetCallbacks(func(string) { called = true }, func(error) { called = true })
	require.NoError(t, r.StartListening(context.Background()))
	require.NoError(t, r.Cancel())
	assert.False(t, r.Feed("hi"))
	assert.False(t, called)

	require.NoError(t, r.Destroy())
	assert.ErrorIs(t, r.StartListening(context.Background()), ErrDestroyed)
	assert.ErrorIs(t, r.Initialize(context.Background()), ErrDestroyed)
}
