package phase

import (
	"testing"

	"github.com/harunnryd/avatarchat/pkg/intent"
	"github.com/stretchr/testify/assert"
)

func TestDirectiveTable(t *testing.T) {
	cases := []struct {
		phase Phase
		want  Directive
	}{
		{Idle, Directive{Clip: "idle", Loop: true}},
		{Greeting, Directive{Clip: "greeting", FollowUp: "listening"}},
		{Listening, Directive{Clip: "listening", Loop: true}},
		{Responding(intent.Greeting), Directive{Clip: "greeting"}},
		{Responding(intent.Weather), Directive{Clip: "weather"}},
		{Responding(intent.General), Directive{Clip: "general"}},
		{Responding(intent.Goodbye), Directive{Clip: "goodbye"}},
		{Prompt, Directive{Clip: "prompt"}},
		{Goodbye, Directive{Clip: "goodbye"}},
		{Fallback, Directive{Clip: "fallback"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DirectiveFor(tc.phase), "phase=%s", tc.phase)
	}
}

func TestOnlyIdleAndListeningLoop(t *testing.T) {
	for _, p := range []Phase{Greeting, Prompt, Goodbye, Fallback, Responding(intent.Weather)} {
		assert.False(t, DirectiveFor(p).Loop, "phase=%s", p)
	}
}

func TestPhaseEquality(t *testing.T) {
	assert.Equal(t, Responding(intent.Weather), Responding(intent.Weather))
	assert.NotEqual(t, Responding(intent.Weather), Responding(intent.General))
	assert.True(t, Responding(intent.Goodbye).Is(StageResponding))
	assert.Equal(t, "responding(weather)", Responding(intent.Weather).String())
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "Listening...", StatusText(Listening))
	assert.Equal(t, "Talking about weather...", StatusText(Responding(intent.Weather)))
	assert.Equal(t, "Are you still there?", StatusText(Prompt))
	assert.Equal(t, "Responding...", StatusText(Responding(intent.General)))
}
