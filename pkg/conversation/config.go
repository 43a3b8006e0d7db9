package conversation

import "time"

const (
	DefaultSettleDelay       = 300 * time.Millisecond
	DefaultResumeDelay       = 300 * time.Millisecond
	DefaultForegroundDelay   = 500 * time.Millisecond
	DefaultSilenceTimeout    = 10 * time.Second
	DefaultMaxSilencePrompts = 2
	DefaultMaxSpeechFailures = 3
	DefaultQueueSize         = 64
)

// Config tunes the machine's timing and escalation policy. Zero values take
// the defaults above.
type Config struct {
	// SettleDelay separates entering Listening from starting capture.
	SettleDelay time.Duration
	// ResumeDelay applies when the user releases a manual pause.
	ResumeDelay time.Duration
	// ForegroundDelay applies when the host returns to the foreground.
	ForegroundDelay time.Duration
	// SilenceTimeout is the listening window before escalation.
	SilenceTimeout time.Duration
	// MaxSilencePrompts is the timeout count that ends the conversation.
	MaxSilencePrompts int
	// MaxSpeechFailures consecutive failures stop further listening
	// attempts until the next conversation.
	MaxSpeechFailures int
	QueueSize         int
	Clock             Clock
}

func (c Config) withDefaults() Config {
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.ResumeDelay <= 0 {
		c.ResumeDelay = DefaultResumeDelay
	}
	if c.ForegroundDelay <= 0 {
		c.ForegroundDelay = DefaultForegroundDelay
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = DefaultSilenceTimeout
	}
	if c.MaxSilencePrompts <= 0 {
		c.MaxSilencePrompts = DefaultMaxSilencePrompts
	}
	if c.MaxSpeechFailures <= 0 {
		c.MaxSpeechFailures = DefaultMaxSpeechFailures
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Clock == nil {
		c.Clock = RealClock()
	}
	return c
}
