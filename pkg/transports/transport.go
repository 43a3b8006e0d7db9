package transports

import (
	"context"
	"strings"

	"github.com/harunnryd/avatarchat/pkg/conversation"
)

// CommandType names a UI request routed to the conversation machine.
type CommandType string

const (
	CommandStart       CommandType = "start"
	CommandEnd         CommandType = "end"
	CommandTogglePause CommandType = "toggle_pause"
	CommandPause       CommandType = "pause"
	CommandResume      CommandType = "resume"
	CommandStop        CommandType = "stop"
	CommandSay         CommandType = "say"
)

// Command is a UI request. Text is only set for CommandSay.
type Command struct {
	Type     CommandType `json:"type"`
	Text     string      `json:"text,omitempty"`
	ClientID string      `json:"-"`
}

// ParseCommandType maps a wire name to a known command type.
func ParseCommandType(name string) (CommandType, bool) {
	switch ct := CommandType(strings.ToLower(strings.TrimSpace(name))); ct {
	case CommandStart, CommandEnd, CommandTogglePause, CommandPause, CommandResume, CommandStop, CommandSay:
		return ct, true
	default:
		return "", false
	}
}

// Transport defines a vendor-agnostic UI boundary: commands flow in,
// machine notifications flow out. Implementations own their network
// lifecycle.
type Transport interface {
	conversation.Listener
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Commands() <-chan Command
}

// ReadyReporter allows transports to expose readiness metadata (e.g., listen
// addresses). Implementations are optional and used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}

// SnapshotSetter lets a transport greet new clients with the current phase.
type SnapshotSetter interface {
	SetSnapshot(func() conversation.PhaseChanged)
}
