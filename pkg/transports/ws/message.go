package ws

import (
	"github.com/harunnryd/avatarchat/pkg/conversation"
	"github.com/harunnryd/avatarchat/pkg/phase"
)

const (
	typeSnapshot = "snapshot"
	typeError    = "error"
)

// Message is the JSON shape pushed to UI clients.
type Message struct {
	Type           string `json:"type"`
	From           string `json:"from,omitempty"`
	To             string `json:"to,omitempty"`
	Status         string `json:"status,omitempty"`
	Clip           string `json:"clip,omitempty"`
	Loop           bool   `json:"loop,omitempty"`
	FollowUp       string `json:"follow_up,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Text           string `json:"text,omitempty"`
	Kind           string `json:"kind,omitempty"`
	Held           *bool  `json:"held,omitempty"`
	ByUser         *bool  `json:"by_user,omitempty"`
	Error          string `json:"error,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// inbound is what clients send.
type inbound struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func encodeNotification(n conversation.Notification) (Message, bool) {
	switch v := n.(type) {
	case conversation.PhaseChanged:
		return phaseMessage(v.Type(), v), true
	case conversation.TextRecognized:
		return Message{
			Type:           v.Type(),
			Text:           v.Text,
			Kind:           v.Kind.String(),
			ConversationID: v.ConversationID,
		}, true
	case conversation.PermissionRequired:
		msg := Message{Type: v.Type()}
		if v.Err != nil {
			msg.Error = v.Err.Error()
		}
		return msg, true
	case conversation.SuspensionChanged:
		held, byUser := v.Held, v.ByUser
		return Message{Type: v.Type(), Held: &held, ByUser: &byUser}, true
	default:
		return Message{}, false
	}
}

func phaseMessage(typ string, pc conversation.PhaseChanged) Message {
	d := phase.DirectiveFor(pc.To)
	msg := Message{
		Type:           typ,
		To:             pc.To.String(),
		Status:         phase.StatusText(pc.To),
		Clip:           d.Clip,
		Loop:           d.Loop,
		FollowUp:       d.FollowUp,
		Reason:         pc.Reason,
		ConversationID: pc.ConversationID,
	}
	if typ != typeSnapshot {
		msg.From = pc.From.String()
	}
	return msg
}
