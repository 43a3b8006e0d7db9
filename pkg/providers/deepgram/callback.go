package deepgram

import (
	"fmt"
	"log/slog"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"

	"github.com/harunnryd/avatarchat/pkg/errorsx"
)

// callback receives live transcription messages for one session.
type callback struct {
	r *Recognizer
	s *session
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.r.logger.Debug("deepgram_connection_opened", slog.Uint64("session", c.s.id))
	return nil
}

// Message collects finalized segments and resolves the session once the
// speaker finished.
func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	transcript := mr.Channel.Alternatives[0].Transcript
	if !mr.IsFinal {
		return nil
	}
	text := c.s.appendFinal(transcript)
	if mr.SpeechFinal && text != "" {
		c.r.finish(c.s, text, nil)
	}
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	c.r.logger.Debug("deepgram_metadata_received",
		slog.Uint64("session", c.s.id),
		slog.String("request_id", md.RequestID))
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	c.r.logger.Debug("deepgram_speech_started", slog.Uint64("session", c.s.id))
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	if text := c.s.appendFinal(""); text != "" {
		c.r.finish(c.s, text, nil)
	}
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	if text := c.s.appendFinal(""); text != "" {
		c.r.finish(c.s, text, nil)
		return nil
	}
	c.r.finish(c.s, "", errorsx.WrapOp(errClosed, errorsx.ReasonRecognizerStream, "close"))
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.r.logger.Warn("deepgram_error",
		slog.Uint64("session", c.s.id),
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	err := fmt.Errorf("deepgram %s: %s", er.ErrCode, er.ErrMsg)
	c.r.finish(c.s, "", errorsx.WrapOp(err, errorsx.ReasonRecognizerStream, "message"))
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.r.logger.Debug("deepgram_unhandled_event", slog.Uint64("session", c.s.id), slog.Int("bytes", len(byData)))
	return nil
}

var _ msginterfaces.LiveMessageCallback = (*callback)(nil)
