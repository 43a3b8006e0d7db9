package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonRecognizerInit        ReasonCode = "recognizer_init"
	ReasonRecognizerUnavailable ReasonCode = "recognizer_unavailable"
	ReasonRecognizerStart       ReasonCode = "recognizer_start"
	ReasonRecognizerStop        ReasonCode = "recognizer_stop"
	ReasonRecognizerStream      ReasonCode = "recognizer_stream"
	ReasonRecognizerCircuitOpen ReasonCode = "recognizer_circuit_open"

	ReasonPlayerPlay         ReasonCode = "player_play"
	ReasonPlayerControl      ReasonCode = "player_control"
	ReasonPlayerClipNotFound ReasonCode = "player_clip_not_found"

	ReasonTransportSend   ReasonCode = "transport_send"
	ReasonTransportDecode ReasonCode = "transport_decode"

	ReasonConfig ReasonCode = "config"
)
