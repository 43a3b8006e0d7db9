package video

// Player defines the contract for any video playback backend.
type Player interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Play replaces whatever is on screen with clip. When followUp is set it
	// is staged to play right after clip. onCompleted fires at most once per
	// call, only for non-looping playback, and when a follow-up is staged
	// only after the follow-up ends.
	Play(clip string, loop bool, followUp string, onCompleted func()) error
	// Pause freezes playback at the current position.
	Pause() error
	// Resume continues paused playback.
	Resume() error
	// Release frees the backend; later calls may fail.
	Release() error
}
