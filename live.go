package conveyor

// LiveMode is the live streaming switch of the acquisition source. The
// pipe pauses live streaming while the enable state of a stage changes.
type LiveMode interface {
	IsStreaming() bool
	SetStreaming(bool)
}

// EnabledEvent is published after the enable state of a stage changed.
type EnabledEvent struct {
	Pipe    string
	StageID string
	Stage   string
	Enabled bool
	// Paused is true if live streaming was paused for the change.
	Paused bool
}
