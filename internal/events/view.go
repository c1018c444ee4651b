package events

import "time"

// Run modes.
const (
	ModeMaterialize = "materialize"
	ModeRecompute   = "recompute"
)

// RunStart is emitted before a view run resolves any entity.
type RunStart struct {
	View string
	Mode string
}

// RunFinish is emitted after a view run has written its results.
// Documents counts the view documents written.
type RunFinish struct {
	View      string
	Mode      string
	Documents int
	Err       error
	Duration  time.Duration
}
