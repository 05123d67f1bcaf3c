package pipeline

import (
	"time"

	"github.com/google/uuid"

	"voiceloom/internal/monitor"
	"voiceloom/internal/services"
)

// State is the lifecycle position of a run. Failed is terminal; every other
// state advances toward Done.
type State string

const (
	StateInit           State = "init"
	StateTranscribing   State = "transcribing"
	StateDiarizing      State = "diarizing"
	StateMerging        State = "merging"
	StatePostProcessing State = "postprocessing"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Artifacts holds the file paths a run produced. Intermediate paths are
// empty unless intermediates were kept.
type Artifacts struct {
	Audio      string
	Captions   string
	Speakers   string
	Transcript string
}

// Run carries the per-run context threaded through every stage: identity,
// lifecycle state, stage results, and produced artifacts.
type Run struct {
	ID        string
	Source    string
	State     State
	StartedAt time.Time
	Stages    *monitor.Log
	Artifacts Artifacts

	err error
}

func newRun(source string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Source:    source,
		State:     StateInit,
		StartedAt: time.Now().UTC(),
		Stages:    monitor.NewLog(),
	}
}

func (r *Run) setState(state State) {
	r.State = state
}

func (r *Run) fail(err error) error {
	r.State = StateFailed
	r.err = err
	return err
}

// Err returns the failure that terminated the run, if any.
func (r *Run) Err() error {
	return r.err
}

// ErrorKind returns the stable classification of the run failure.
func (r *Run) ErrorKind() string {
	if r.err == nil {
		return ""
	}
	return services.Kind(r.err)
}
