package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"voiceloom/internal/logging"
	"voiceloom/internal/services"
)

// Status is the terminal state of one observed stage.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ResourceSnapshot captures process resource usage deltas across a stage.
// MaxRSSKiB is the process peak at stage exit; CPU times are per-stage
// deltas. All fields are zero when sampling was unavailable.
type ResourceSnapshot struct {
	MaxRSSKiB int64
	UserCPU   time.Duration
	SystemCPU time.Duration
}

// StageResult records one stage execution. Results are never mutated after
// the stage completes.
type StageResult struct {
	Stage        string
	Status       Status
	StartedAt    time.Time
	Duration     time.Duration
	Resources    ResourceSnapshot
	ErrorKind    string
	ErrorMessage string
}

// Log is the append-only per-run StageResult sequence. Appends are guarded
// for the concurrent transcribe/diarize pair; all other stages run
// sequentially.
type Log struct {
	mu      sync.Mutex
	results []StageResult
}

// NewLog returns an empty per-run stage log.
func NewLog() *Log {
	return &Log{}
}

// Append adds a completed stage result.
func (l *Log) Append(result StageResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, result)
}

// Results returns a copy of the recorded results in append order.
func (l *Log) Results() []StageResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := make([]StageResult, len(l.results))
	copy(cp, l.results)
	return cp
}

// Find returns the first result for the named stage.
func (l *Log) Find(stage string) (StageResult, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, result := range l.results {
		if result.Stage == stage {
			return result, true
		}
	}
	return StageResult{}, false
}

// Observe runs fn wrapped with timing and resource sampling and appends one
// StageResult to the log. The stage's own control flow is never altered:
// fn's error is returned unchanged and sampling failures are logged at debug
// level and otherwise ignored.
func Observe(ctx context.Context, log *Log, logger *slog.Logger, stage string, fn func(context.Context) error) error {
	if logger == nil {
		logger = logging.NewNop()
	}

	before, beforeOK := sampleUsage()
	startedAt := time.Now().UTC()

	err := fn(logging.WithStage(ctx, stage))

	result := StageResult{
		Stage:     stage,
		Status:    StatusSuccess,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
	}
	if err != nil {
		result.Status = StatusFailed
		result.ErrorKind = services.Kind(err)
		result.ErrorMessage = err.Error()
	}

	if after, afterOK := sampleUsage(); beforeOK && afterOK {
		result.Resources = ResourceSnapshot{
			MaxRSSKiB: after.maxRSSKiB,
			UserCPU:   after.userCPU - before.userCPU,
			SystemCPU: after.systemCPU - before.systemCPU,
		}
	} else {
		logger.Debug("resource sampling unavailable", logging.String(logging.FieldStage, stage))
	}

	if log != nil {
		log.Append(result)
	}
	return err
}

// Skip records a stage that never ran.
func Skip(log *Log, stage string) {
	if log == nil {
		return
	}
	log.Append(StageResult{
		Stage:     stage,
		Status:    StatusSkipped,
		StartedAt: time.Now().UTC(),
	})
}

type usage struct {
	maxRSSKiB int64
	userCPU   time.Duration
	systemCPU time.Duration
}

func sampleUsage() (usage, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return usage{}, false
	}
	return usage{
		maxRSSKiB: ru.Maxrss,
		userCPU:   timevalDuration(ru.Utime),
		systemCPU: timevalDuration(ru.Stime),
	}, true
}

func timevalDuration(tv unix.Timeval) time.Duration {
	return time.Duration(tv.Sec)*time.Second + time.Duration(tv.Usec)*time.Microsecond
}
