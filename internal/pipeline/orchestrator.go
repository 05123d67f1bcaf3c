package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"voiceloom/internal/captions"
	"voiceloom/internal/config"
	"voiceloom/internal/diarization"
	"voiceloom/internal/logging"
	"voiceloom/internal/merge"
	"voiceloom/internal/metrics"
	"voiceloom/internal/monitor"
	"voiceloom/internal/postprocess"
	"voiceloom/internal/rttm"
	"voiceloom/internal/services"
	"voiceloom/internal/timeline"
	"voiceloom/internal/transcription"
)

const lockFileName = ".voiceloom.lock"

// Transcriber produces a WebVTT caption file from extracted audio.
type Transcriber interface {
	ExtractAudio(ctx context.Context, source, dest string) error
	Transcribe(ctx context.Context, audioPath, outputDir string) (string, error)
}

// Diarizer produces an RTTM speaker file from extracted audio.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath, outputDir string) (string, error)
}

// Polisher rewrites a merged transcript. Failures must classify as
// recoverable (auth or availability) unless the run should abort.
type Polisher interface {
	Polish(ctx context.Context, transcript string) (string, error)
}

// Orchestrator drives a media file through transcription, diarization,
// merging, and optional post-processing.
type Orchestrator struct {
	cfg         *config.Config
	logger      *slog.Logger
	transcriber Transcriber
	diarizer    Diarizer
	polisher    Polisher
	store       *metrics.Store
	formatOpts  merge.FormatOptions
}

// Option customizes orchestrator construction.
type Option func(*Orchestrator)

// WithTranscriber replaces the default transcription service.
func WithTranscriber(t Transcriber) Option {
	return func(o *Orchestrator) { o.transcriber = t }
}

// WithDiarizer replaces the default diarization service.
func WithDiarizer(d Diarizer) Option {
	return func(o *Orchestrator) { o.diarizer = d }
}

// WithPolisher replaces the default post-processing client.
func WithPolisher(p Polisher) Option {
	return func(o *Orchestrator) { o.polisher = p }
}

// WithMetricsStore enables run history persistence.
func WithMetricsStore(store *metrics.Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithFormatOptions controls transcript rendering.
func WithFormatOptions(opts merge.FormatOptions) Option {
	return func(o *Orchestrator) { o.formatOpts = opts }
}

// New constructs an orchestrator with real engine services unless overridden.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.transcriber == nil {
		o.transcriber = transcription.NewService(cfg.Transcription, cfg.FFmpegBinary())
	}
	if o.diarizer == nil {
		o.diarizer = diarization.NewService(cfg.Diarization)
	}
	if o.polisher == nil && cfg.Postprocess.Enabled {
		o.polisher = postprocess.NewClient(cfg.Postprocess)
	}
	return o
}

// Process runs the full pipeline for one media file. The returned run is
// populated even on failure so callers can inspect stage results.
func (o *Orchestrator) Process(ctx context.Context, source string) (*Run, error) {
	run := newRun(source)
	ctx = logging.WithRunID(ctx, run.ID)
	logger := logging.WithContext(ctx, o.logger)

	if err := o.prepare(run); err != nil {
		return run, o.finish(ctx, run, err)
	}

	lock, err := o.acquireLock(run)
	if err != nil {
		return run, o.finish(ctx, run, err)
	}
	defer func() { _ = lock.Unlock() }()

	workDir := filepath.Join(o.cfg.Paths.WorkDir, run.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return run, o.finish(ctx, run, fmt.Errorf("create work dir: %w", err))
	}
	defer o.cleanupWorkDir(run, workDir)

	logger.Info("run started",
		logging.String("source", source),
		logging.String("work_dir", workDir),
	)

	audioPath := filepath.Join(workDir, baseName(source)+".wav")
	if err := o.observeStage(ctx, run, "extract", 0, func(ctx context.Context) error {
		return o.transcriber.ExtractAudio(ctx, source, audioPath)
	}); err != nil {
		return run, o.finish(ctx, run, err)
	}
	run.Artifacts.Audio = audioPath

	if err := o.runEngines(ctx, run, audioPath, workDir); err != nil {
		return run, o.finish(ctx, run, err)
	}

	run.setState(StateMerging)
	if err := o.mergeStage(ctx, run); err != nil {
		return run, o.finish(ctx, run, err)
	}

	o.polishStage(ctx, run)

	run.setState(StateDone)
	return run, o.finish(ctx, run, nil)
}

// MergeFiles runs the pipeline from the merge stage using existing caption
// and speaker files, skipping the engine stages entirely.
func (o *Orchestrator) MergeFiles(ctx context.Context, vttPath, rttmPath string) (*Run, error) {
	run := newRun(vttPath)
	ctx = logging.WithRunID(ctx, run.ID)

	if err := o.prepare(run); err != nil {
		return run, o.finish(ctx, run, err)
	}

	lock, err := o.acquireLock(run)
	if err != nil {
		return run, o.finish(ctx, run, err)
	}
	defer func() { _ = lock.Unlock() }()

	monitor.Skip(run.Stages, "extract")
	monitor.Skip(run.Stages, "transcribe")
	monitor.Skip(run.Stages, "diarize")
	run.Artifacts.Captions = vttPath
	run.Artifacts.Speakers = rttmPath

	run.setState(StateMerging)
	if err := o.mergeStage(ctx, run); err != nil {
		return run, o.finish(ctx, run, err)
	}

	o.polishStage(ctx, run)

	run.setState(StateDone)
	return run, o.finish(ctx, run, nil)
}

func (o *Orchestrator) prepare(run *Run) error {
	if strings.TrimSpace(run.Source) == "" {
		return services.Wrap(services.ErrValidation, "pipeline", "prepare", "source path required", nil)
	}
	if err := o.cfg.EnsureDirectories(); err != nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "prepare", "ensure directories", err)
	}
	return nil
}

func (o *Orchestrator) acquireLock(run *Run) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(o.cfg.Paths.OutputDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "pipeline", "lock", "acquire output lock", err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrUnavailable, "pipeline", "lock", "another run holds the output directory", nil)
	}
	return lock, nil
}

// runEngines executes transcription and diarization concurrently. The first
// failure cancels the sibling stage; both stage results are still recorded.
func (o *Orchestrator) runEngines(ctx context.Context, run *Run, audioPath, workDir string) error {
	run.setState(StateTranscribing)

	engineCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg         sync.WaitGroup
		vttPath    string
		rttmPath   string
		transErr   error
		diarizeErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		transErr = o.observeStage(engineCtx, run, "transcribe", o.cfg.Pipeline.TranscribeTimeout, func(ctx context.Context) error {
			path, err := o.transcriber.Transcribe(ctx, audioPath, workDir)
			if err != nil {
				return err
			}
			vttPath = path
			return nil
		})
		if transErr != nil {
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		diarizeErr = o.observeStage(engineCtx, run, "diarize", o.cfg.Pipeline.DiarizeTimeout, func(ctx context.Context) error {
			path, err := o.diarizer.Diarize(ctx, audioPath, workDir)
			if err != nil {
				return err
			}
			rttmPath = path
			return nil
		})
		if diarizeErr != nil {
			cancel()
		}
	}()
	wg.Wait()

	if transErr != nil {
		return transErr
	}
	if diarizeErr != nil {
		return diarizeErr
	}
	run.Artifacts.Captions = vttPath
	run.Artifacts.Speakers = rttmPath
	return nil
}

func (o *Orchestrator) mergeStage(ctx context.Context, run *Run) error {
	return o.observeStage(ctx, run, "merge", o.cfg.Pipeline.MergeTimeout, func(ctx context.Context) error {
		logger := logging.WithContext(ctx, o.logger)

		vttContent, err := os.ReadFile(run.Artifacts.Captions)
		if err != nil {
			return services.Wrap(services.ErrValidation, "merge", "read", "caption file", err)
		}
		rttmContent, err := os.ReadFile(run.Artifacts.Speakers)
		if err != nil {
			return services.Wrap(services.ErrValidation, "merge", "read", "speaker file", err)
		}

		capResult, err := captions.Parse(string(vttContent))
		if err != nil {
			return err
		}
		if capResult.Reordered {
			logger.Warn("caption cues were out of order", logging.String("path", run.Artifacts.Captions))
		}
		spkResult, err := rttm.Parse(string(rttmContent))
		if err != nil {
			return err
		}
		if spkResult.Reordered {
			logger.Warn("speaker records were out of order", logging.String("path", run.Artifacts.Speakers))
		}
		if spkResult.Timeline.Len() == 0 {
			logger.Warn("speaker timeline is empty, all captions will be unattributed")
		}

		if o.cfg.Pipeline.KeepIntermediates {
			if err := o.writeIntermediates(run, capResult.Timeline, spkResult.Timeline); err != nil {
				return err
			}
		}

		records := merge.Assign(capResult.Timeline, spkResult.Timeline)
		if o.cfg.Merge.Coalesce {
			records = merge.Coalesce(records, o.cfg.Merge.CoalesceGapSeconds)
		}
		if !o.formatOpts.RawLabels {
			mapper := merge.NewMapper(o.cfg.Speakers.Labels, o.cfg.Speakers.UnknownLabel)
			records = mapper.Apply(records)
		}
		transcript := merge.FormatTranscript(records, o.formatOpts)

		transcriptPath := filepath.Join(o.cfg.Paths.OutputDir, baseName(run.Source)+".txt")
		if err := os.WriteFile(transcriptPath, []byte(transcript), 0o644); err != nil {
			return fmt.Errorf("write transcript: %w", err)
		}
		run.Artifacts.Transcript = transcriptPath
		logger.Info("transcript written",
			logging.String("path", transcriptPath),
			logging.Int("records", len(records)),
		)
		return nil
	})
}

// polishStage runs optional post-processing. A recoverable failure leaves
// the unpolished transcript in place and never fails the run.
func (o *Orchestrator) polishStage(ctx context.Context, run *Run) {
	if o.polisher == nil || !o.cfg.Postprocess.Enabled {
		monitor.Skip(run.Stages, "postprocess")
		return
	}

	run.setState(StatePostProcessing)
	err := o.observeStage(ctx, run, "postprocess", o.cfg.Pipeline.PostprocessTimeout, func(ctx context.Context) error {
		content, err := os.ReadFile(run.Artifacts.Transcript)
		if err != nil {
			return services.Wrap(services.ErrValidation, "postprocess", "read", "transcript file", err)
		}
		polished, err := o.polisher.Polish(ctx, string(content))
		if err != nil {
			return err
		}
		if strings.TrimSpace(polished) == "" {
			return nil
		}
		return os.WriteFile(run.Artifacts.Transcript, []byte(polished+"\n"), 0o644)
	})
	if err != nil {
		logger := logging.WithContext(ctx, o.logger)
		logger.Warn("post-processing failed, applying basic formatting instead", logging.Error(err))
		o.applyBasicFormatting(run)
	}
}

// applyBasicFormatting is the non-LLM fallback when polishing fails: the
// merged transcript stays authoritative and only gets whitespace cleanup.
func (o *Orchestrator) applyBasicFormatting(run *Run) {
	content, err := os.ReadFile(run.Artifacts.Transcript)
	if err != nil {
		return
	}
	formatted := postprocess.BasicFormatting(string(content))
	_ = os.WriteFile(run.Artifacts.Transcript, []byte(formatted+"\n"), 0o644)
}

// observeStage wraps a stage with monitoring and a wall-clock timeout.
// Timeouts surface as services.ErrTimeout so stage results classify cleanly.
func (o *Orchestrator) observeStage(ctx context.Context, run *Run, stage string, timeoutSeconds int, fn func(context.Context) error) error {
	return monitor.Observe(ctx, run.Stages, o.logger, stage, func(ctx context.Context) error {
		stageCtx := ctx
		if timeoutSeconds > 0 {
			var cancel context.CancelFunc
			stageCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
			defer cancel()
		}
		err := fn(stageCtx)
		if err != nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return services.Wrap(services.ErrTimeout, stage, "run", "stage deadline exceeded", err)
		}
		return err
	})
}

// writeIntermediates persists normalized copies of the parsed timelines next
// to the transcript, surviving work-directory cleanup.
func (o *Orchestrator) writeIntermediates(run *Run, caps, speakers timeline.Timeline) error {
	base := baseName(run.Source)

	var vtt strings.Builder
	if err := captions.Write(&vtt, caps); err != nil {
		return fmt.Errorf("render captions: %w", err)
	}
	vttPath := filepath.Join(o.cfg.Paths.OutputDir, base+".vtt")
	if err := os.WriteFile(vttPath, []byte(vtt.String()), 0o644); err != nil {
		return fmt.Errorf("write captions: %w", err)
	}

	var spk strings.Builder
	if err := rttm.Write(&spk, base, speakers); err != nil {
		return fmt.Errorf("render speaker records: %w", err)
	}
	rttmPath := filepath.Join(o.cfg.Paths.OutputDir, base+".rttm")
	if err := os.WriteFile(rttmPath, []byte(spk.String()), 0o644); err != nil {
		return fmt.Errorf("write speaker records: %w", err)
	}

	run.Artifacts.Captions = vttPath
	run.Artifacts.Speakers = rttmPath
	return nil
}

// cleanupWorkDir removes the per-run scratch directory. Artifact paths that
// pointed into it are cleared; kept intermediates already live in the output
// directory by the time this runs.
func (o *Orchestrator) cleanupWorkDir(run *Run, workDir string) {
	_ = os.RemoveAll(workDir)
	run.Artifacts.Audio = ""
	if strings.HasPrefix(run.Artifacts.Captions, workDir) {
		run.Artifacts.Captions = ""
	}
	if strings.HasPrefix(run.Artifacts.Speakers, workDir) {
		run.Artifacts.Speakers = ""
	}
}

// finish settles the run state, persists history, and returns the terminal
// error (nil for a completed run).
func (o *Orchestrator) finish(ctx context.Context, run *Run, err error) error {
	logger := logging.WithContext(ctx, o.logger)
	if err != nil {
		_ = run.fail(err)
		logger.Error("run failed", logging.Error(err), logging.String("kind", run.ErrorKind()))
	} else {
		run.setState(StateDone)
		logger.Info("run complete", logging.String("transcript", run.Artifacts.Transcript))
	}

	if o.store != nil {
		record := metrics.RunRecord{
			ID:        run.ID,
			CreatedAt: run.StartedAt,
			Source:    run.Source,
			Status:    string(run.State),
			Stages:    run.Stages.Results(),
		}
		if err != nil {
			record.ErrorKind = services.Kind(err)
			record.ErrorMessage = err.Error()
		}
		if recordErr := o.store.RecordRun(ctx, record); recordErr != nil {
			logger.Warn("run history not recorded", logging.Error(recordErr))
		}
	}
	return err
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

