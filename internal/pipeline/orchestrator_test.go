package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"voiceloom/internal/config"
	"voiceloom/internal/merge"
	"voiceloom/internal/metrics"
	"voiceloom/internal/monitor"
	"voiceloom/internal/pipeline"
	"voiceloom/internal/services"
)

const sampleVTT = `WEBVTT

00:00:00.000 --> 00:00:02.000
hello there

00:00:02.000 --> 00:00:04.000
I am fine
`

const sampleRTTM = `SPEAKER audio 1 0.000 2.000 <NA> <NA> SPEAKER_00 <NA> <NA>
SPEAKER audio 1 2.000 2.000 <NA> <NA> SPEAKER_01 <NA> <NA>
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(dir, "out")
	cfg.Paths.WorkDir = filepath.Join(dir, "work")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Paths.MetricsDB = filepath.Join(dir, "metrics.db")
	return &cfg
}

type fakeTranscriber struct {
	vtt        string
	extractErr error
	runErr     error
}

func (f *fakeTranscriber) ExtractAudio(_ context.Context, _, dest string) error {
	if f.extractErr != nil {
		return f.extractErr
	}
	return os.WriteFile(dest, []byte("RIFF"), 0o644)
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath, outputDir string) (string, error) {
	if f.runErr != nil {
		return "", f.runErr
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	path := filepath.Join(outputDir, base+".vtt")
	return path, os.WriteFile(path, []byte(f.vtt), 0o644)
}

type fakeDiarizer struct {
	rttm string
	// waitForCancel blocks until the sibling failure propagates, proving the
	// orchestrator cancels in-flight stages.
	waitForCancel bool
	runErr        error
}

func (f *fakeDiarizer) Diarize(ctx context.Context, audioPath, outputDir string) (string, error) {
	if f.waitForCancel {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.runErr != nil {
		return "", f.runErr
	}
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	path := filepath.Join(outputDir, base+".rttm")
	return path, os.WriteFile(path, []byte(f.rttm), 0o644)
}

type fakePolisher struct {
	result string
	err    error
	called bool
}

func (f *fakePolisher) Polish(_ context.Context, transcript string) (string, error) {
	f.called = true
	if f.err != nil {
		return "", f.err
	}
	if f.result != "" {
		return f.result, nil
	}
	return transcript, nil
}

func newOrchestrator(cfg *config.Config, opts ...pipeline.Option) *pipeline.Orchestrator {
	base := []pipeline.Option{
		pipeline.WithTranscriber(&fakeTranscriber{vtt: sampleVTT}),
		pipeline.WithDiarizer(&fakeDiarizer{rttm: sampleRTTM}),
	}
	return pipeline.New(cfg, nil, append(base, opts...)...)
}

func TestProcessProducesLabeledTranscript(t *testing.T) {
	cfg := testConfig(t)
	orch := newOrchestrator(cfg)

	run, err := orch.Process(context.Background(), "/media/audio.mkv")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if run.State != pipeline.StateDone {
		t.Fatalf("state = %q", run.State)
	}

	content, err := os.ReadFile(run.Artifacts.Transcript)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	want := "[Speaker 1]\nhello there\n[Speaker 2]\nI am fine\n"
	if string(content) != want {
		t.Fatalf("transcript = %q, want %q", content, want)
	}

	for _, stage := range []string{"extract", "transcribe", "diarize", "merge"} {
		result, ok := run.Stages.Find(stage)
		if !ok || result.Status != monitor.StatusSuccess {
			t.Fatalf("stage %q not successful: %+v", stage, result)
		}
	}
	if result, ok := run.Stages.Find("postprocess"); !ok || result.Status != monitor.StatusSkipped {
		t.Fatalf("expected postprocess skipped: %+v", result)
	}
}

func TestProcessTranscribeFailureCancelsDiarize(t *testing.T) {
	cfg := testConfig(t)
	failure := services.Wrap(services.ErrExternalTool, "transcribe", "run", "engine exited", errors.New("exit status 1"))
	orch := pipeline.New(cfg, nil,
		pipeline.WithTranscriber(&fakeTranscriber{runErr: failure}),
		pipeline.WithDiarizer(&fakeDiarizer{waitForCancel: true}),
	)

	run, err := orch.Process(context.Background(), "/media/audio.mkv")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected transcribe failure, got %v", err)
	}
	if run.State != pipeline.StateFailed {
		t.Fatalf("state = %q", run.State)
	}

	result, ok := run.Stages.Find("diarize")
	if !ok {
		t.Fatal("expected diarize stage result")
	}
	if result.Status != monitor.StatusFailed || result.ErrorKind != "canceled" {
		t.Fatalf("expected canceled diarize stage: %+v", result)
	}
	if run.Artifacts.Transcript != "" {
		t.Fatalf("no transcript should exist, got %q", run.Artifacts.Transcript)
	}
}

func TestProcessPolishFailureKeepsRunDone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Postprocess.Enabled = true
	polisher := &fakePolisher{err: services.Wrap(services.ErrUnavailable, "postprocess", "polish", "request failed", errors.New("connection refused"))}
	orch := newOrchestrator(cfg, pipeline.WithPolisher(polisher))

	run, err := orch.Process(context.Background(), "/media/audio.mkv")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if run.State != pipeline.StateDone {
		t.Fatalf("state = %q", run.State)
	}
	if !polisher.called {
		t.Fatal("polisher was never invoked")
	}

	result, ok := run.Stages.Find("postprocess")
	if !ok || result.Status != monitor.StatusFailed || result.ErrorKind != "unavailable" {
		t.Fatalf("unexpected postprocess result: %+v", result)
	}

	content, err := os.ReadFile(run.Artifacts.Transcript)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	want := "[Speaker 1]\nhello there.\n\n[Speaker 2]\nI am fine.\n"
	if string(content) != want {
		t.Fatalf("transcript after fallback formatting = %q, want %q", content, want)
	}
}

func TestProcessPolishSuccessRewritesTranscript(t *testing.T) {
	cfg := testConfig(t)
	cfg.Postprocess.Enabled = true
	orch := newOrchestrator(cfg, pipeline.WithPolisher(&fakePolisher{result: "[Speaker 1]\nHello there."}))

	run, err := orch.Process(context.Background(), "/media/audio.mkv")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	content, err := os.ReadFile(run.Artifacts.Transcript)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if string(content) != "[Speaker 1]\nHello there.\n" {
		t.Fatalf("transcript = %q", content)
	}
}

func TestProcessKeepIntermediatesWritesTimelines(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.KeepIntermediates = true
	orch := newOrchestrator(cfg)

	run, err := orch.Process(context.Background(), "/media/audio.mkv")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if filepath.Dir(run.Artifacts.Captions) != cfg.Paths.OutputDir {
		t.Fatalf("captions not kept in output dir: %q", run.Artifacts.Captions)
	}
	captionsContent, err := os.ReadFile(run.Artifacts.Captions)
	if err != nil {
		t.Fatalf("read captions: %v", err)
	}
	if !strings.HasPrefix(string(captionsContent), "WEBVTT") {
		t.Fatalf("kept captions not rendered as WebVTT: %q", captionsContent)
	}
	speakersContent, err := os.ReadFile(run.Artifacts.Speakers)
	if err != nil {
		t.Fatalf("read speakers: %v", err)
	}
	if !strings.Contains(string(speakersContent), "SPEAKER audio 1 0.000 2.000 <NA> <NA> SPEAKER_00") {
		t.Fatalf("kept speakers not rendered as RTTM: %q", speakersContent)
	}
}

func TestProcessRecordsRunHistory(t *testing.T) {
	cfg := testConfig(t)
	store, err := metrics.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	orch := newOrchestrator(cfg, pipeline.WithMetricsStore(store))
	run, err := orch.Process(context.Background(), "/media/audio.mkv")
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	runs, err := store.RecentRuns(context.Background(), 5)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Fatalf("unexpected history: %+v", runs)
	}
	if runs[0].Status != "done" {
		t.Fatalf("status = %q", runs[0].Status)
	}
	if len(runs[0].Stages) == 0 {
		t.Fatal("expected stage results in history")
	}
}

func TestMergeFilesEntryPoint(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	vttPath := filepath.Join(dir, "interview.vtt")
	rttmPath := filepath.Join(dir, "interview.rttm")
	if err := os.WriteFile(vttPath, []byte(sampleVTT), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(rttmPath, []byte(sampleRTTM), 0o644); err != nil {
		t.Fatal(err)
	}

	orch := pipeline.New(cfg, nil, pipeline.WithFormatOptions(merge.FormatOptions{RawLabels: true}))
	run, err := orch.MergeFiles(context.Background(), vttPath, rttmPath)
	if err != nil {
		t.Fatalf("merge files: %v", err)
	}
	if run.State != pipeline.StateDone {
		t.Fatalf("state = %q", run.State)
	}
	for _, stage := range []string{"extract", "transcribe", "diarize"} {
		result, ok := run.Stages.Find(stage)
		if !ok || result.Status != monitor.StatusSkipped {
			t.Fatalf("expected %q skipped: %+v", stage, result)
		}
	}

	content, err := os.ReadFile(run.Artifacts.Transcript)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	want := "[Speaker 00]\nhello there\n[Speaker 01]\nI am fine\n"
	if string(content) != want {
		t.Fatalf("transcript = %q, want %q", content, want)
	}
}

func TestMergeFilesRespectsOutputLock(t *testing.T) {
	cfg := testConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	dir := t.TempDir()
	vttPath := filepath.Join(dir, "interview.vtt")
	rttmPath := filepath.Join(dir, "interview.rttm")
	if err := os.WriteFile(vttPath, []byte(sampleVTT), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(rttmPath, []byte(sampleRTTM), 0o644); err != nil {
		t.Fatal(err)
	}

	held := flock.New(filepath.Join(cfg.Paths.OutputDir, ".voiceloom.lock"))
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("take output lock: locked=%v err=%v", locked, err)
	}
	defer func() { _ = held.Unlock() }()

	orch := pipeline.New(cfg, nil)
	run, err := orch.MergeFiles(context.Background(), vttPath, rttmPath)
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if run.State != pipeline.StateFailed {
		t.Fatalf("state = %q", run.State)
	}
}

func TestProcessRejectsEmptySource(t *testing.T) {
	orch := newOrchestrator(testConfig(t))
	run, err := orch.Process(context.Background(), "  ")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if run.State != pipeline.StateFailed {
		t.Fatalf("state = %q", run.State)
	}
}

func TestProcessLockContention(t *testing.T) {
	cfg := testConfig(t)
	cfg.Postprocess.Enabled = true

	// The polisher runs while the outer Process still holds the output lock,
	// so a second Process against the same output directory must be refused.
	contender := newOrchestrator(cfg)
	var innerErr error
	holder := &lockHolder{
		inner: func(ctx context.Context) {
			_, innerErr = contender.Process(ctx, "/media/other.mkv")
		},
	}
	orch := newOrchestrator(cfg, pipeline.WithPolisher(holder))

	if _, err := orch.Process(context.Background(), "/media/audio.mkv"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if !errors.Is(innerErr, services.ErrUnavailable) {
		t.Fatalf("expected lock contention error, got %v", innerErr)
	}
}

// lockHolder runs a callback mid-run, while the output lock is held.
type lockHolder struct {
	inner func(ctx context.Context)
}

func (l *lockHolder) Polish(ctx context.Context, transcript string) (string, error) {
	l.inner(ctx)
	return transcript, nil
}
