package metrics_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"voiceloom/internal/config"
	"voiceloom/internal/metrics"
	"voiceloom/internal/monitor"
)

func openStore(t *testing.T) *metrics.Store {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(dir, "out")
	cfg.Paths.WorkDir = filepath.Join(dir, "work")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Paths.MetricsDB = filepath.Join(dir, "metrics.db")

	store, err := metrics.Open(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndFetchRun(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	run := metrics.RunRecord{
		ID:        "run-1",
		CreatedAt: time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
		Source:    "/media/interview.wav",
		Status:    "done",
		Stages: []monitor.StageResult{
			{
				Stage:     "transcribe",
				Status:    monitor.StatusSuccess,
				StartedAt: time.Date(2026, 3, 14, 10, 30, 1, 0, time.UTC),
				Duration:  90 * time.Second,
				Resources: monitor.ResourceSnapshot{
					MaxRSSKiB: 204800,
					UserCPU:   80 * time.Second,
					SystemCPU: 5 * time.Second,
				},
			},
			{
				Stage:        "postprocess",
				Status:       monitor.StatusFailed,
				StartedAt:    time.Date(2026, 3, 14, 10, 32, 0, 0, time.UTC),
				Duration:     2 * time.Second,
				ErrorKind:    "unavailable",
				ErrorMessage: "service unavailable: postprocess: polish: request failed",
			},
		},
	}
	if err := store.RecordRun(ctx, run); err != nil {
		t.Fatalf("record run: %v", err)
	}

	fetched, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected run-1 to exist")
	}
	if fetched.Source != run.Source || fetched.Status != "done" {
		t.Fatalf("unexpected run: %+v", fetched)
	}
	if !fetched.CreatedAt.Equal(run.CreatedAt) {
		t.Fatalf("created at = %v, want %v", fetched.CreatedAt, run.CreatedAt)
	}
	if len(fetched.Stages) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(fetched.Stages))
	}
	first := fetched.Stages[0]
	if first.Stage != "transcribe" || first.Status != monitor.StatusSuccess {
		t.Fatalf("unexpected first stage: %+v", first)
	}
	if first.Duration != 90*time.Second || first.Resources.MaxRSSKiB != 204800 {
		t.Fatalf("stage metrics lost: %+v", first)
	}
	second := fetched.Stages[1]
	if second.ErrorKind != "unavailable" || second.ErrorMessage == "" {
		t.Fatalf("stage error fields lost: %+v", second)
	}
}

func TestGetRunMissing(t *testing.T) {
	store := openStore(t)
	run, err := store.GetRun(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run != nil {
		t.Fatalf("expected nil for missing run, got %+v", run)
	}
}

func TestRecentRunsOrderAndLimit(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		run := metrics.RunRecord{
			ID:        string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Source:    "/media/source.mkv",
			Status:    "done",
		}
		if err := store.RecordRun(ctx, run); err != nil {
			t.Fatalf("record run %d: %v", i, err)
		}
	}

	runs, err := store.RecentRuns(ctx, 3)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "e" || runs[1].ID != "d" || runs[2].ID != "c" {
		t.Fatalf("unexpected order: %s %s %s", runs[0].ID, runs[1].ID, runs[2].ID)
	}
}

func TestPruneRemovesOldRuns(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	old := metrics.RunRecord{ID: "old", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Source: "a", Status: "done"}
	recent := metrics.RunRecord{ID: "recent", CreatedAt: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), Source: "b", Status: "done"}
	for _, run := range []metrics.RunRecord{old, recent} {
		if err := store.RecordRun(ctx, run); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	removed, err := store.Prune(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned, got %d", removed)
	}
	if run, _ := store.GetRun(ctx, "old"); run != nil {
		t.Fatal("expected old run to be gone")
	}
	if run, _ := store.GetRun(ctx, "recent"); run == nil {
		t.Fatal("expected recent run to remain")
	}
}
