package monitor_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"voiceloom/internal/logging"
	"voiceloom/internal/monitor"
	"voiceloom/internal/services"
)

func TestObserveRecordsSuccess(t *testing.T) {
	log := monitor.NewLog()

	err := monitor.Observe(context.Background(), log, logging.NewNop(), "merge", func(ctx context.Context) error {
		if got := logging.StageFromContext(ctx); got != "merge" {
			t.Fatalf("stage in context = %q", got)
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}

	results := log.Results()
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	result := results[0]
	if result.Stage != "merge" || result.Status != monitor.StatusSuccess {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Duration <= 0 {
		t.Fatalf("expected positive duration, got %v", result.Duration)
	}
	if result.StartedAt.IsZero() {
		t.Fatal("expected start time to be set")
	}
	if result.ErrorKind != "" || result.ErrorMessage != "" {
		t.Fatalf("expected no error fields: %+v", result)
	}
	if result.Resources.MaxRSSKiB <= 0 {
		t.Fatalf("expected resource snapshot, got %+v", result.Resources)
	}
}

func TestObservePassesErrorsThrough(t *testing.T) {
	log := monitor.NewLog()
	failure := services.Wrap(services.ErrExternalTool, "transcribe", "run", "engine exited", errors.New("exit status 1"))

	err := monitor.Observe(context.Background(), log, nil, "transcribe", func(context.Context) error {
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected failure passed through, got %v", err)
	}

	result, ok := log.Find("transcribe")
	if !ok {
		t.Fatal("expected result for transcribe stage")
	}
	if result.Status != monitor.StatusFailed {
		t.Fatalf("status = %q", result.Status)
	}
	if result.ErrorKind != "external_tool" {
		t.Fatalf("error kind = %q", result.ErrorKind)
	}
	if result.ErrorMessage == "" {
		t.Fatal("expected error message to be recorded")
	}
}

func TestObserveConcurrentAppends(t *testing.T) {
	log := monitor.NewLog()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stage := fmt.Sprintf("stage-%d", i)
			_ = monitor.Observe(context.Background(), log, nil, stage, func(context.Context) error {
				return nil
			})
		}(i)
	}
	wg.Wait()

	if got := len(log.Results()); got != 8 {
		t.Fatalf("expected 8 results, got %d", got)
	}
}

func TestSkipRecordsSkippedStage(t *testing.T) {
	log := monitor.NewLog()
	monitor.Skip(log, "postprocess")

	result, ok := log.Find("postprocess")
	if !ok {
		t.Fatal("expected skipped result")
	}
	if result.Status != monitor.StatusSkipped {
		t.Fatalf("status = %q", result.Status)
	}
	if result.Duration != 0 {
		t.Fatalf("expected zero duration, got %v", result.Duration)
	}
}
