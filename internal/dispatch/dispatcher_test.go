package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTryFirstSuccessWins(t *testing.T) {
	var tried []string
	model, err := Try(context.Background(), discardLogger(), "chat", []string{"a", "b", "c"},
		func(_ context.Context, model string) error {
			tried = append(tried, model)
			if model == "b" {
				return nil
			}
			return errors.New("boom")
		})
	if err != nil {
		t.Fatalf("Try: %v", err)
	}
	if model != "b" {
		t.Errorf("winning model = %q, want b", model)
	}
	if len(tried) != 2 || tried[0] != "a" || tried[1] != "b" {
		t.Errorf("tried = %v, want [a b]", tried)
	}
}

func TestTryAggregatesAllFailures(t *testing.T) {
	errA := errors.New("a down")
	errB := errors.New("b down")
	_, err := Try(context.Background(), discardLogger(), "image", []string{"a", "b"},
		func(_ context.Context, model string) error {
			if model == "a" {
				return errA
			}
			return errB
		})

	var agg *AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("err = %v, want *AggregateError", err)
	}
	if agg.Capability != "image" {
		t.Errorf("capability = %q, want image", agg.Capability)
	}
	if len(agg.Failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(agg.Failures))
	}
	if agg.Failures[0].Model != "a" || !errors.Is(agg.Failures[0].Err, errA) {
		t.Errorf("first failure = %+v, want model a / errA", agg.Failures[0])
	}
	if agg.Failures[1].Model != "b" || !errors.Is(agg.Failures[1].Err, errB) {
		t.Errorf("second failure = %+v, want model b / errB", agg.Failures[1])
	}
	if first := agg.First(); first.Model != "a" {
		t.Errorf("First().Model = %q, want a", first.Model)
	}
	if !strings.Contains(agg.Error(), "all 2 candidates failed for image") {
		t.Errorf("Error() = %q", agg.Error())
	}
}

func TestTryNoCandidates(t *testing.T) {
	_, err := Try(context.Background(), discardLogger(), "speech", nil,
		func(context.Context, string) error {
			t.Fatal("attempt must not run without candidates")
			return nil
		})
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("err = %v, want ErrNoCandidates", err)
	}
}

func TestTryStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var tried int
	_, err := Try(ctx, discardLogger(), "chat", []string{"a", "b", "c"},
		func(context.Context, string) error {
			tried++
			cancel()
			return errors.New("boom")
		})
	if tried != 1 {
		t.Errorf("tried %d candidates after cancel, want 1", tried)
	}
	var agg *AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("err = %v, want *AggregateError", err)
	}
}
