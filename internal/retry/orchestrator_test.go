package retry

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/whatspr/whatspr/internal/config"
	"github.com/whatspr/whatspr/internal/runner"
)

type fakeRunner struct {
	runCalls    int
	ensureCalls int
	// run is invoked per attempt with the attempt number (1-indexed).
	run func(ctx context.Context, attempt int, threadID string) (runner.TurnResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, threadID, message string) (runner.TurnResult, error) {
	f.runCalls++
	return f.run(ctx, f.runCalls, threadID)
}

func (f *fakeRunner) EnsureThread(ctx context.Context, threadID string) (string, error) {
	f.ensureCalls++
	if threadID != "" {
		return threadID, nil
	}
	return "thread_minted", nil
}

func testOrchestrator(t *testing.T, r Runner, mutate func(*config.TimeoutBudget)) *Orchestrator {
	t.Helper()
	budget := config.DefaultBudget()
	budget.RetryBaseDelay = time.Millisecond
	budget.RetryMaxDelay = 2 * time.Millisecond
	if mutate != nil {
		mutate(&budget)
	}
	store, err := config.NewBudgetStore(budget, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewBudgetStore() error: %v", err)
	}
	return New(r, store, slog.New(slog.DiscardHandler), nil)
}

func TestRunWithRetrySuccessFirstAttempt(t *testing.T) {
	r := &fakeRunner{run: func(ctx context.Context, attempt int, threadID string) (runner.TurnResult, error) {
		return runner.TurnResult{ReplyText: "hi there", ThreadID: threadID}, nil
	}}
	o := testOrchestrator(t, r, nil)

	result := o.RunWithRetry(context.Background(), "thread_1", "hello", 10*time.Second)
	if result.ReplyText != "hi there" {
		t.Errorf("ReplyText = %q", result.ReplyText)
	}
	if result.ThreadID != "thread_1" {
		t.Errorf("ThreadID = %q, want thread_1", result.ThreadID)
	}
	if r.runCalls != 1 {
		t.Errorf("runCalls = %d, want 1", r.runCalls)
	}

	m := o.Metrics()
	if m.Turns != 1 || m.Attempts != 1 || m.Fallbacks != 0 {
		t.Errorf("Metrics = %+v, want 1 turn, 1 attempt, 0 fallbacks", m)
	}
}

func TestRunWithRetrySucceedsAfterFailure(t *testing.T) {
	r := &fakeRunner{run: func(ctx context.Context, attempt int, threadID string) (runner.TurnResult, error) {
		if attempt == 1 {
			return runner.TurnResult{ThreadID: "thread_new"}, runner.ErrRunTimedOut
		}
		return runner.TurnResult{ReplyText: "recovered", ThreadID: threadID}, nil
	}}
	o := testOrchestrator(t, r, nil)

	result := o.RunWithRetry(context.Background(), "", "hello", 10*time.Second)
	if result.ReplyText != "recovered" {
		t.Errorf("ReplyText = %q, want recovered", result.ReplyText)
	}
	// The handle created during the failed first attempt is reused.
	if result.ThreadID != "thread_new" {
		t.Errorf("ThreadID = %q, want thread_new carried into retry", result.ThreadID)
	}
	if r.runCalls != 2 {
		t.Errorf("runCalls = %d, want 2", r.runCalls)
	}
}

func TestRunWithRetryExactAttemptCount(t *testing.T) {
	r := &fakeRunner{run: func(ctx context.Context, attempt int, threadID string) (runner.TurnResult, error) {
		return runner.TurnResult{ThreadID: threadID}, runner.ErrRunTimedOut
	}}
	o := testOrchestrator(t, r, func(b *config.TimeoutBudget) {
		b.RetryMaxAttempts = 1
	})

	start := time.Now()
	result := o.RunWithRetry(context.Background(), "thread_1", "hello", 10*time.Second)
	elapsed := time.Since(start)

	if r.runCalls != 2 {
		t.Errorf("runCalls = %d, want exactly 2 (1 + 1 retry)", r.runCalls)
	}
	if elapsed > 10*time.Second {
		t.Errorf("elapsed %v exceeds total budget", elapsed)
	}
	if result.ReplyText != FallbackTimeoutReply {
		t.Errorf("ReplyText = %q, want timeout fallback", result.ReplyText)
	}
	if result.ThreadID != "thread_1" {
		t.Errorf("ThreadID = %q, want preserved thread_1", result.ThreadID)
	}
}

func TestRunWithRetryBudgetConservation(t *testing.T) {
	// Every attempt consumes its entire deadline.
	r := &fakeRunner{run: func(ctx context.Context, attempt int, threadID string) (runner.TurnResult, error) {
		<-ctx.Done()
		return runner.TurnResult{ThreadID: threadID}, runner.ErrRunTimedOut
	}}
	o := testOrchestrator(t, r, func(b *config.TimeoutBudget) {
		b.RetryMaxAttempts = 2
	})

	total := 300 * time.Millisecond
	start := time.Now()
	result := o.RunWithRetry(context.Background(), "thread_1", "hello", total)
	elapsed := time.Since(start)

	if elapsed > total+150*time.Millisecond {
		t.Errorf("elapsed %v, want <= total budget %v plus small epsilon", elapsed, total)
	}
	if result.ReplyText != FallbackTimeoutReply {
		t.Errorf("ReplyText = %q, want timeout fallback", result.ReplyText)
	}
}

func TestRunWithRetryTerminatesOnInstantFailures(t *testing.T) {
	r := &fakeRunner{run: func(ctx context.Context, attempt int, threadID string) (runner.TurnResult, error) {
		return runner.TurnResult{ThreadID: threadID}, errors.New("boom")
	}}
	o := testOrchestrator(t, r, func(b *config.TimeoutBudget) {
		b.RetryMaxAttempts = 2
	})

	done := make(chan runner.TurnResult, 1)
	go func() {
		done <- o.RunWithRetry(context.Background(), "thread_1", "hello", 5*time.Second)
	}()

	select {
	case result := <-done:
		if r.runCalls != 3 {
			t.Errorf("runCalls = %d, want 3", r.runCalls)
		}
		if result.ReplyText != FallbackErrorReply {
			t.Errorf("ReplyText = %q, want error fallback", result.ReplyText)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("orchestrator did not terminate")
	}
}

func TestRunWithRetryMintsHandleWhenNoneExists(t *testing.T) {
	r := &fakeRunner{run: func(ctx context.Context, attempt int, threadID string) (runner.TurnResult, error) {
		// Attempts fail before a thread could be created.
		return runner.TurnResult{}, runner.ErrRunFailed
	}}
	o := testOrchestrator(t, r, nil)

	result := o.RunWithRetry(context.Background(), "", "hello", 5*time.Second)
	if result.ThreadID != "thread_minted" {
		t.Errorf("ThreadID = %q, want freshly minted handle", result.ThreadID)
	}
	if r.ensureCalls != 1 {
		t.Errorf("ensureCalls = %d, want 1", r.ensureCalls)
	}
	if result.ReplyText != FallbackErrorReply {
		t.Errorf("ReplyText = %q, want error fallback", result.ReplyText)
	}
}

func TestRunWithRetryInsufficientBudget(t *testing.T) {
	r := &fakeRunner{run: func(ctx context.Context, attempt int, threadID string) (runner.TurnResult, error) {
		t.Error("Run called despite insufficient budget")
		return runner.TurnResult{}, nil
	}}
	o := testOrchestrator(t, r, nil)

	// Less than the safety margin: no attempt is worth making.
	result := o.RunWithRetry(context.Background(), "thread_1", "hello", 50*time.Millisecond)
	if r.runCalls != 0 {
		t.Errorf("runCalls = %d, want 0", r.runCalls)
	}
	if result.ReplyText != FallbackTimeoutReply {
		t.Errorf("ReplyText = %q, want timeout fallback", result.ReplyText)
	}
	if result.ThreadID != "thread_1" {
		t.Errorf("ThreadID = %q, want preserved handle", result.ThreadID)
	}
}

func TestRunWithRetryFallbackKindFollowsLastError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantReply string
	}{
		{name: "timeout flavored", err: runner.ErrRunTimedOut, wantReply: FallbackTimeoutReply},
		{name: "wrapped timeout", err: errors.Join(errors.New("attempt"), runner.ErrRunTimedOut), wantReply: FallbackTimeoutReply},
		{name: "error flavored", err: runner.ErrRunFailed, wantReply: FallbackErrorReply},
		{name: "unclassified error", err: errors.New("weird"), wantReply: FallbackErrorReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{run: func(ctx context.Context, attempt int, threadID string) (runner.TurnResult, error) {
				return runner.TurnResult{ThreadID: threadID}, tt.err
			}}
			o := testOrchestrator(t, r, func(b *config.TimeoutBudget) {
				b.RetryMaxAttempts = 0
			})
			result := o.RunWithRetry(context.Background(), "thread_1", "hello", 5*time.Second)
			if result.ReplyText != tt.wantReply {
				t.Errorf("ReplyText = %q, want %q", result.ReplyText, tt.wantReply)
			}
		})
	}
}

func TestRunWithRetryMetricsCountFallbacks(t *testing.T) {
	r := &fakeRunner{run: func(ctx context.Context, attempt int, threadID string) (runner.TurnResult, error) {
		return runner.TurnResult{ThreadID: threadID}, runner.ErrRunFailed
	}}
	o := testOrchestrator(t, r, func(b *config.TimeoutBudget) {
		b.RetryMaxAttempts = 1
	})

	o.RunWithRetry(context.Background(), "thread_1", "hello", 5*time.Second)
	m := o.Metrics()
	if m.Turns != 1 {
		t.Errorf("Turns = %d, want 1", m.Turns)
	}
	if m.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", m.Attempts)
	}
	if m.Fallbacks != 1 {
		t.Errorf("Fallbacks = %d, want 1", m.Fallbacks)
	}
	if m.LastFallbackAt.IsZero() {
		t.Error("LastFallbackAt is zero after a fallback")
	}
}
