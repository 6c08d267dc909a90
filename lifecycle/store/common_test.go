package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var (
	_ Store = (*MemStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MySQLStore)(nil)
)

// testStoreContract runs the behavior every Store implementation must share.
func testStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("completions round trip in seq order", func(t *testing.T) {
		s := newStore(t)
		passID := fmt.Sprintf("pass-%d", time.Now().UnixNano())
		at := time.Now()

		for _, seq := range []int64{2, 1, 3} {
			c := Completion{
				PassID:      passID,
				Seq:         seq,
				Stage:       "initialize",
				ElementID:   fmt.Sprintf("e%d", seq),
				Path:        fmt.Sprintf("root.e%d", seq),
				Successors:  int(seq),
				Duration:    time.Duration(seq) * time.Millisecond,
				CompletedAt: at,
			}
			if err := s.SaveCompletion(ctx, c); err != nil {
				t.Fatalf("SaveCompletion(%d): %v", seq, err)
			}
		}

		got, err := s.Completions(ctx, passID)
		if err != nil {
			t.Fatalf("Completions: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("got %d completions, want 3", len(got))
		}
		for i, c := range got {
			want := int64(i + 1)
			if c.Seq != want {
				t.Errorf("completion %d has seq %d, want %d", i, c.Seq, want)
			}
			if c.ElementID != fmt.Sprintf("e%d", want) || c.Path != fmt.Sprintf("root.e%d", want) {
				t.Errorf("completion %d = %+v", i, c)
			}
			if c.Duration != time.Duration(want)*time.Millisecond {
				t.Errorf("completion %d duration = %v", i, c.Duration)
			}
			if !c.CompletedAt.Equal(at) {
				t.Errorf("completion %d completedAt = %v, want %v", i, c.CompletedAt, at)
			}
		}
	})

	t.Run("duplicate seq is rejected", func(t *testing.T) {
		s := newStore(t)
		passID := fmt.Sprintf("dup-%d", time.Now().UnixNano())
		c := Completion{PassID: passID, Seq: 1, Stage: "render", CompletedAt: time.Now()}
		if err := s.SaveCompletion(ctx, c); err != nil {
			t.Fatalf("first save: %v", err)
		}
		if err := s.SaveCompletion(ctx, c); err == nil {
			t.Fatal("expected duplicate completion to fail")
		}
	})

	t.Run("unknown pass has no completions", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Completions(ctx, "never-ran")
		if err != nil {
			t.Fatalf("Completions: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("got %d completions, want 0", len(got))
		}
	})

	t.Run("summary upsert and load", func(t *testing.T) {
		s := newStore(t)
		passID := fmt.Sprintf("sum-%d", time.Now().UnixNano())

		if _, err := s.LoadSummary(ctx, passID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("LoadSummary before save: err = %v, want ErrNotFound", err)
		}

		first := Summary{PassID: passID, Status: StatusFailed, Phases: 3, Errors: 1, Error: "boom", Duration: time.Second, CompletedAt: time.Now()}
		if err := s.SaveSummary(ctx, first); err != nil {
			t.Fatalf("SaveSummary: %v", err)
		}
		second := Summary{PassID: passID, Status: StatusCompleted, Phases: 7, Duration: 2 * time.Second, CompletedAt: time.Now()}
		if err := s.SaveSummary(ctx, second); err != nil {
			t.Fatalf("SaveSummary (replace): %v", err)
		}

		got, err := s.LoadSummary(ctx, passID)
		if err != nil {
			t.Fatalf("LoadSummary: %v", err)
		}
		if got.Status != StatusCompleted || got.Phases != 7 || got.Errors != 0 || got.Error != "" || got.Duration != 2*time.Second {
			t.Errorf("summary = %+v, want %+v", got, second)
		}
		if !got.CompletedAt.Equal(second.CompletedAt) {
			t.Errorf("completedAt = %v, want %v", got.CompletedAt, second.CompletedAt)
		}
	})

	t.Run("concurrent completions", func(t *testing.T) {
		s := newStore(t)
		passID := fmt.Sprintf("conc-%d", time.Now().UnixNano())

		var wg sync.WaitGroup
		errs := make(chan error, 50)
		for i := 1; i <= 50; i++ {
			wg.Add(1)
			go func(seq int64) {
				defer wg.Done()
				errs <- s.SaveCompletion(ctx, Completion{PassID: passID, Seq: seq, Stage: "finalize", CompletedAt: time.Now()})
			}(int64(i))
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("SaveCompletion: %v", err)
			}
		}

		got, err := s.Completions(ctx, passID)
		if err != nil {
			t.Fatalf("Completions: %v", err)
		}
		if len(got) != 50 {
			t.Fatalf("got %d completions, want 50", len(got))
		}
	})

	t.Run("closed store rejects operations", func(t *testing.T) {
		s := newStore(t)
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("second Close: %v", err)
		}
		if err := s.SaveCompletion(ctx, Completion{PassID: "x", Seq: 1}); !errors.Is(err, ErrClosed) {
			t.Errorf("SaveCompletion after close: err = %v, want ErrClosed", err)
		}
		if _, err := s.LoadSummary(ctx, "x"); !errors.Is(err, ErrClosed) {
			t.Errorf("LoadSummary after close: err = %v, want ErrClosed", err)
		}
	})
}
