package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/pagesplit/pagesplit/internal/store"
)

// State machine: draft -> running -> completed, running <-> paused,
// any non-archived state -> archived.

func (e *Engine) Start(ctx context.Context, testID string) error {
	test, err := e.getTest(ctx, testID)
	if err != nil {
		return err
	}
	if test.Status != store.StatusDraft {
		return fmt.Errorf("%w: cannot start test in status %q", ErrInvalidTransition, test.Status)
	}
	return e.store.StartTest(ctx, testID, e.clock.Now())
}

func (e *Engine) Pause(ctx context.Context, testID string) error {
	test, err := e.getTest(ctx, testID)
	if err != nil {
		return err
	}
	if test.Status != store.StatusRunning {
		return fmt.Errorf("%w: cannot pause test in status %q", ErrInvalidTransition, test.Status)
	}
	return e.store.PauseTest(ctx, testID)
}

func (e *Engine) Resume(ctx context.Context, testID string) error {
	test, err := e.getTest(ctx, testID)
	if err != nil {
		return err
	}
	if test.Status != store.StatusPaused {
		return fmt.Errorf("%w: cannot resume test in status %q", ErrInvalidTransition, test.Status)
	}
	return e.store.ResumeTest(ctx, testID)
}

func (e *Engine) Complete(ctx context.Context, testID string) error {
	test, err := e.getTest(ctx, testID)
	if err != nil {
		return err
	}
	if test.Status != store.StatusRunning && test.Status != store.StatusPaused {
		return fmt.Errorf("%w: cannot complete test in status %q", ErrInvalidTransition, test.Status)
	}
	return e.store.CompleteTest(ctx, testID, e.clock.Now())
}

func (e *Engine) Archive(ctx context.Context, testID string) error {
	test, err := e.getTest(ctx, testID)
	if err != nil {
		return err
	}
	if test.Status == store.StatusArchived {
		return nil
	}
	return e.store.ArchiveTest(ctx, testID)
}

func (e *Engine) getTest(ctx context.Context, testID string) (*store.Test, error) {
	test, err := e.store.GetTest(ctx, testID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTestNotFound
	}
	return test, err
}
