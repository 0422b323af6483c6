package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/cache"
)

// Action is the Security Monitor's verdict on a login.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionStepUp Action = "step-up"
	ActionBlock  Action = "block"
)

// LoginAttempt describes a login after the primary factor was checked.
type LoginAttempt struct {
	UserID    string
	Method    string
	IP        string
	UserAgent string
}

// SecurityMonitor decides whether a login may proceed. An error is never
// treated as allow.
type SecurityMonitor interface {
	Evaluate(ctx context.Context, a LoginAttempt) (Action, error)
}

// FailureRecorder is implemented by monitors that learn from outcomes.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, a LoginAttempt) error
	RecordSuccess(ctx context.Context, a LoginAttempt) error
}

// StaticMonitor returns the same verdict for every attempt.
type StaticMonitor struct {
	Action Action
}

func (m StaticMonitor) Evaluate(context.Context, LoginAttempt) (Action, error) {
	if m.Action == "" {
		return ActionAllow, nil
	}
	return m.Action, nil
}

// FailureMonitor counts failed primary authentications per user inside a
// sliding window kept in the cache. The count is cleared by a login that is
// not blocked.
type FailureMonitor struct {
	Cache       cache.Store
	Window      time.Duration
	StepUpAfter int // 0 disables step-up
	BlockAfter  int // 0 disables blocking
}

func (m *FailureMonitor) Evaluate(ctx context.Context, a LoginAttempt) (Action, error) {
	n, err := m.failures(ctx, a.UserID)
	if err != nil {
		return "", err
	}
	switch {
	case m.BlockAfter > 0 && n >= m.BlockAfter:
		return ActionBlock, nil
	case m.StepUpAfter > 0 && n >= m.StepUpAfter:
		return ActionStepUp, nil
	}
	return ActionAllow, nil
}

func (m *FailureMonitor) RecordFailure(ctx context.Context, a LoginAttempt) error {
	if _, err := m.Cache.Incr(ctx, failuresKey(a.UserID), m.window()); err != nil {
		return fmt.Errorf("failed to count login failure: %w", err)
	}
	return nil
}

func (m *FailureMonitor) RecordSuccess(ctx context.Context, a LoginAttempt) error {
	return m.Cache.Delete(ctx, failuresKey(a.UserID))
}

func (m *FailureMonitor) failures(ctx context.Context, userID string) (int, error) {
	raw, err := m.Cache.Get(ctx, failuresKey(userID))
	if errors.Is(err, cache.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read login failures: %w", err)
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("corrupt failure counter: %w", err)
	}
	return n, nil
}

func (m *FailureMonitor) window() time.Duration {
	if m.Window <= 0 {
		return 15 * time.Minute
	}
	return m.Window
}
