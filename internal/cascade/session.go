package cascade

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-cascade/internal/pattern"
	"github.com/danielpatrickdp/adaptive-cascade/internal/trajectory"
)

// #region session

// Session is one conversation. Each turn resolves the previous one, using the
// new turn's state label and capacity as ground truth for the outcome rules.
type Session struct {
	ID string

	ctrl     *Controller
	tracker  *trajectory.Tracker
	recorder Recorder
	log      *zap.Logger

	mu       sync.Mutex
	pending  *CascadeState
	feedback *Feedback
	last     trajectory.Result
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithRecorder records every turn and outcome.
func WithRecorder(r Recorder) SessionOption {
	return func(s *Session) { s.recorder = r }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) SessionOption {
	return func(s *Session) { s.ID = id }
}

// NewSession starts a session on ctrl.
func NewSession(ctrl *Controller, traj trajectory.Config, opts ...SessionOption) *Session {
	s := &Session{
		ID:      uuid.New().String(),
		ctrl:    ctrl,
		tracker: trajectory.NewTracker(traj),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = ctrl.log.With(zap.String("session_id", s.ID))
	return s
}

// Trajectory returns the latest trajectory classification.
func (s *Session) Trajectory() trajectory.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Series returns the satisfaction series the trajectory is computed from.
func (s *Session) Series() []float64 { return s.tracker.Series() }

// #endregion session

// #region turn

// Turn processes text with no explicit signals.
func (s *Session) Turn(ctx context.Context, text string) (CascadeState, error) {
	return s.TurnWith(ctx, TurnInput{Text: text})
}

// TurnWith processes one turn and resolves the previous one. A degraded turn
// leaves the previous turn pending.
func (s *Session) TurnWith(ctx context.Context, in TurnInput) (CascadeState, error) {
	st, err := s.ctrl.ProcessTurnWith(ctx, in)
	s.record(ctx, st)
	if err != nil {
		return st, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = s.tracker.Observe(st.Satisfaction)
	if s.pending != nil {
		next := st
		if _, err := s.resolveLocked(ctx, &next); err != nil {
			s.log.Warn("resolve previous turn", zap.String("turn_id", s.pending.TurnID), zap.Error(err))
		}
	}
	s.pending = &st
	s.feedback = nil
	return st, nil
}

// Feedback attaches explicit feedback to the most recent turn. It is applied
// when that turn resolves.
func (s *Session) Feedback(fb Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return errors.New("feedback: no turn to attach to")
	}
	s.feedback = &fb
	return nil
}

// Close resolves the last turn without a successor and saves pattern memory.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.pending != nil {
		if _, err := s.resolveLocked(ctx, nil); err != nil {
			errs = append(errs, err)
		}
		s.pending = nil
	}
	if store := s.ctrl.Store(); store != nil && store.Persistent() {
		if _, err := store.Save(); err != nil {
			errs = append(errs, fmt.Errorf("save pattern memory: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Session) resolveLocked(ctx context.Context, next *CascadeState) (pattern.UpdateStats, error) {
	prev := *s.pending
	stats, err := s.ctrl.Resolve(Resolution{
		State:           prev,
		Next:            next,
		Feedback:        s.feedback,
		TrajectoryDelta: s.last.QualityDelta,
	})
	if errors.Is(err, ErrNoPatternStore) {
		return stats, nil
	}
	if err != nil && stats.Sign == "" {
		return stats, err
	}
	if n, rerr := s.ctrl.Reinforce(prev, stats); rerr != nil {
		s.log.Warn("reinforce", zap.String("turn_id", prev.TurnID), zap.Error(rerr))
	} else if n > 0 {
		s.log.Debug("turn reinforced detectors", zap.String("turn_id", prev.TurnID), zap.Int("accepted", n))
	}
	if s.recorder != nil {
		if rerr := s.recorder.RecordOutcome(ctx, s.ID, prev, stats); rerr != nil {
			s.log.Warn("record outcome", zap.String("turn_id", prev.TurnID), zap.Error(rerr))
		}
	}
	return stats, err
}

func (s *Session) record(ctx context.Context, st CascadeState) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordTurn(ctx, s.ID, st); err != nil {
		s.log.Warn("record turn", zap.String("turn_id", st.TurnID), zap.Error(err))
	}
}

// #endregion turn
