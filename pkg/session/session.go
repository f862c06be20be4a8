// Package session hosts the single live game of a player: it feeds decisions to the
// engine, owns the current state and decides when it is saved.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Guivernoir/CISO-sim/pkg/catalog"
	"github.com/Guivernoir/CISO-sim/pkg/engine"
	"github.com/Guivernoir/CISO-sim/pkg/observability"
	"github.com/Guivernoir/CISO-sim/pkg/persistence"
	"github.com/Guivernoir/CISO-sim/pkg/savestore"
	"github.com/Guivernoir/CISO-sim/pkg/simerr"
)

// ResumeOutcome says what Resume ended up doing.
type ResumeOutcome string

const (
	// Resumed means the saved game was loaded.
	Resumed ResumeOutcome = "RESUMED"
	// NoSave means the slot was empty and a new game was started.
	NoSave ResumeOutcome = "NO_SAVE"
	// Discarded means the save could not be opened and a new game was started.
	Discarded ResumeOutcome = "DISCARDED"
)

// Session is safe for concurrent use; turns are applied one at a time.
type Session struct {
	engine  *engine.Engine
	catalog *catalog.Catalog
	saves   *persistence.Manager
	store   savestore.Store
	backend string
	unlock  *rate.Limiter

	logger    *slog.Logger
	telemetry *observability.Provider

	mu    sync.Mutex
	state engine.State
}

// Option configures a Session.
type Option func(*Session)

// WithUnlockLimit throttles Resume attempts. The default allows one attempt per
// second with a burst of three.
func WithUnlockLimit(r rate.Limit, burst int) Option {
	return func(s *Session) { s.unlock = rate.NewLimiter(r, burst) }
}

// WithBackendName labels save metrics.
func WithBackendName(name string) Option {
	return func(s *Session) { s.backend = name }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithTelemetry attaches a telemetry provider.
func WithTelemetry(p *observability.Provider) Option {
	return func(s *Session) { s.telemetry = p }
}

// New starts a session on a fresh game.
func New(e *engine.Engine, cat *catalog.Catalog, saves *persistence.Manager, store savestore.Store, opts ...Option) (*Session, error) {
	s := &Session{
		engine:  e,
		catalog: cat,
		saves:   saves,
		store:   store,
		backend: "unknown",
		unlock:  rate.NewLimiter(rate.Every(time.Second), 3),
		logger:  slog.Default().With("component", "session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.telemetry == nil {
		var err error
		if s.telemetry, err = observability.New(context.Background(), nil); err != nil {
			return nil, simerr.Wrap(context.Background(), simerr.SystemFailure, "session.telemetry", err)
		}
	}
	if err := s.NewGame(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewGame discards the current game and starts over.
func (s *Session) NewGame() error {
	st, err := s.engine.NewGame(s.catalog.FinalTurn())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.logger.Info("new game", "session", st.SessionID, "turns", st.FinalTurn)
	return nil
}

// State returns a copy of the live state.
func (s *Session) State() engine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// View projects the live state together with the decision awaiting the player.
func (s *Session) View(ctx context.Context) engine.ViewState {
	st := s.State()
	if st.Ended() {
		return s.engine.View(st, nil)
	}
	d, err := s.catalog.ForTurn(ctx, st.Turn)
	if err != nil {
		return s.engine.View(st, nil)
	}
	return s.engine.View(st, &d)
}

// Choose applies choiceID to the current decision. On error the game is unchanged.
func (s *Session) Choose(ctx context.Context, choiceID string) (engine.TurnReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Ended() {
		return engine.TurnReport{}, simerr.Wrap(ctx, simerr.InvalidAction, "session.choose", fmt.Errorf("game over"))
	}
	d, err := s.catalog.ForTurn(ctx, s.state.Turn)
	if err != nil {
		return engine.TurnReport{}, err
	}
	next, report, err := s.engine.AdvanceTurn(ctx, s.state, d, choiceID)
	if err != nil {
		return engine.TurnReport{}, err
	}
	s.state = next
	return report, nil
}

// Save seals the live state into slot. Storage failures are SystemFailure.
func (s *Session) Save(ctx context.Context, slot string, secret []byte) error {
	st := s.State()
	blob, err := s.saves.Save(ctx, st, secret)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, slot, blob); err != nil {
		return simerr.Wrap(ctx, simerr.SystemFailure, "session.save", err)
	}
	s.telemetry.Saved(ctx, s.backend)
	s.logger.InfoContext(ctx, "game saved", "session", st.SessionID, "slot", slot, "turn", st.Turn)
	return nil
}

// Resume loads slot. An empty slot starts a new game. A save that cannot be opened
// also starts a new game and is reported as StateCorruption. Storage failures leave the
// live game untouched and are SystemFailure.
func (s *Session) Resume(ctx context.Context, slot string, secret []byte) (ResumeOutcome, error) {
	if err := s.unlock.Wait(ctx); err != nil {
		return "", simerr.Wrap(ctx, simerr.SystemFailure, "session.resume", err)
	}

	blob, err := s.store.Get(ctx, slot)
	if errors.Is(err, savestore.ErrNotFound) {
		if err := s.NewGame(); err != nil {
			return "", err
		}
		return NoSave, nil
	}
	if err != nil {
		return "", simerr.Wrap(ctx, simerr.SystemFailure, "session.resume", err)
	}

	st, loadErr := s.saves.Load(ctx, blob, secret)
	if loadErr == nil && st.FinalTurn != s.catalog.FinalTurn() {
		loadErr = simerr.Wrap(ctx, simerr.StateCorruption, "session.resume",
			fmt.Errorf("save spans %d turns, catalog has %d", st.FinalTurn, s.catalog.FinalTurn()))
	}
	if loadErr != nil {
		s.logger.WarnContext(ctx, "save discarded", "slot", slot, "code", simerr.KindOf(loadErr).Code())
		if err := s.NewGame(); err != nil {
			return "", err
		}
		return Discarded, loadErr
	}

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.logger.InfoContext(ctx, "game resumed", "session", st.SessionID, "slot", slot, "turn", st.Turn)
	return Resumed, nil
}

// Slots lists saved slots.
func (s *Session) Slots(ctx context.Context) ([]string, error) {
	slots, err := s.store.List(ctx)
	if err != nil {
		return nil, simerr.Wrap(ctx, simerr.SystemFailure, "session.slots", err)
	}
	return slots, nil
}

// Delete removes a slot.
func (s *Session) Delete(ctx context.Context, slot string) error {
	if err := s.store.Delete(ctx, slot); err != nil {
		return simerr.Wrap(ctx, simerr.SystemFailure, "session.delete", err)
	}
	return nil
}
