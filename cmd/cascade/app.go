package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zoobzio/capitan"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-cascade/internal/cascade"
	"github.com/danielpatrickdp/adaptive-cascade/internal/config"
	"github.com/danielpatrickdp/adaptive-cascade/internal/detector"
	"github.com/danielpatrickdp/adaptive-cascade/internal/embed"
	"github.com/danielpatrickdp/adaptive-cascade/internal/events"
	"github.com/danielpatrickdp/adaptive-cascade/internal/exclusion"
	"github.com/danielpatrickdp/adaptive-cascade/internal/ledger"
	"github.com/danielpatrickdp/adaptive-cascade/internal/pattern"
)

// #region app

// app holds everything a command needs to run turns.
type app struct {
	ctrl      *cascade.Controller
	store     *pattern.Store
	persister pattern.Persister
	ledger    *ledger.Ledger
	client    *embed.Client
	exemplars *sql.DB // owned only when the pattern backend is not sqlite
	unhook    []func()
}

// buildApp wires detectors, pattern memory, the ledger and the controller.
// offline swaps the gRPC codec for the hashing embedder and disables the
// knowledge bypass.
func buildApp(ctx context.Context, cfg *config.Config, log *zap.Logger, offline bool) (*app, error) {
	a := &app{}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	var (
		err      error
		embedder embed.Embedder
		opts     []cascade.Option
	)
	if offline {
		embedder = embed.NewHashEmbedder(cfg.Upstream.Dimension)
	} else {
		if a.client, err = embed.NewClient(cfg.Upstream.Addr, cfg.Upstream.Dimension); err != nil {
			return nil, err
		}
		embedder = a.client
		if cfg.Upstream.Knowledge {
			opts = append(opts, cascade.WithSearcher(a.client))
		}
	}

	if a.persister, err = pattern.OpenPersister(cfg.Storage.PatternBackend, cfg.Storage.PatternLocation()); err != nil {
		return nil, err
	}

	set := detector.NewSet(cfg.Detector, embedder, log)
	if err = set.Bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap detectors: %w", err)
	}
	if db, err := a.exemplarDB(cfg); err != nil {
		return nil, err
	} else if db != nil {
		es, err := detector.NewExemplarStore(db)
		if err != nil {
			return nil, err
		}
		n, err := set.RestoreFrom(es, log)
		if err != nil {
			return nil, fmt.Errorf("restore exemplars: %w", err)
		}
		set.SetSink(es)
		log.Info("exemplars restored", zap.Int("count", n))
	}

	a.store = pattern.NewStore(cfg.Pattern, set.Names(), a.persister, log)
	if lerr := a.store.Load(); lerr != nil && !errors.Is(lerr, pattern.ErrCorruptPersistedState) {
		return nil, lerr
	}

	if cfg.Storage.LedgerDSN != "" {
		if a.ledger, err = ledger.Open(cfg.Storage.LedgerDSN, log); err != nil {
			return nil, err
		}
	}

	if cfg.Phrases != nil {
		opts = append(opts, cascade.WithRenderer(*cfg.Phrases))
	}
	opts = append(opts, cascade.WithLogger(log))
	a.ctrl = cascade.NewController(cfg.Cascade, set, exclusion.NewComputer(cfg.Exclusion), a.store, embedder, opts...)
	a.unhook = hookEvents(log)
	ready = true
	return a, nil
}

// exemplarDB shares the sqlite pattern database when there is one. The memory
// backend keeps exemplars in memory too.
func (a *app) exemplarDB(cfg *config.Config) (*sql.DB, error) {
	if sp, ok := a.persister.(*pattern.SQLitePersister); ok {
		return sp.DB(), nil
	}
	if cfg.Storage.Database == "" || cfg.Storage.PatternBackend == pattern.BackendMemory {
		return nil, nil
	}
	db, err := sql.Open("sqlite", cfg.Storage.Database)
	if err != nil {
		return nil, fmt.Errorf("open exemplar db: %w", err)
	}
	a.exemplars = db
	return db, nil
}

// session starts a session that records to the ledger when one is configured.
func (a *app) session(id string) *cascade.Session {
	var opts []cascade.SessionOption
	if a.ledger != nil {
		opts = append(opts, cascade.WithRecorder(a.ledger))
	}
	if id != "" {
		opts = append(opts, cascade.WithSessionID(id))
	}
	return cascade.NewSession(a.ctrl, cfg.Trajectory, opts...)
}

// Close releases everything buildApp opened.
func (a *app) Close() {
	for _, fn := range a.unhook {
		fn()
	}
	if a.ledger != nil {
		a.ledger.Close()
	}
	if a.persister != nil {
		a.persister.Close()
	}
	if a.exemplars != nil {
		a.exemplars.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
}

// #endregion app

// #region events

// hookEvents forwards cascade and pattern events to the log and returns the
// functions that remove the hooks.
func hookEvents(log *zap.Logger) []func() {
	log = log.Named("events")
	halted := capitan.Hook(events.TurnHalted, func(_ context.Context, e *capitan.Event) {
		id, _ := events.FieldTurnID.From(e)
		gate, _ := events.FieldGate.From(e)
		decision, _ := events.FieldDecision.From(e)
		log.Debug("halted", zap.String("turn_id", id), zap.String("gate", gate), zap.String("decision", decision))
	})
	applied := capitan.Hook(events.UpdateApplied, func(_ context.Context, e *capitan.Event) {
		id, _ := events.FieldTurnID.From(e)
		sign, _ := events.FieldSign.From(e)
		changed, _ := events.FieldChanged.From(e)
		log.Debug("update applied", zap.String("turn_id", id), zap.String("sign", sign), zap.Int("changed", changed))
	})
	rejected := capitan.Hook(events.InvariantRejected, func(_ context.Context, e *capitan.Event) {
		id, _ := events.FieldTurnID.From(e)
		err, _ := events.FieldError.From(e)
		log.Warn("invariant rejected", zap.String("turn_id", id), zap.Error(err))
	})
	reset := capitan.Hook(events.StateReset, func(_ context.Context, e *capitan.Event) {
		err, _ := events.FieldError.From(e)
		log.Warn("pattern memory reset", zap.Error(err))
	})
	return []func(){
		func() { halted.Close() },
		func() { applied.Close() },
		func() { rejected.Close() },
		func() { reset.Close() },
	}
}

// #endregion events
