package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/webchat-ai/webchat/internal/llm"
)

// Factory builds an engine for a model, reporting raw provider progress
// text through report as it goes.
type Factory func(ctx context.Context, model string, report func(raw string)) (llm.Engine, error)

// ProgressFunc receives normalized initialization progress.
type ProgressFunc func(phase Phase, text string)

// Manager reconciles requested models against the shared Registry:
// reuse the cached engine, await an in-flight creation, or start a new
// one.
type Manager struct {
	registry *Registry
	factory  Factory
	logger   *zap.Logger

	// Pause between tearing down a wedged engine and recreating it.
	reinitDelay time.Duration
}

func NewManager(registry *Registry, factory Factory, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		registry:    registry,
		factory:     factory,
		logger:      logger,
		reinitDelay: time.Second,
	}
}

// Ready reports whether an engine for model is live right now.
func (m *Manager) Ready(model string) bool {
	return m.registry.Ready(model)
}

// Initializing reports whether an engine creation is in flight.
func (m *Manager) Initializing() bool {
	return m.registry.initializing()
}

// Ensure returns a ready engine for model. Concurrent callers for the
// same model during initialization all resolve to the same instance;
// only one creation is ever in flight.
func (m *Manager) Ensure(ctx context.Context, model string, progress ProgressFunc) (llm.Engine, error) {
	for {
		r := m.registry

		r.mu.Lock()
		if r.engine != nil && r.model == model {
			engine := r.engine
			r.mu.Unlock()
			return engine, nil
		}

		if fl := r.creating; fl != nil {
			r.mu.Unlock()
			report(progress, PhaseLoad, "model is being prepared (shared initialization)")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-fl.done:
			}
			if fl.err != nil {
				return nil, fl.err
			}
			if fl.model == model {
				report(progress, PhaseReady, "model ready")
				return fl.engine, nil
			}
			// Someone initialized a different model; retry for ours.
			continue
		}

		// Record the in-flight marker before the first suspension point
		// so no concurrent caller can start a second creation.
		createCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl := &inflight{model: model, done: make(chan struct{}), cancel: cancel}
		r.creating = fl
		r.mu.Unlock()

		engine, err := m.create(createCtx, fl, model, progress)
		if err != nil {
			return nil, err
		}
		return engine, nil
	}
}

// create runs the factory for an already-registered inflight handle and
// publishes the result.
func (m *Manager) create(ctx context.Context, fl *inflight, model string, progress ProgressFunc) (llm.Engine, error) {
	m.logger.Info("initializing engine", zap.String("model", model))

	engine, err := m.factory(ctx, model, func(raw string) {
		phase, text := NormalizeProgress(raw)
		report(progress, phase, text)
	})

	r := m.registry
	r.mu.Lock()
	if r.creating == fl {
		r.creating = nil
		if err == nil {
			r.engine = engine
			r.model = model
		}
	}
	r.mu.Unlock()
	fl.settle(engine, err)

	if err != nil {
		m.logger.Error("engine initialization failed", zap.String("model", model), zap.Error(err))
		return nil, err
	}
	m.logger.Info("engine ready", zap.String("model", model))
	report(progress, PhaseReady, "model ready")
	return engine, nil
}

// ForceReinit tears the registry down unconditionally (failing any
// in-flight awaiters) and performs a fresh creation. Used to recover
// from a wedged engine after a request timeout.
func (m *Manager) ForceReinit(ctx context.Context, model string, progress ProgressFunc) (llm.Engine, error) {
	m.logger.Warn("forcing engine reinitialization", zap.String("model", model))
	report(progress, PhaseLoad, "reinitializing engine")

	m.registry.reset()

	if m.reinitDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.reinitDelay):
		}
	}

	return m.Ensure(ctx, model, progress)
}

func report(progress ProgressFunc, phase Phase, text string) {
	if progress != nil {
		progress(phase, text)
	}
}
