package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
	"github.com/kirillkom/product-search-assistant/internal/core/ports"
)

// User-facing messages for failed queries. Internal error text never reaches
// the envelope.
const (
	MessagePlanningFailed       = "Sorry, I couldn't understand that request. Could you rephrase it?"
	MessageRetrievalFailed      = "Sorry, I couldn't find anything matching your request right now."
	MessageCompositionFailed    = "Sorry, I found some products but couldn't put together an answer. Please try again."
	MessageInitializationFailed = "The product search service is not available right now. Please try again later."
)

const (
	stagePlan     = "plan"
	stageRetrieve = "retrieve"
	stageCompose  = "compose"
	stageInit     = "initialize"
)

type AssistantConfig struct {
	InitTimeout      time.Duration
	PlannerTimeout   time.Duration
	RetrievalTimeout time.Duration
	ComposerTimeout  time.Duration
}

// Assistant runs planner, retriever and composer for one query at a time per
// caller. Backends are built once and shared read-only between queries.
type Assistant struct {
	initializer ports.BackendInitializer
	observer    ports.AssistantObserver
	cfg         AssistantConfig

	// initMu serializes initialization attempts; stateMu guards the fields below.
	initMu   sync.Mutex
	stateMu  sync.RWMutex
	state    domain.InitState
	backends *ports.Backends
	initErr  error
}

func NewAssistant(initializer ports.BackendInitializer, observer ports.AssistantObserver, cfg AssistantConfig) *Assistant {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Assistant{
		initializer: initializer,
		observer:    observer,
		cfg:         cfg,
		state:       domain.InitUninitialized,
	}
}

func (a *Assistant) State() domain.InitState {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.state
}

// Initialize builds the backends if no attempt has been made yet. It is a
// no-op once ready and returns the recorded error once failed.
func (a *Assistant) Initialize(ctx context.Context) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	switch state, err := a.snapshotState(); state {
	case domain.InitReady:
		return nil
	case domain.InitFailed:
		return err
	}
	return a.runInitialization(ctx)
}

// Reinitialize is the explicit external retry after a failed initialization.
func (a *Assistant) Reinitialize(ctx context.Context) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()

	if state, _ := a.snapshotState(); state == domain.InitReady {
		return nil
	}
	return a.runInitialization(ctx)
}

// runInitialization detaches from the caller's cancellation: a client that
// disconnects mid-init must not leave the assistant failed. The attempt is
// bounded by InitTimeout instead.
func (a *Assistant) runInitialization(ctx context.Context) error {
	started := time.Now()
	a.setState(domain.InitInitializing, nil, nil)

	initCtx := context.WithoutCancel(ctx)
	if a.cfg.InitTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(initCtx, a.cfg.InitTimeout)
		defer cancel()
	}

	backends, err := a.initializer.Initialize(initCtx)
	if err == nil && (backends == nil || backends.Planner == nil || backends.Retriever == nil || backends.Composer == nil) {
		err = errors.New("initializer returned incomplete backends")
	}
	if err != nil {
		wrapped := domain.WrapError(domain.ErrInitialization, "initialize backends", err)
		a.setState(domain.InitFailed, nil, wrapped)
		a.observer.ObserveStage(stageInit, "error", time.Since(started))
		slog.Error("assistant_init_failed", "error", err, "duration_ms", time.Since(started).Milliseconds())
		return wrapped
	}

	a.setState(domain.InitReady, backends, nil)
	a.observer.ObserveStage(stageInit, "ok", time.Since(started))
	slog.Info("assistant_ready", "duration_ms", time.Since(started).Milliseconds())
	return nil
}

func (a *Assistant) setState(state domain.InitState, backends *ports.Backends, err error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.state = state
	a.backends = backends
	a.initErr = err
}

func (a *Assistant) snapshotState() (domain.InitState, error) {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.state, a.initErr
}

func (a *Assistant) readyBackends() *ports.Backends {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	if a.state != domain.InitReady {
		return nil
	}
	return a.backends
}

// Handle answers one user query. It never returns an error: every failure is
// folded into an envelope with success=false and a safe message.
func (a *Assistant) Handle(ctx context.Context, userText, history string) domain.ResponseEnvelope {
	started := time.Now()

	backends := a.readyBackends()
	if backends == nil {
		if state, _ := a.snapshotState(); state == domain.InitUninitialized || state == domain.InitInitializing {
			if err := a.Initialize(ctx); err != nil {
				return a.fail(stageInit, err, nil, started)
			}
		}
		backends = a.readyBackends()
		if backends == nil {
			_, err := a.snapshotState()
			if err == nil {
				err = domain.WrapError(domain.ErrInitialization, "handle", errors.New("backends not ready"))
			}
			return a.fail(stageInit, err, nil, started)
		}
	}

	intent, err := runStage(ctx, a, stagePlan, a.cfg.PlannerTimeout, func(stageCtx context.Context) (domain.SearchIntent, error) {
		return backends.Planner.Plan(stageCtx, userText)
	})
	if err != nil {
		return a.fail(stagePlan, err, nil, started)
	}

	matches, err := runStage(ctx, a, stageRetrieve, a.cfg.RetrievalTimeout, func(stageCtx context.Context) ([]domain.ScoredMatch, error) {
		return backends.Retriever.Retrieve(stageCtx, intent)
	})
	if err != nil {
		return a.fail(stageRetrieve, err, &intent, started)
	}

	text, err := runStage(ctx, a, stageCompose, a.cfg.ComposerTimeout, func(stageCtx context.Context) (string, error) {
		return backends.Composer.Compose(stageCtx, userText, matches, intent, history)
	})
	if err != nil {
		return a.fail(stageCompose, err, &intent, started)
	}

	results := make([]domain.ProductResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, domain.ProductResult{ProductRecord: m.Product, Score: m.Score})
	}

	a.observer.ObserveQuery(true, len(results))
	slog.Info("assistant_query",
		"success", true,
		"result_count", len(results),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return domain.ResponseEnvelope{
		Success:             true,
		Response:            text,
		QueryInterpretation: &intent,
		Results:             results,
		ResultCount:         len(results),
	}
}

func (a *Assistant) fail(stage string, err error, intent *domain.SearchIntent, started time.Time) domain.ResponseEnvelope {
	a.observer.ObserveQuery(false, 0)
	slog.Warn("assistant_query",
		"success", false,
		"stage", stage,
		"kind", errorKindLabel(err),
		"error", err,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return domain.ResponseEnvelope{
		Success:             false,
		Response:            safeMessage(stage),
		QueryInterpretation: intent,
		Results:             []domain.ProductResult{},
		ResultCount:         0,
	}
}

// runStage applies the stage timeout and maps an expired deadline to
// domain.ErrUpstream.
func runStage[T any](
	ctx context.Context,
	a *Assistant,
	stage string,
	timeout time.Duration,
	fn func(context.Context) (T, error),
) (T, error) {
	stageCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	out, err := fn(stageCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !domain.IsKind(err, domain.ErrUpstream) {
			err = domain.WrapError(domain.ErrUpstream, stage, err)
		}
		a.observer.ObserveStage(stage, errorKindLabel(err), time.Since(started))
		return out, err
	}
	a.observer.ObserveStage(stage, "ok", time.Since(started))
	return out, nil
}

func safeMessage(stage string) string {
	switch stage {
	case stagePlan:
		return MessagePlanningFailed
	case stageRetrieve:
		return MessageRetrievalFailed
	case stageCompose:
		return MessageCompositionFailed
	default:
		return MessageInitializationFailed
	}
}

func errorKindLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case domain.IsKind(err, domain.ErrUpstream):
		return "upstream"
	case domain.IsKind(err, domain.ErrInitialization):
		return "initialization"
	case domain.IsKind(err, domain.ErrPlanning):
		return "planning"
	case domain.IsKind(err, domain.ErrRetrieval):
		return "retrieval"
	case domain.IsKind(err, domain.ErrComposition):
		return "composition"
	default:
		return "error"
	}
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, string, time.Duration) {}
func (noopObserver) ObserveQuery(bool, int)                     {}
