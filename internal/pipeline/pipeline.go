// Package pipeline runs one spoken command through the whole engine:
// extraction, clarification gating, procedure navigation, memory retrieval,
// provider generation, and reply composition. Commands for the same session
// are serialized by the session manager; the pipeline itself is stateless.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldvoice/fieldvoice/internal/assets"
	"github.com/fieldvoice/fieldvoice/internal/business"
	"github.com/fieldvoice/fieldvoice/internal/compose"
	"github.com/fieldvoice/fieldvoice/internal/intent"
	"github.com/fieldvoice/fieldvoice/internal/memory"
	"github.com/fieldvoice/fieldvoice/internal/metrics"
	"github.com/fieldvoice/fieldvoice/internal/models"
	"github.com/fieldvoice/fieldvoice/internal/orchestrator"
	"github.com/fieldvoice/fieldvoice/internal/procedure"
	"github.com/fieldvoice/fieldvoice/internal/provider"
	"github.com/fieldvoice/fieldvoice/internal/session"
)

// systemPrompt frames every generative call.
const systemPrompt = "You are a hands-free voice assistant for field maintenance technicians. " +
	"Answer in one or two short spoken sentences. Use the provided notes from earlier " +
	"interactions when they are relevant. If you do not know, say so plainly."

const (
	// defaultRetrieveK is how many memory snippets ride along with a
	// generative call when the deployment does not say otherwise.
	defaultRetrieveK = 5
	// recallImportance is the salience assigned to remembered exchanges.
	recallImportance = 0.4
	// defaultDeadline bounds one command end to end, covering every
	// suspension point: embedding calls, memory retrieval, and the
	// provider race.
	defaultDeadline = 1200 * time.Millisecond
)

// Pipeline wires the engine's components together.
type Pipeline struct {
	extractor  *intent.Extractor
	sessions   *session.Manager
	procedures *procedure.Manager
	memory     *memory.Store
	orch       *orchestrator.Orchestrator
	composer   *compose.Composer
	resolver   assets.Resolver
	dispatcher business.Dispatcher
	collector  *metrics.Collector
	logger     *slog.Logger
	retrieveK  int
	deadline   time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithResolver sets the asset registry lookup.
func WithResolver(r assets.Resolver) Option {
	return func(p *Pipeline) { p.resolver = r }
}

// WithDispatcher sets the downstream action sink.
func WithDispatcher(d business.Dispatcher) Option {
	return func(p *Pipeline) { p.dispatcher = d }
}

// WithCollector sets the metrics collector.
func WithCollector(c *metrics.Collector) Option {
	return func(p *Pipeline) { p.collector = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithRetrieveK sets how many memory snippets accompany a generative call.
func WithRetrieveK(k int) Option {
	return func(p *Pipeline) {
		if k > 0 {
			p.retrieveK = k
		}
	}
}

// WithDeadline sets the end-to-end budget for one command.
func WithDeadline(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.deadline = d
		}
	}
}

// New creates a pipeline over the given components.
func New(
	extractor *intent.Extractor,
	sessions *session.Manager,
	procedures *procedure.Manager,
	mem *memory.Store,
	orch *orchestrator.Orchestrator,
	composer *compose.Composer,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		extractor:  extractor,
		sessions:   sessions,
		procedures: procedures,
		memory:     mem,
		orch:       orch,
		composer:   composer,
		collector:  metrics.NewCollector(),
		logger:     slog.Default(),
		retrieveK:  defaultRetrieveK,
		deadline:   defaultDeadline,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle runs one transcript through the engine and returns the spoken
// reply. Every outcome, including failures, produces speakable text; the
// returned error reports internal faults the caller may want to log, never
// something the worker has to hear raw.
func (p *Pipeline) Handle(ctx context.Context, sessionID, transcript string, upstreamConfidence float64) (models.Reply, error) {
	start := time.Now()
	defer func() { p.collector.RecordTiming(metrics.OpPipeline, time.Since(start)) }()

	// One budget from command arrival. A hung embedding or provider
	// backend fails the command instead of pinning the session lock.
	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	extractStart := time.Now()
	cmd, err := p.extractor.Extract(sessionID, transcript, upstreamConfidence)
	if err != nil {
		p.collector.RecordError(metrics.OpExtract)
		if errors.Is(err, models.ErrExtraction) {
			p.logger.Info("extraction rejected input", "session_id", sessionID, "error", err)
			return p.composer.FromExtractionError(sessionID), nil
		}
		return p.composer.FromExtractionError(sessionID), fmt.Errorf("extract: %w", err)
	}
	p.collector.RecordTiming(metrics.OpExtract, time.Since(extractStart))

	p.logger.Debug("command extracted",
		"session_id", sessionID, "intent", cmd.Intent, "confidence", cmd.Confidence)

	var reply models.Reply
	err = p.sessions.Do(ctx, sessionID, func(sess *models.Session) error {
		sess.History = append(sess.History, cmd)
		p.resolveAsset(ctx, sess, cmd)

		var handleErr error
		reply, handleErr = p.handleCommand(ctx, sess, cmd)
		return handleErr
	})
	if err != nil {
		return p.composer.FromInternalError(sessionID), fmt.Errorf("handle command: %w", err)
	}
	return reply, nil
}

// handleCommand routes an extracted command. Runs with exclusive ownership
// of the session.
func (p *Pipeline) handleCommand(ctx context.Context, sess *models.Session, cmd models.Command) (models.Reply, error) {
	if p.composer.NeedsClarification(cmd) {
		p.logger.Info("clarifying low-confidence command",
			"session_id", sess.ID, "intent", cmd.Intent, "confidence", cmd.Confidence)
		return p.composer.Clarify(cmd), nil
	}

	switch {
	case cmd.Intent.IsNavigation() || cmd.Intent == models.IntentCloseSession:
		return p.handleNavigation(ctx, sess, cmd)
	case cmd.Intent == models.IntentCreateTask || cmd.Intent == models.IntentQueryStatus:
		return p.handleAction(ctx, sess, cmd)
	default:
		return p.handleGenerative(ctx, sess, cmd)
	}
}

func (p *Pipeline) handleNavigation(ctx context.Context, sess *models.Session, cmd models.Command) (models.Reply, error) {
	nav, err := p.procedures.Apply(ctx, sess, cmd)
	if err != nil {
		if errors.Is(err, models.ErrProcedureState) {
			return p.composer.FromProcedureError(cmd, nav.Text), nil
		}
		return models.Reply{}, fmt.Errorf("navigation: %w", err)
	}
	return p.composer.FromNavigation(cmd, nav), nil
}

func (p *Pipeline) handleAction(ctx context.Context, sess *models.Session, cmd models.Command) (models.Reply, error) {
	reply := p.composer.FromAction(cmd)

	if p.dispatcher != nil && reply.Action != nil {
		if err := p.dispatcher.Dispatch(ctx, sess.ID, *reply.Action); err != nil {
			p.logger.Error("action dispatch failed",
				"session_id", sess.ID, "type", reply.Action.Type, "error", err)
			return models.Reply{
				SessionID: sess.ID,
				Text:      "I couldn't reach the work order system just now. Please try again in a moment.",
				Outcome:   models.OutcomeError,
			}, nil
		}
	}

	p.remember(ctx, cmd)
	return reply, nil
}

func (p *Pipeline) handleGenerative(ctx context.Context, sess *models.Session, cmd models.Command) (models.Reply, error) {
	prompt := provider.Prompt{
		System:  systemPrompt,
		User:    cmd.Transcript,
		Context: p.recall(ctx, sess, cmd),
	}

	callStart := time.Now()
	result, err := p.orch.Ask(ctx, prompt)
	if err != nil {
		p.collector.RecordError(metrics.OpProviderCall)
		if errors.Is(err, models.ErrServiceUnavailable) {
			p.logger.Warn("providers exhausted", "session_id", sess.ID, "error", err)
			return p.composer.FromGeneration(cmd, result), nil
		}
		return models.Reply{}, fmt.Errorf("generate: %w", err)
	}
	p.collector.RecordTiming(metrics.OpProviderCall, time.Since(callStart))

	reply := p.composer.FromGeneration(cmd, result)
	if reply.Outcome == models.OutcomeAnswer {
		p.rememberExchange(ctx, cmd, result.Text)
	}
	return reply, nil
}

// recall fetches memory snippets for the prompt. A broken memory store
// degrades to an empty context rather than failing the command.
func (p *Pipeline) recall(ctx context.Context, sess *models.Session, cmd models.Command) []string {
	assetFilter := cmd.Entity(models.EntityAssetID)
	if assetFilter == "" && sess.Asset != nil {
		assetFilter = sess.Asset.AssetID
	}

	retrieveStart := time.Now()
	scored, err := p.memory.RetrieveText(ctx, cmd.Transcript, p.retrieveK, assetFilter)
	if err != nil {
		p.collector.RecordError(metrics.OpMemoryRetrieve)
		p.logger.Warn("memory retrieval degraded", "session_id", sess.ID, "error", err)
		return nil
	}
	p.collector.RecordTiming(metrics.OpMemoryRetrieve, time.Since(retrieveStart))

	snippets := make([]string, 0, len(scored))
	for _, s := range scored {
		snippets = append(snippets, s.Record.SourceText)
	}
	return snippets
}

// remember stores the command itself so later questions can find it.
func (p *Pipeline) remember(ctx context.Context, cmd models.Command) {
	p.insertMemory(ctx, cmd.Transcript, cmd.Entity(models.EntityAssetID), 0.6)
}

// rememberExchange stores a question together with its answer.
func (p *Pipeline) rememberExchange(ctx context.Context, cmd models.Command, answer string) {
	text := fmt.Sprintf("Q: %s A: %s", cmd.Transcript, answer)
	p.insertMemory(ctx, text, cmd.Entity(models.EntityAssetID), recallImportance)
}

func (p *Pipeline) insertMemory(ctx context.Context, text, assetID string, importance float64) {
	insertStart := time.Now()
	if _, err := p.memory.Insert(ctx, text, assetID, importance); err != nil {
		p.collector.RecordError(metrics.OpMemoryInsert)
		p.logger.Warn("memory insert failed", "error", err)
		return
	}
	p.collector.RecordTiming(metrics.OpMemoryInsert, time.Since(insertStart))
}

// resolveAsset caches the asset descriptor on the session the first time an
// asset ID is spoken. Resolution failures are logged and skipped; the
// command itself does not depend on the registry.
func (p *Pipeline) resolveAsset(ctx context.Context, sess *models.Session, cmd models.Command) {
	if p.resolver == nil {
		return
	}
	assetID := cmd.Entity(models.EntityAssetID)
	if assetID == "" {
		return
	}
	if sess.Asset != nil && sess.Asset.AssetID == assetID && sess.Asset.Descriptor != nil {
		return
	}

	desc, err := p.resolver.Resolve(ctx, assetID)
	if err != nil {
		if errors.Is(err, assets.ErrAssetNotFound) {
			p.logger.Info("unknown asset", "session_id", sess.ID, "asset_id", assetID)
		} else {
			p.logger.Warn("asset resolution failed", "session_id", sess.ID, "asset_id", assetID, "error", err)
		}
		sess.Asset = &models.AssetContext{AssetID: assetID}
		return
	}
	sess.Asset = &models.AssetContext{AssetID: assetID, Descriptor: desc}
}

// Stats returns the pipeline's runtime metrics.
func (p *Pipeline) Stats() metrics.Snapshot {
	return p.collector.Snapshot()
}
