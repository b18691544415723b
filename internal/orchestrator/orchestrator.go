// Package orchestrator races ranked AI provider adapters and applies the
// fallback chain. Each invocation is independent and safely reentrant
// across concurrent sessions; the orchestrator owns no long-lived state.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldvoice/fieldvoice/internal/models"
	"github.com/fieldvoice/fieldvoice/internal/provider"
)

// UnavailableText is the safe pre-canned reply spoken when every provider
// is exhausted. Never silence.
const UnavailableText = "I'm sorry, I can't reach the assistant service right now. Your request was not lost; please try again in a moment."

// Config holds the race and fallback parameters.
type Config struct {
	// RaceWidth is how many top-ranked providers are raced concurrently.
	RaceWidth int
	// ProviderTimeout bounds each individual backend call.
	ProviderTimeout time.Duration
	// GlobalDeadline bounds the whole invocation, race and fallback
	// included. Zero disables it (callers usually bring their own).
	GlobalDeadline time.Duration
	// ConfidenceFloor is the minimum confidence a result needs to win.
	ConfidenceFloor float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		RaceWidth:       2,
		ProviderTimeout: 800 * time.Millisecond,
		GlobalDeadline:  1200 * time.Millisecond,
		ConfidenceFloor: 0.5,
	}
}

// Orchestrator fans a prompt out to a ranked adapter list.
type Orchestrator struct {
	adapters []provider.Adapter
	cfg      Config
	logger   *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an Orchestrator over a ranked adapter list, highest priority
// first. The list is copied; later mutation by the caller has no effect.
func New(adapters []provider.Adapter, cfg Config, opts ...Option) *Orchestrator {
	if cfg.RaceWidth < 1 {
		cfg.RaceWidth = 1
	}
	o := &Orchestrator{
		adapters: append([]provider.Adapter(nil), adapters...),
		cfg:      cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// outcome carries one adapter's result through the race channel.
type outcome struct {
	rank   int
	result models.ProviderResult
	err    error
}

// Ask races the top-ranked providers, then falls back serially through the
// rest. The first success at or above the confidence floor wins and cancels
// the remaining in-flight calls.
//
// On exhaustion the returned result carries the safe pre-canned reply text
// and the error wraps models.ErrServiceUnavailable.
func (o *Orchestrator) Ask(ctx context.Context, prompt provider.Prompt) (models.ProviderResult, error) {
	if len(o.adapters) == 0 {
		return o.unavailable(), fmt.Errorf("no providers configured: %w", models.ErrServiceUnavailable)
	}

	if o.cfg.GlobalDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.GlobalDeadline)
		defer cancel()
	}

	width := o.cfg.RaceWidth
	if width > len(o.adapters) {
		width = len(o.adapters)
	}

	if result, ok := o.race(ctx, o.adapters[:width], prompt); ok {
		return result, nil
	}

	// Race failed entirely: fall through the remaining providers strictly
	// in priority order.
	for rank := width; rank < len(o.adapters); rank++ {
		if ctx.Err() != nil {
			break
		}
		out := o.call(ctx, rank, o.adapters[rank], prompt)
		if o.qualified(out) {
			return out.result, nil
		}
		o.logFailure(out)
	}

	return o.unavailable(), fmt.Errorf("provider list exhausted: %w", models.ErrServiceUnavailable)
}

// race runs the batch concurrently and accepts the first qualified result.
// Losing in-flight calls are cancelled on acceptance; their results are
// discarded and never reach session state.
func (o *Orchestrator) race(ctx context.Context, batch []provider.Adapter, prompt provider.Prompt) (models.ProviderResult, bool) {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan outcome, len(batch))
	for rank, adapter := range batch {
		go func(rank int, adapter provider.Adapter) {
			ch <- o.call(batchCtx, rank, adapter, prompt)
		}(rank, adapter)
	}

	pending := len(batch)
	for pending > 0 {
		select {
		case out := <-ch:
			pending--
			if !o.qualified(out) {
				o.logFailure(out)
				continue
			}
			// First qualified arrival wins. If another qualified result
			// was delivered in the same instant, prefer the higher
			// confidence, then the higher priority rank.
			best := out
			for drained := true; drained && pending > 0; {
				select {
				case extra := <-ch:
					pending--
					if o.qualified(extra) && better(extra, best) {
						best = extra
					}
				default:
					drained = false
				}
			}
			return best.result, true
		case <-ctx.Done():
			return models.ProviderResult{}, false
		}
	}
	return models.ProviderResult{}, false
}

// call invokes one adapter under the per-provider timeout.
func (o *Orchestrator) call(ctx context.Context, rank int, adapter provider.Adapter, prompt provider.Prompt) outcome {
	callCtx := ctx
	if o.cfg.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.ProviderTimeout)
		defer cancel()
	}

	start := time.Now()
	gen, err := adapter.Generate(callCtx, prompt)
	latency := time.Since(start)

	result := models.ProviderResult{
		ProviderID: adapter.Name(),
		Latency:    latency,
	}
	if err != nil {
		result.ErrKind = provider.ClassifyErr(err)
		if callCtx.Err() == context.DeadlineExceeded {
			result.ErrKind = models.ProviderErrTimeout
		}
		return outcome{rank: rank, result: result, err: err}
	}

	result.Success = true
	result.Text = gen.Text
	result.Confidence = gen.Confidence
	if gen.Confidence < o.cfg.ConfidenceFloor {
		result.ErrKind = models.ProviderErrLowConf
	}
	return outcome{rank: rank, result: result}
}

// qualified reports whether an outcome can win: a success at or above the
// confidence floor. Sub-floor successes count as failures for fallback.
func (o *Orchestrator) qualified(out outcome) bool {
	return out.err == nil && out.result.Success && out.result.Confidence >= o.cfg.ConfidenceFloor
}

// better orders two qualified outcomes delivered simultaneously:
// higher confidence first, then higher priority rank.
func better(a, b outcome) bool {
	if a.result.Confidence != b.result.Confidence {
		return a.result.Confidence > b.result.Confidence
	}
	return a.rank < b.rank
}

func (o *Orchestrator) logFailure(out outcome) {
	o.logger.Warn("provider did not qualify",
		"provider", out.result.ProviderID,
		"latency_ms", out.result.Latency.Milliseconds(),
		"err_kind", out.result.ErrKind,
		"error", out.err)
}

func (o *Orchestrator) unavailable() models.ProviderResult {
	return models.ProviderResult{
		ProviderID: "none",
		Success:    false,
		Text:       UnavailableText,
		ErrKind:    models.ProviderErrFailed,
	}
}
