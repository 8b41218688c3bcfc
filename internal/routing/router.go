package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chofesh/model-gateway/internal/catalog"
	"github.com/chofesh/model-gateway/internal/credit"
	"github.com/chofesh/model-gateway/internal/metrics"
	"github.com/chofesh/model-gateway/internal/provider"
)

// Invoker runs one chain candidate. Satisfied by *provider.Invoker and by
// fakes in tests.
type Invoker interface {
	Invoke(ctx context.Context, desc *catalog.Descriptor, req *provider.Request) (*provider.Response, error)
}

// Ledger holds and settles credit costs around attempts.
type Ledger interface {
	Reserve(ctx context.Context, userID string, cost int64) (*credit.Reservation, error)
	Commit(ctx context.Context, r *credit.Reservation) error
	Release(ctx context.Context, r *credit.Reservation) error
}

// Router walks the fallback chain: reserve, invoke, then commit on success
// or release and advance. Candidates run strictly in order, never in
// parallel, and no descriptor is attempted twice within one request.
type Router struct {
	chains  *ChainBuilder
	invoker Invoker
	ledger  Ledger
	logger  *slog.Logger
}

func NewRouter(chains *ChainBuilder, invoker Invoker, ledger Ledger, logger *slog.Logger) *Router {
	return &Router{
		chains:  chains,
		invoker: invoker,
		ledger:  ledger,
		logger:  logger,
	}
}

// Route resolves one request to the first successful backend or a tagged
// error. Exactly one reservation is committed per successful request;
// every other reservation is released, including when the caller cancels.
func (r *Router) Route(ctx context.Context, req *Request) (*Response, error) {
	chain, err := r.chains.Build(req)
	if err != nil {
		return nil, r.finish(err)
	}
	if len(chain) == 0 {
		return nil, r.finish(&Error{Kind: KindNoEligibleModel,
			Err: fmt.Errorf("no model matches the request after gating")})
	}

	// An explicit choice that cannot handle the request fails before any
	// credits move; substituting a capable model was not asked for.
	if req.ExplicitModelID != "" && !chain[0].SupportsAll(req.ContentModalities) {
		return nil, r.finish(&Error{Kind: KindCapabilityMismatch,
			Err: fmt.Errorf("model %s does not support the request content", chain[0].ID)})
	}

	call := &provider.Request{
		Messages:    req.Messages,
		Images:      req.Images,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var lastErr error
	attempts := 0
	for i := range chain {
		desc := &chain[i]
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request abandoned: %w", ctx.Err())
		}

		reservation, err := r.ledger.Reserve(ctx, req.UserID, desc.CreditCost)
		if err != nil {
			if errors.Is(err, credit.ErrInsufficient) {
				// Stop here: silently downgrading to a cheaper model is a
				// product decision the caller did not make.
				return nil, r.finish(&Error{Kind: KindInsufficientCredits,
					Attempts: attempts, Err: err})
			}
			return nil, fmt.Errorf("reserve %d credits for %s: %w", desc.CreditCost, req.UserID, err)
		}

		attempts++
		resp, err := r.invoker.Invoke(ctx, desc, call)
		if err == nil {
			if err := r.ledger.Commit(ctx, reservation); err != nil {
				r.logger.Error("commit failed after successful invocation",
					"user", req.UserID, "model", desc.ID, "error", err.Error())
			}
			metrics.RouteAttempts.WithLabelValues(desc.ID, "success").Inc()
			metrics.FallbackDepth.Observe(float64(attempts))
			r.logger.Info("request served", "user", req.UserID, "model", desc.ID,
				"attempts", attempts, "credits", desc.CreditCost,
				"fingerprint", req.PromptFingerprint)
			metrics.RouteRequests.WithLabelValues("success").Inc()
			return &Response{
				Content:        resp.Content,
				ImageB64:       resp.ImageB64,
				ServedBy:       desc.ID,
				CreditsCharged: desc.CreditCost,
				Usage:          resp.Usage,
				Attempts:       attempts,
			}, nil
		}

		// The hold must come back even if the caller just cancelled.
		releaseCtx := context.WithoutCancel(ctx)
		if relErr := r.ledger.Release(releaseCtx, reservation); relErr != nil {
			r.logger.Error("release failed", "user", req.UserID,
				"model", desc.ID, "error", relErr.Error())
		}

		var pErr *provider.Error
		if errors.As(err, &pErr) && pErr.Class == provider.ClassMismatch {
			metrics.RouteAttempts.WithLabelValues(desc.ID, "mismatch").Inc()
			return nil, r.finish(&Error{Kind: KindCapabilityMismatch,
				Attempts: attempts, Err: err})
		}

		result := "transient"
		if errors.As(err, &pErr) && pErr.Class == provider.ClassFatal {
			result = "fatal"
		}
		metrics.RouteAttempts.WithLabelValues(desc.ID, result).Inc()
		r.logger.Warn("candidate failed", "user", req.UserID, "model", desc.ID,
			"result", result, "error", err.Error())
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("request abandoned: %w", ctx.Err())
		}
	}

	return nil, r.finish(&Error{Kind: KindProviderExhausted,
		Attempts: attempts, Err: lastErr})
}

func (r *Router) finish(err error) error {
	var re *Error
	if errors.As(err, &re) {
		metrics.RouteRequests.WithLabelValues(string(re.Kind)).Inc()
	}
	return err
}
