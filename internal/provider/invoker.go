package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chofesh/model-gateway/internal/catalog"
	"github.com/chofesh/model-gateway/internal/health"
	"github.com/chofesh/model-gateway/internal/metrics"
)

// Invoker dispatches a descriptor's call to the right adapter, enforces the
// per-call timeout and classifies failures for the router.
type Invoker struct {
	adapters    map[catalog.Family]Adapter
	tracker     *health.Tracker
	logger      *slog.Logger
	callTimeout time.Duration
}

// NewInvoker builds an invoker over the given adapters.
func NewInvoker(adapters []Adapter, tracker *health.Tracker, callTimeout time.Duration, logger *slog.Logger) *Invoker {
	byFamily := make(map[catalog.Family]Adapter, len(adapters))
	for _, a := range adapters {
		byFamily[a.Family()] = a
	}
	if callTimeout == 0 {
		callTimeout = 120 * time.Second
	}
	return &Invoker{
		adapters:    byFamily,
		tracker:     tracker,
		logger:      logger,
		callTimeout: callTimeout,
	}
}

// Invoke runs one chain candidate. The returned error, if any, is always a
// *Error carrying the class the router acts on. MaxRetries on the
// descriptor buys extra immediate attempts after transient failures inside
// this single call; chain-level repetition stays with the router.
func (iv *Invoker) Invoke(ctx context.Context, desc *catalog.Descriptor, req *Request) (*Response, error) {
	if len(req.Images) > 0 && !desc.Supports(catalog.ModalityVision) {
		return nil, mismatchErr(desc.Family, desc.ID,
			fmt.Errorf("model %s does not accept image input", desc.ID))
	}

	adapter, ok := iv.adapters[desc.Family]
	if !ok {
		return nil, fatalErr(desc.Family, desc.ID,
			fmt.Errorf("no adapter configured for family %s", desc.Family))
	}

	call := *req
	call.Model = desc.ID
	call.LowModeration = desc.Tier == catalog.TierRestricted

	var lastErr *Error
	for attempt := 0; attempt <= desc.MaxRetries; attempt++ {
		resp, err := iv.attempt(ctx, adapter, desc, &call)
		if err == nil {
			iv.tracker.MarkSuccess(desc.ID)
			return resp, nil
		}
		lastErr = err
		if err.Class != ClassTransient || ctx.Err() != nil {
			break
		}
		iv.logger.Debug("transient failure, retrying in call",
			"model", desc.ID, "attempt", attempt+1, "error", err.Error())
	}

	switch lastErr.Class {
	case ClassFatal:
		iv.tracker.Disable(desc.ID, lastErr)
	case ClassTransient:
		iv.tracker.MarkFailure(desc.ID, lastErr)
	}
	return nil, lastErr
}

func (iv *Invoker) attempt(ctx context.Context, adapter Adapter, desc *catalog.Descriptor, call *Request) (*Response, *Error) {
	callCtx, cancel := context.WithTimeout(ctx, iv.callTimeout)
	defer cancel()

	start := time.Now()
	raw, err := adapter.Send(callCtx, call)
	metrics.ProviderLatency.WithLabelValues(string(desc.Family)).Observe(time.Since(start).Seconds())

	if err != nil {
		// Timeouts and connection errors are worth another backend.
		return nil, transientErr(desc.Family, desc.ID, err)
	}
	if raw.Status != http.StatusOK {
		statusErr := fmt.Errorf("upstream returned status %d: %s", raw.Status, truncate(raw.Body, 200))
		if classForStatus(raw.Status) == ClassFatal {
			return nil, fatalErr(desc.Family, desc.ID, statusErr)
		}
		return nil, transientErr(desc.Family, desc.ID, statusErr)
	}

	resp, err := adapter.Normalize(raw)
	if err != nil {
		// A malformed success envelope fails this candidate, nothing more.
		return nil, transientErr(desc.Family, desc.ID, err)
	}
	if resp.Model == "" {
		resp.Model = desc.ID
	}
	return resp, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
