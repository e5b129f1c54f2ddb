package router

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/marketroute/marketroute/internal/metrics"
	"github.com/marketroute/marketroute/middleware"
	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/provider"
)

var nowFn = time.Now

// withRequestDeadline applies the router-wide deadline, when one is
// configured.
func (r *Router) withRequestDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.requestTimeout > 0 {
		return context.WithTimeout(ctx, r.requestTimeout)
	}
	return ctx, func() {}
}

// attempt runs one provider call under the per-provider timeout and
// normalizes timeout errors.
func (r *Router) attempt(ctx context.Context, key provider.Key, req middleware.Request) (any, error) {
	callCtx := ctx
	var cancel context.CancelFunc = func() {}
	if r.providerTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, r.providerTimeout)
	}
	defer cancel()

	start := nowFn()
	resp, err := r.pipelines[key].Invoke(callCtx, req)
	capability := string(req.Call.Capability)
	metrics.ObserveProviderDuration(string(key), capability, nowFn().Sub(start))

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			// The caller gave up; that is not a timeout.
			metrics.IncProviderRequest(string(key), capability, "canceled")
			return nil, ctx.Err()
		}
		if ctx.Err() != nil {
			// The request deadline fired, not the provider's.
			metrics.IncProviderRequest(string(key), capability, "request_timeout")
			return nil, model.ErrRequestTimeout()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			metrics.IncProviderRequest(string(key), capability, "timeout")
			return nil, model.ErrProviderTimeout(string(key))
		}
		metrics.IncProviderRequest(string(key), capability, "error")
		return nil, err
	}
	metrics.IncProviderRequest(string(key), capability, "ok")
	return resp, nil
}

// fallback walks the ranked providers and returns the first success.
// Definitive answers (not found, unsupported) are logged as warnings
// and skipped; transient failures are collected for the final collapse.
func (r *Router) fallback(ctx context.Context, keys []provider.Key, req middleware.Request,
	accept func(resp any, key provider.Key) error) (any, error) {

	capability := req.Call.Capability
	var errs []error
	for _, key := range keys {
		resp, err := r.attempt(ctx, key, req)
		if err == nil {
			err = accept(resp, key)
			if err == nil {
				return resp, nil
			}
		}
		if model.IsKind(err, model.ErrKindRequestTimeout) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		if !model.Actionable(err) {
			r.log.Debug("router.provider_skipped",
				zap.String("provider", string(key)),
				zap.String("capability", string(capability)),
				zap.Error(err))
		} else {
			r.log.Warn("router.provider_failed",
				zap.String("provider", string(key)),
				zap.String("capability", string(capability)),
				zap.Error(err))
		}
		errs = append(errs, err)
	}
	return nil, collapseErrors(capability, instrumentFor(req), errs)
}

func instrumentFor(req middleware.Request) model.Instrument {
	switch {
	case req.Instrument != nil:
		return *req.Instrument
	case req.History != nil:
		return req.History.Instrument
	}
	return model.Instrument{}
}

// collapseErrors reduces the per-provider failures of an exhausted
// fetch to a single taxonomy error. Unsupported entries count as
// "never attempted".
func collapseErrors(capability model.Capability, inst model.Instrument, errs []error) error {
	var attempted []error
	for _, err := range errs {
		if model.IsUnsupported(err) {
			continue
		}
		attempted = append(attempted, err)
	}
	if len(attempted) == 0 {
		return model.ErrUnsupported("", capability)
	}

	allNotFound, allTimeout := true, true
	for _, err := range attempted {
		if !model.IsNotFound(err) {
			allNotFound = false
		}
		if !model.IsKind(err, model.ErrKindProviderTimeout) {
			allTimeout = false
		}
	}
	if allNotFound {
		return model.ErrNotFound(inst)
	}
	if allTimeout {
		return model.ErrAllProvidersTimedOut()
	}
	if len(attempted) == 1 {
		return attempted[0]
	}
	return model.ErrAllProvidersFailed(attempted)
}
