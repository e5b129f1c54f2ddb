// Package stream coordinates live market-data subscriptions across
// providers: one session per symbol group, supervised failover, and a
// per-symbol monotonic timestamp gate on the merged update flow.
package stream

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/policy"
)

// UpdateSink receives every forwarded update, after the gate. Sinks
// must not block; failures are logged and never interrupt the flow.
type UpdateSink interface {
	Publish(ctx context.Context, u model.Update) error
}

const defaultBuffer = 256

// Coordinator opens and supervises streaming subscriptions. Configure
// it once, Subscribe many times.
type Coordinator struct {
	resolver *policy.Resolver
	log      *zap.Logger
	backoff  BackoffConfig
	gateTTL  time.Duration
	reap     time.Duration
	buffer   int
	sink     UpdateSink
}

type Option func(*Coordinator)

func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

func WithBackoff(cfg BackoffConfig) Option {
	return func(c *Coordinator) { c.backoff = cfg }
}

// WithGateTTL sets how long an idle symbol keeps its gate entry.
func WithGateTTL(ttl, reapInterval time.Duration) Option {
	return func(c *Coordinator) { c.gateTTL, c.reap = ttl, reapInterval }
}

// WithBuffer sizes the fan-in channel handed to the subscriber.
func WithBuffer(n int) Option {
	return func(c *Coordinator) { c.buffer = n }
}

// WithSink forwards every delivered update to an external sink, e.g. a
// message bus publisher.
func WithSink(s UpdateSink) Option {
	return func(c *Coordinator) { c.sink = s }
}

func NewCoordinator(resolver *policy.Resolver, opts ...Option) *Coordinator {
	c := &Coordinator{
		resolver: resolver,
		log:      zap.NewNop(),
		backoff:  DefaultBackoff(),
		buffer:   defaultBuffer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubscribeRequest names the instruments to stream.
type SubscribeRequest struct {
	Instruments []model.Instrument
}

// Subscribe plans the subscription and opens every group's session
// before returning. Startup is atomic: if any group cannot open a
// session, everything already opened is torn down and the collapsed
// error returned; there are no partial subscriptions.
func (c *Coordinator) Subscribe(ctx context.Context, req SubscribeRequest) (*Handle, error) {
	groups, err := plan(c.resolver, req.Instruments)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		out:    make(chan model.Update, c.buffer),
		stopCh: make(chan struct{}),
		gate:   NewMonotonicGate(c.gateTTL, c.reap),
		dir:    c.resolver.Directory(),
		log:    c.log,
		bo:     c.backoff,
		sink:   c.sink,
		runCtx: runCtx,
		cancel: cancel,
	}

	type startedGroup struct {
		g    *group
		sess *liveSession
	}
	var started []startedGroup
	for _, g := range groups {
		sess, errs := h.openFrom(g, 0)
		if sess == nil {
			for _, s := range started {
				_ = s.sess.session.Close()
			}
			cancel()
			h.gate.Close()
			return nil, collapseStreamErrors(errs)
		}
		started = append(started, startedGroup{g: g, sess: sess})
	}

	for _, s := range started {
		h.wg.Add(1)
		go h.supervise(s.g, s.sess)
	}
	// Parent cancellation tears the subscription down the same way Stop
	// does, so Updates always closes.
	go func() {
		select {
		case <-runCtx.Done():
			h.shutdown(false)
		case <-h.stopCh:
		}
	}()
	c.log.Info("stream.subscribed",
		zap.Int("groups", len(started)),
		zap.Int("instruments", len(req.Instruments)))
	return h, nil
}

// collapseStreamErrors reduces startup failures to one error:
// non-actionable causes are dropped, a single actionable cause is
// returned as-is, several are aggregated.
func collapseStreamErrors(errs []error) error {
	var actionable []error
	for _, err := range errs {
		for _, leaf := range model.Flatten(err) {
			if model.Actionable(leaf) {
				actionable = append(actionable, leaf)
			}
		}
	}
	switch len(actionable) {
	case 0:
		return model.ErrUnsupported("", model.CapStreamTrades)
	case 1:
		return actionable[0]
	default:
		return model.ErrAllProvidersFailed(actionable)
	}
}
