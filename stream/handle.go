package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketroute/marketroute/internal/metrics"
	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/provider"
)

// liveSession pairs an open provider session with its identity.
type liveSession struct {
	session  provider.StreamSession
	key      provider.Key
	id       string
	chainIdx int
}

// Handle is one live subscription. Read Updates until it closes; call
// Stop for a graceful shutdown or Abort to tear everything down
// immediately. Both are idempotent.
type Handle struct {
	out    chan model.Update
	stopCh chan struct{}
	gate   *MonotonicGate
	dir    *provider.Directory
	log    *zap.Logger
	bo     BackoffConfig
	sink   UpdateSink

	runCtx context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	stopOnce sync.Once
	doneOnce sync.Once
}

// Updates delivers the merged, gated update flow. The channel closes
// after Stop or Abort completes.
func (h *Handle) Updates() <-chan model.Update { return h.out }

// Stop shuts the subscription down gracefully: sessions are closed,
// supervisors drained, then the update channel is closed.
func (h *Handle) Stop() { h.shutdown(false) }

// Abort cancels the session context first, forcing providers to bail
// out instead of closing cleanly.
func (h *Handle) Abort() { h.shutdown(true) }

func (h *Handle) shutdown(abort bool) {
	h.stopOnce.Do(func() {
		if abort {
			h.cancel()
		}
		close(h.stopCh)
	})
	h.wg.Wait()
	h.doneOnce.Do(func() {
		h.cancel()
		h.gate.Close()
		close(h.out)
	})
}

// openFrom walks the group's provider chain starting at chain index
// start and opens the first session that will take the subscription.
func (h *Handle) openFrom(g *group, start int) (*liveSession, []error) {
	var errs []error
	n := len(g.chain)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		key := g.chain[idx]
		p, ok := h.dir.Get(key)
		if !ok {
			continue
		}
		sess, err := p.(provider.StreamProvider).OpenStream(h.runCtx, provider.StreamRequest{
			Instruments: g.instruments,
		})
		if err != nil {
			h.log.Warn("stream.open_failed",
				zap.String("provider", string(key)),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		return &liveSession{session: sess, key: key, id: uuid.NewString(), chainIdx: idx}, nil
	}
	return nil, errs
}

// supervise owns one group: it forwards the current session and, when
// the provider ends it, resets the group's gates and fails over to the
// next provider in the chain under backoff.
func (h *Handle) supervise(g *group, sess *liveSession) {
	defer h.wg.Done()
	attempt := 0
	for {
		stopped := h.forward(g, sess)
		_ = sess.session.Close()
		if stopped {
			return
		}

		h.log.Warn("stream.session_ended",
			zap.String("provider", string(sess.key)),
			zap.String("session_id", sess.id))

		// Symbols migrate: their gate state must not block the next
		// session's first updates.
		h.gate.ResetSymbols(g.symbols())

		next := (sess.chainIdx + 1) % len(g.chain)
		from := string(sess.key)

		select {
		case <-time.After(h.bo.delay(attempt)):
		case <-h.stopCh:
			return
		case <-h.runCtx.Done():
			return
		}

		replacement, errs := h.openFrom(g, next)
		if replacement == nil {
			attempt++
			h.log.Warn("stream.reopen_failed",
				zap.Int("attempt", attempt),
				zap.Int("providers_tried", len(errs)))
			continue
		}
		if string(replacement.key) != from {
			metrics.IncStreamFailover(from, string(replacement.key))
		}
		h.log.Info("stream.session_migrated",
			zap.String("from", from),
			zap.String("to", string(replacement.key)),
			zap.String("session_id", replacement.id))
		sess = replacement
		attempt = 0
	}
}

// forward pumps one session into the fan-in channel, applying the
// assignment filter and the monotonic gate. It returns true when the
// handle is stopping, false when the provider ended the session.
func (h *Handle) forward(g *group, sess *liveSession) (stopped bool) {
	for {
		select {
		case <-h.stopCh:
			return true
		case <-h.runCtx.Done():
			return true
		case u, ok := <-sess.session.Updates():
			if !ok {
				return false
			}
			if !g.covers(u.Instrument) {
				metrics.IncStreamDropped(string(sess.key), "unassigned")
				continue
			}
			if !h.gate.Allow(u.Instrument.ID(), u.Ts) {
				metrics.IncStreamDropped(string(sess.key), "stale")
				continue
			}
			u.Provider = string(sess.key)
			u.SessionID = sess.id
			select {
			case h.out <- u:
				metrics.IncStreamUpdate(string(sess.key))
				if h.sink != nil {
					if err := h.sink.Publish(h.runCtx, u); err != nil {
						h.log.Warn("stream.sink_publish_failed", zap.Error(err))
					}
				}
			case <-h.stopCh:
				metrics.IncStreamDropped(string(sess.key), "shutdown")
				return true
			case <-h.runCtx.Done():
				metrics.IncStreamDropped(string(sess.key), "shutdown")
				return true
			}
		}
	}
}
