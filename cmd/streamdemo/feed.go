package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/provider"
)

// tick is the wire format of the demo feed: one JSON object per
// websocket text frame.
type tick struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Size   decimal.Decimal `json:"size"`
	Ts     time.Time       `json:"ts"`
}

// wsFeed streams trades from a websocket endpoint publishing JSON
// ticks.
type wsFeed struct {
	url string
	log *zap.Logger
}

func newWSFeed(url string, log *zap.Logger) *wsFeed {
	return &wsFeed{url: url, log: log}
}

func (f *wsFeed) Key() provider.Key { return "wsfeed" }

func (f *wsFeed) Capabilities() []model.Capability {
	return []model.Capability{model.CapStreamTrades}
}

func (f *wsFeed) OpenStream(ctx context.Context, req provider.StreamRequest) (provider.StreamSession, error) {
	f.log.Info("feed.connecting", zap.String("url", f.url))

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to feed: %w", err)
	}

	s := &wsSession{
		conn:        conn,
		instruments: make(map[string]model.Instrument, len(req.Instruments)),
		ch:          make(chan model.Update, 64),
		done:        make(chan struct{}),
		log:         f.log,
	}
	for _, inst := range req.Instruments {
		s.instruments[inst.Symbol] = inst
	}

	go s.readLoop()
	return s, nil
}

type wsSession struct {
	conn        *websocket.Conn
	instruments map[string]model.Instrument
	ch          chan model.Update
	done        chan struct{}
	once        sync.Once
	log         *zap.Logger
}

func (s *wsSession) Updates() <-chan model.Update { return s.ch }

func (s *wsSession) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.conn.Close()
}

func (s *wsSession) readLoop() {
	defer close(s.ch)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Error("feed.read_failed", zap.Error(err))
				}
			}
			return
		}

		var t tick
		if err := json.Unmarshal(message, &t); err != nil {
			s.log.Error("feed.decode_failed", zap.Error(err))
			continue
		}

		inst, ok := s.instruments[strings.ToUpper(t.Symbol)]
		if !ok {
			continue
		}
		ts := t.Ts
		if ts.IsZero() {
			ts = time.Now().UTC()
		}

		u := model.Update{
			Instrument: inst,
			Kind:       model.UpdateTrade,
			Price:      t.Price,
			Size:       t.Size,
			Ts:         ts,
		}
		select {
		case s.ch <- u:
		case <-s.done:
			return
		}
	}
}
