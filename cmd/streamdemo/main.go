// Command streamdemo subscribes to a handful of symbols through the
// streaming coordinator and prints the merged update flow. A websocket
// feed is used when DEMO_FEED_URL is set, with a synthetic provider as
// fallback; prometheus metrics are served on METRICS_ADDR.
package main

import (
	"context"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marketroute/marketroute/mock"
	"github.com/marketroute/marketroute/pkg/config"
	"github.com/marketroute/marketroute/pkg/logger"
	"github.com/marketroute/marketroute/pkg/model"
	"github.com/marketroute/marketroute/policy"
	"github.com/marketroute/marketroute/provider"
	"github.com/marketroute/marketroute/publish"
	"github.com/marketroute/marketroute/stream"
)

func main() {
	_ = godotenv.Load()

	logger.Init("streamdemo", config.GetEnv("APP_ENV", "local"), config.GetEnv("LOG_LEVEL", "info"))
	defer logger.Sync()
	log := logger.L()

	feedURL := config.GetEnv("DEMO_FEED_URL", "")
	metricsAddr := config.GetEnv("METRICS_ADDR", ":9102")
	symbols := strings.Split(config.GetEnv("DEMO_SYMBOLS", "AAPL,MSFT,GOOG"), ",")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var providers []provider.Provider
	if feedURL != "" {
		providers = append(providers, newWSFeed(feedURL, log))
	}
	providers = append(providers, syntheticProvider())

	dir, err := provider.NewDirectory(providers...)
	if err != nil {
		log.Fatal("failed to build provider directory", zap.Error(err))
	}
	pol, err := policy.NewBuilder().Build(dir)
	if err != nil {
		log.Fatal("failed to build routing policy", zap.Error(err))
	}
	resolver := policy.NewResolver(dir, pol)

	opts := []stream.Option{stream.WithLogger(log)}
	if natsURL := config.GetEnv("NATS_URL", ""); natsURL != "" {
		nc, err := nats.Connect(natsURL, nats.Name("streamdemo"))
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer nc.Close()

		pub, err := publish.New(nc, config.GetEnv("PUBLISH_SUBJECT_PREFIX", "md.updates"), "streamdemo", log)
		if err != nil {
			log.Fatal("failed to build publisher", zap.Error(err))
		}
		opts = append(opts, stream.WithSink(pub))
		log.Info("publishing updates to NATS", zap.String("url", natsURL))
	}
	coord := stream.NewCoordinator(resolver, opts...)

	go serveMetrics(metricsAddr, log)

	instruments := make([]model.Instrument, 0, len(symbols))
	for _, s := range symbols {
		inst, err := model.ParseInstrument(s, model.KindEquity)
		if err != nil {
			continue
		}
		instruments = append(instruments, inst)
	}

	handle, err := coord.Subscribe(ctx, stream.SubscribeRequest{Instruments: instruments})
	if err != nil {
		log.Fatal("subscribe failed", zap.Error(err))
	}
	log.Info("subscribed", zap.Strings("symbols", symbols))

	go func() {
		for u := range handle.Updates() {
			log.Info("demo.update",
				zap.String("symbol", u.Instrument.Symbol),
				zap.String("price", u.Price.String()),
				zap.String("size", u.Size.String()),
				zap.Time("ts", u.Ts),
				zap.String("provider", u.Provider),
			)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received")
	handle.Stop()
	log.Info("shutdown complete")
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", zap.Error(err))
	}
}

// syntheticProvider emits a random-walk trade per symbol per second. It
// keeps the demo alive without a real feed and serves as the failover
// target when the websocket feed drops.
func syntheticProvider() *mock.Provider {
	p := mock.New("synthetic", model.CapStreamTrades)
	p.OpenStreamFn = func(ctx context.Context, req provider.StreamRequest) (provider.StreamSession, error) {
		s := mock.NewSession(64)
		go func() {
			prices := make(map[string]decimal.Decimal, len(req.Instruments))
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					s.End()
					return
				case now := <-ticker.C:
					for _, inst := range req.Instruments {
						last, ok := prices[inst.Symbol]
						if !ok {
							last = decimal.NewFromInt(100)
						}
						last = last.Add(decimal.NewFromFloat(rand.Float64() - 0.5).Round(2))
						prices[inst.Symbol] = last
						s.Push(model.Update{
							Instrument: inst,
							Kind:       model.UpdateTrade,
							Price:      last,
							Size:       decimal.NewFromInt(int64(rand.Intn(900) + 100)),
							Ts:         now.UTC(),
						})
					}
				}
			}
		}()
		return s, nil
	}
	return p
}
