// Command engine runs the market-making process: it wires every
// component together, replays or recovers state against the Ledger, and
// runs the scan-fetch-manage-evaluate-place cycle until terminated.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	_ "github.com/lib/pq"

	"github.com/Plasticdev67/Kalshi-market-maker/internal/bookfetcher"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/capital"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/config"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/cryptostore"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/engine"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/exchange"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/executor"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/idgen"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/ledger"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/logging"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/position"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/scanner"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/strategy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("engine exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	led, err := buildLedger(cfg, logger)
	if err != nil {
		return fmt.Errorf("building ledger: %w", err)
	}
	defer led.Close()

	exch, err := buildExchange(cfg, logger)
	if err != nil {
		return fmt.Errorf("building exchange client: %w", err)
	}

	book, err := rebuildCapitalBook(led, cfg.Engine.MaxTotalExposure)
	if err != nil {
		return fmt.Errorf("rebuilding capital book: %w", err)
	}

	ids := idgen.UUIDSource{}
	exec := executor.New(led, exch, ids, logger)

	fillSource := position.FillSource(position.NewRandomSource(time.Now().UnixNano()))
	posCfg := position.Config{
		PairTimeout:                cfg.Engine.PairTimeout,
		CancelDeadline:             cfg.Engine.CancelDeadline,
		MaxOneSidedFillsBeforeHalt: cfg.Engine.MaxOneSidedFillsBeforeHalt,
		PaperTrade:                 cfg.Engine.PaperTrade,
	}
	manager := position.New(led, book, exec, fillSource, logger, posCfg)

	sc := scanner.New(exch, logger, cfg.Engine.SeriesTicker, cfg.Engine.Assets, cfg.Engine.ResolutionBuffer)
	fetcher := bookfetcher.New(exch, logger, 0)
	strategyCfg := strategy.Config{
		MinSpreadThresholdCents: cfg.Engine.MinSpreadThreshold,
		OrderSizeDefault:        cfg.Engine.OrderSizeDefault,
		MaxExposurePerMarket:    decimal.NewFromFloat(cfg.Engine.MaxExposurePerMarket),
	}

	loop := engine.New(sc, fetcher, manager, exec, book, led, strategyCfg, ids, logger, engine.Config{
		ScanInterval:   cfg.Engine.ScanInterval,
		TradingEnabled: cfg.Engine.TradingEnabled,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSrv := startMetricsServer(cfg.Server, logger)
	defer shutdownMetricsServer(metricsSrv, logger)

	logger.Info("engine starting",
		zap.Bool("paper_trade", cfg.Engine.PaperTrade),
		zap.Bool("trading_enabled", cfg.Engine.TradingEnabled),
		zap.Strings("assets", cfg.Engine.Assets),
		zap.Duration("scan_interval", cfg.Engine.ScanInterval),
	)

	return loop.Run(ctx)
}

// buildLedger selects Postgres when the engine trades for real, and an
// in-memory ledger for paper trading so a local run needs no database.
func buildLedger(cfg *config.Config, logger *zap.Logger) (ledger.Ledger, error) {
	if cfg.Engine.PaperTrade {
		logger.Info("paper trading enabled, using in-memory ledger")
		return ledger.NewMemory(), nil
	}

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database %s: %w", cfg.Database.DSNWithoutPassword(), err)
	}

	logger.Info("connected to database", zap.String("dsn", cfg.Database.DSNWithoutPassword()))
	return ledger.NewPostgres(db)
}

// buildExchange returns nil in paper mode (Executor treats a nil
// exchange as paper mode) and a signed REST client otherwise, decrypting
// the exchange private key from disk first.
func buildExchange(cfg *config.Config, logger *zap.Logger) (exchange.Exchange, error) {
	if cfg.Engine.PaperTrade {
		logger.Info("paper trading enabled, skipping exchange client construction")
		return nil, nil
	}

	encryptedBlob, err := os.ReadFile(cfg.Security.ExchangePrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("reading exchange private key file: %w", err)
	}
	pemKey, err := cryptostore.DecryptWithPassphrase(string(encryptedBlob), cfg.Security.CredentialPassphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypting exchange private key: %w", err)
	}

	client, err := exchange.NewClient(exchange.ClientConfig{
		BaseURL:          getExchangeBaseURL(),
		AccessKeyID:      cfg.Security.ExchangeKeyID,
		PrivateKeyPEM:    pemKey,
		OrderRatePerSec:  10,
		OrderBurst:       20,
		MarketDataPerSec: 20,
		MarketDataBurst:  40,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func getExchangeBaseURL() string {
	if url := os.Getenv("EXCHANGE_BASE_URL"); url != "" {
		return url
	}
	return "https://trading-api.kalshi.com/trade-api/v2"
}

// rebuildCapitalBook reconstructs the Capital Book from the Ledger's open
// pairs, since the book itself is not persisted: starting balance minus
// deployed capital for every currently OPEN pair.
func rebuildCapitalBook(led ledger.Ledger, startingBalance float64) (*capital.Book, error) {
	book := capital.NewBook(decimal.NewFromFloat(startingBalance))

	open, err := led.OpenPairs(context.Background())
	if err != nil {
		return nil, err
	}
	for _, pair := range open {
		cost := decimal.NewFromInt(int64(pair.Yes.PriceCents + pair.No.PriceCents)).
			Mul(decimal.NewFromInt(int64(pair.Yes.Size))).
			Div(decimal.NewFromInt(100))
		book.Reallocate(pair.PairID, cost)
	}
	return book, nil
}

func startMetricsServer(cfg config.ServerConfig, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}

func shutdownMetricsServer(srv *http.Server, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}
}
