// Package scanner discovers contracts eligible for quoting: open,
// matching the configured asset set, and far enough from resolution.
package scanner

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Plasticdev67/Kalshi-market-maker/internal/exchange"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/models"
	"go.uber.org/zap"
)

// Scanner queries the exchange for open contracts and filters them down
// to the quotable set.
type Scanner struct {
	exch         exchange.Exchange
	logger       *zap.Logger
	seriesTicker string
	assets       []string
	resolutionBuffer time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// New creates a Scanner over exch, restricted to seriesTicker and the
// given asset prefixes (e.g. "BTC", "ETH"), rejecting contracts closer
// than resolutionBuffer to resolution.
func New(exch exchange.Exchange, logger *zap.Logger, seriesTicker string, assets []string, resolutionBuffer time.Duration) *Scanner {
	return &Scanner{
		exch:             exch,
		logger:           logger,
		seriesTicker:     seriesTicker,
		assets:           assets,
		resolutionBuffer: resolutionBuffer,
		lastSeen:         make(map[string]time.Time),
	}
}

// Scan fetches currently-open markets and returns the ones matching an
// asset prefix with enough time left before close. now is injected so
// tests can control the cutoff precisely.
func (s *Scanner) Scan(ctx context.Context, now time.Time) ([]models.Contract, error) {
	markets, err := s.exch.ListMarkets(ctx, s.seriesTicker, exchange.StatusOpen, 0)
	if err != nil {
		return nil, err
	}

	var out []models.Contract
	for _, m := range markets {
		asset := s.assetFor(m.Ticker)
		if asset == "" {
			continue
		}
		secondsUntilClose := int64(m.CloseTime.Sub(now).Seconds())
		if secondsUntilClose <= int64(s.resolutionBuffer.Seconds()) {
			continue
		}

		s.noteSeen(m.Ticker, now)
		out = append(out, models.Contract{
			Ticker:            m.Ticker,
			EventTicker:       m.EventTicker,
			Title:             m.Title,
			Asset:             asset,
			CloseTime:         m.CloseTime,
			SecondsUntilClose: secondsUntilClose,
		})
	}

	s.purgeExpired(now)
	return out, nil
}

// assetFor returns the configured asset prefix matching ticker, or "" if
// none match.
func (s *Scanner) assetFor(ticker string) string {
	for _, asset := range s.assets {
		if strings.HasPrefix(ticker, asset) {
			return asset
		}
	}
	return ""
}

func (s *Scanner) noteSeen(ticker string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.lastSeen[ticker]; !seen && s.logger != nil {
		s.logger.Debug("new contract observed", zap.String("ticker", ticker))
	}
	s.lastSeen[ticker] = now
}

// purgeExpired drops cache entries not refreshed in the last hour; the
// cache exists only to suppress repeat "new contract" logging and never
// needs to be durable.
func (s *Scanner) purgeExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ticker, seen := range s.lastSeen {
		if now.Sub(seen) > time.Hour {
			delete(s.lastSeen, ticker)
		}
	}
}
