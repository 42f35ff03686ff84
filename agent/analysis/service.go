package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/prachya-t/tickerchat/agent/contract"
	logx "github.com/prachya-t/tickerchat/pkg/logger"
)

const (
	defaultCacheTTL     = time.Hour
	defaultCacheTimeout = 5 * time.Second
)

// Service runs the analysis pipeline: ticker validation, record retrieval,
// deterministic scoring, report rendering, and a best-effort cache write.
type Service struct {
	store        contractx.VectorStore
	cache        contractx.Cache
	bands        Bands
	cacheTTL     time.Duration
	cacheTimeout time.Duration
	log          zerolog.Logger
}

type Option func(*Service)

// WithBands substitutes the scoring configuration.
func WithBands(b Bands) Option {
	return func(s *Service) { s.bands = b }
}

// WithCacheTTL sets the expiry requested on cache writes.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

// WithCacheTimeout bounds how long a cache write may run after the
// analysis result is already computed.
func WithCacheTimeout(d time.Duration) Option {
	return func(s *Service) { s.cacheTimeout = d }
}

// New builds a Service. cache may be nil, in which case write-through is
// skipped entirely.
func New(store contractx.VectorStore, cache contractx.Cache, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: analysis service requires a vector store", contractx.ErrFatal)
	}
	s := &Service{
		store:        store,
		cache:        cache,
		bands:        DefaultBands(),
		cacheTTL:     defaultCacheTTL,
		cacheTimeout: defaultCacheTimeout,
		log:          logx.Component("analysis"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Analyze validates the ticker, fetches its record, scores it, and renders
// the report. Cache write failures are logged and never surface to the
// caller; the returned result is identical with or without a cache.
func (s *Service) Analyze(ctx context.Context, rawTicker string) (contractx.AnalysisResult, error) {
	ticker, err := contractx.NormalizeTicker(rawTicker)
	if err != nil {
		return contractx.AnalysisResult{}, err
	}

	rec, err := s.store.Lookup(ctx, ticker)
	if err != nil {
		return contractx.AnalysisResult{}, fmt.Errorf("%w: no financial data for %s: %v", contractx.ErrDataUnavailable, ticker, err)
	}

	score := s.bands.Score(*rec)
	report := renderReport(*rec, score)
	s.writeCache(ctx, ticker, *rec, score)

	return contractx.AnalysisResult{
		Ticker: ticker,
		Record: *rec,
		Score:  score,
		Report: report,
	}, nil
}

// Compare validates the ticker and renders a ranked list of similar stocks.
func (s *Service) Compare(ctx context.Context, rawTicker string, topK int) (string, error) {
	ticker, err := contractx.NormalizeTicker(rawTicker)
	if err != nil {
		return "", err
	}
	similar, err := s.store.FindSimilar(ctx, ticker, topK)
	if err != nil {
		return "", fmt.Errorf("%w: no comparison data for %s: %v", contractx.ErrDataUnavailable, ticker, err)
	}
	return renderComparison(ticker, similar), nil
}

// writeCache stores the scored record with the configured TTL. It runs on a
// detached context so a caller cancellation after the result is computed does
// not abort the write, and it swallows panics from faulty cache clients.
func (s *Service) writeCache(ctx context.Context, ticker string, rec contractx.FinancialRecord, score contractx.ScoreResult) {
	if s.cache == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn().Str("ticker", ticker).Interface("panic", r).Msg("cache write panicked")
		}
	}()

	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cacheTimeout)
	defer cancel()

	entry := contractx.CacheEntry{
		Ticker: ticker,
		Score:  score,
		Record: rec,
		TTL:    s.cacheTTL,
	}
	if err := s.cache.Put(cacheCtx, entry); err != nil {
		s.log.Warn().Str("ticker", ticker).Err(err).Msg("cache write failed")
	}
}
