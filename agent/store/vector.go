// Package store reads company financial records from Postgres with pgvector
// embeddings for similarity lookups.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/prachya-t/tickerchat/agent/contract"
)

var ErrRecordNotFound = errors.New("financial record not found")

type Config struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	QueryTimeout time.Duration `envconfig:"QUERY_TIMEOUT" split_words:"true" default:"10s"`
}

type financialRecordRow struct {
	bun.BaseModel `bun:"table:financial_records,alias:fr"`

	Ticker       string    `bun:"ticker,pk"`
	CompanyName  string    `bun:"company_name"`
	Sector       string    `bun:"sector"`
	Industry     string    `bun:"industry"`
	MarketCap    float64   `bun:"market_cap"`
	ClosePrice   float64   `bun:"close_price"`
	PERatio      float64   `bun:"pe_ratio"`
	ROE          float64   `bun:"roe"`
	EVToEBITDA   float64   `bun:"ev_to_ebitda"`
	EPS          float64   `bun:"eps"`
	DebtToEquity float64   `bun:"debt_to_equity"`
	UpdatedAt    time.Time `bun:"updated_at"`
}

func (r financialRecordRow) toRecord() contractx.FinancialRecord {
	return contractx.FinancialRecord{
		Ticker:       r.Ticker,
		CompanyName:  r.CompanyName,
		Sector:       r.Sector,
		Industry:     r.Industry,
		MarketCap:    r.MarketCap,
		ClosePrice:   r.ClosePrice,
		PERatio:      r.PERatio,
		ROE:          r.ROE,
		EVToEBITDA:   r.EVToEBITDA,
		EPS:          r.EPS,
		DebtToEquity: r.DebtToEquity,
		RetrievedAt:  time.Now().UTC(),
	}
}

// PGVectorStore serves record lookups and embedding-based similarity queries.
type PGVectorStore struct {
	db           *bun.DB
	queryTimeout time.Duration
}

var _ contractx.VectorStore = (*PGVectorStore)(nil)

func NewPGVectorStore(cfg Config) (*PGVectorStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return NewWithDB(db, cfg.QueryTimeout), nil
}

// NewWithDB wraps an existing bun.DB, mainly for tests.
func NewWithDB(db *bun.DB, queryTimeout time.Duration) *PGVectorStore {
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &PGVectorStore{db: db, queryTimeout: queryTimeout}
}

func (s *PGVectorStore) Close() error {
	return s.db.Close()
}

// Lookup fetches the record for an exact ticker, falling back to a company
// name match so queries like "KASIKORNBANK" still resolve.
func (s *PGVectorStore) Lookup(ctx context.Context, ticker string) (*contractx.FinancialRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var row financialRecordRow
	err := s.db.NewSelect().
		Model(&row).
		Where("fr.ticker = ?", ticker).
		Limit(1).
		Scan(ctx)
	if err == nil {
		rec := row.toRecord()
		return &rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup %s: %w", ticker, err)
	}

	err = s.db.NewSelect().
		Model(&row).
		Where("fr.company_name ILIKE ?", "%"+ticker+"%").
		OrderExpr("fr.market_cap DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, ticker)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s by name: %w", ticker, err)
	}

	rec := row.toRecord()
	return &rec, nil
}

// FindSimilar ranks other tickers by cosine similarity of their stored
// embeddings to the target ticker's embedding.
func (s *PGVectorStore) FindSimilar(ctx context.Context, ticker string, topK int) ([]contractx.SimilarStock, error) {
	if topK <= 0 {
		topK = 5
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var similar []contractx.SimilarStock
	err := s.db.NewRaw(`
		SELECT fr.ticker, fr.company_name, fr.sector, fr.close_price,
		       1 - (fr.embedding <=> target.embedding) AS similarity
		FROM financial_records AS fr,
		     (SELECT embedding FROM financial_records WHERE ticker = ?) AS target
		WHERE fr.ticker <> ?
		ORDER BY fr.embedding <=> target.embedding
		LIMIT ?`, ticker, ticker, topK).
		Scan(ctx, &similar)
	if err != nil {
		return nil, fmt.Errorf("find similar to %s: %w", ticker, err)
	}
	if len(similar) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, ticker)
	}
	return similar, nil
}
