// Package txlog records every simulated or submitted request in ClickHouse.
// The sink is best-effort: a nil store is a no-op and insert failures are
// the caller's to log, not to fail on.
package txlog

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Record is one request lifecycle entry.
type Record struct {
	Signature     string
	Market        string
	Side          string
	Operation     string
	GuardrailUsd  string
	SizeUsd       uint64
	CollateralUsd uint64
	UnitsConsumed uint64
	Simulated     bool
	Submitted     bool
	Success       bool
	Error         string
	Timestamp     time.Time
}

// Store writes request records to ClickHouse.
type Store struct {
	conn driver.Conn
}

// Options for connecting.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
}

func NewStore(ctx context.Context, opts Options) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Insert writes one record. Nil-safe.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	if s == nil {
		return nil
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO perp_requests (
			signature, timestamp, market, side, operation,
			guardrail_usd, size_usd, collateral_usd,
			units_consumed, simulated, submitted, success, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		rec.Signature,
		rec.Timestamp,
		rec.Market,
		rec.Side,
		rec.Operation,
		rec.GuardrailUsd,
		rec.SizeUsd,
		rec.CollateralUsd,
		rec.UnitsConsumed,
		rec.Simulated,
		rec.Submitted,
		rec.Success,
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert request record: %w", err)
	}
	return nil
}

// Close releases the connection. Nil-safe.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.conn.Close()
}
