// Package persist implements spec.md §6's optional persistence collaborator:
// an append-only log of RawChange records, replayed as a single round-0
// transaction on start. Grounded on internal/db/postgres.go's pgxpool-backed
// PostgresStore — same connection, schema-file, and parameterized-query
// style, carried over to a different table shape.
package persist

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evelang/eve-core/internal/watch"
	"github.com/evelang/eve-core/pkg/values"
)

// Store wraps a pgxpool.Pool and holds the append-only change log. Close is
// safe on a nil *Store; InitSchema, Append and Replay require a Store
// returned by Connect. Callers that fail to connect keep running without
// persistence, matching spec.md §7's "persistence I/O errors are fatal to
// the persistence thread only" policy.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens the pool and pings it once, logging success the way
// PostgresStore.Connect does.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("persist: unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("persist: ping failed: %w", err)
	}
	log.Println("persist: connected to PostgreSQL change log")
	return &Store{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes schema.sql, creating raw_change_log if it
// doesn't already exist.
func (s *Store) InitSchema(ctx context.Context) error {
	schemaBytes, err := os.ReadFile("internal/persist/schema.sql")
	if err != nil {
		return fmt.Errorf("persist: failed to read schema file: %w", err)
	}
	if _, err := s.pool.Exec(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("persist: failed to execute schema migration: %w", err)
	}
	log.Println("persist: raw_change_log schema initialized")
	return nil
}

// Append writes changes to the log in order within a single transaction, so
// a crash mid-batch never leaves a partially logged transaction to replay.
func (s *Store) Append(ctx context.Context, changes []watch.RawChange) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("persist: begin failed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertSQL = `
		INSERT INTO raw_change_log
			(e_kind, e_num, e_str, a_kind, a_num, a_str, v_kind, v_num, v_str, n_kind, n_num, n_str, count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`
	for _, c := range changes {
		ek, en, es := encodeValue(c.E)
		ak, an, as := encodeValue(c.A)
		vk, vn, vs := encodeValue(c.V)
		nk, nn, ns := encodeValue(c.N)
		if _, err := tx.Exec(ctx, insertSQL, ek, en, es, ak, an, as, vk, vn, vs, nk, nn, ns, c.Count); err != nil {
			return fmt.Errorf("persist: failed to insert change: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// Replay reads the entire log back in submission order, for a Program to
// apply as a single round-0 transaction before it starts serving new
// traffic.
func (s *Store) Replay(ctx context.Context) ([]watch.RawChange, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e_kind, e_num, e_str, a_kind, a_num, a_str, v_kind, v_num, v_str, n_kind, n_num, n_str, count
		FROM raw_change_log ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("persist: replay query failed: %w", err)
	}
	defer rows.Close()

	var out []watch.RawChange
	for rows.Next() {
		var ek, ak, vk, nk int16
		var en, an, vn, nn *int64
		var es, as, vs, ns *string
		var count int32
		if err := rows.Scan(&ek, &en, &es, &ak, &an, &as, &vk, &vn, &vs, &nk, &nn, &ns, &count); err != nil {
			return nil, fmt.Errorf("persist: replay scan failed: %w", err)
		}
		out = append(out, watch.RawChange{
			E:     decodeValue(ek, en, es),
			A:     decodeValue(ak, an, as),
			V:     decodeValue(vk, vn, vs),
			N:     decodeValue(nk, nn, ns),
			Count: count,
		})
	}
	return out, rows.Err()
}

const (
	colKindNull     = int16(values.KindNull)
	colKindNumber   = int16(values.KindNumber)
	colKindString   = int16(values.KindString)
	colKindRecordID = int16(values.KindRecordID)
)

// encodeValue splits a Value into the three nullable columns a row carries
// it in: a kind discriminator, a bit-pattern for numbers, and a string for
// everything else.
func encodeValue(v values.Value) (kind int16, num *int64, str *string) {
	switch v.Kind() {
	case values.KindNull:
		return colKindNull, nil, nil
	case values.KindNumber:
		bits := int64(v.Bits())
		return colKindNumber, &bits, nil
	case values.KindString:
		s := v.Str()
		return colKindString, nil, &s
	default:
		s := v.Str()
		return colKindRecordID, nil, &s
	}
}

func decodeValue(kind int16, num *int64, str *string) values.Value {
	switch kind {
	case colKindNumber:
		if num == nil {
			return values.Null
		}
		return values.NewNumberBits(uint32(*num))
	case colKindString:
		if str == nil {
			return values.Null
		}
		return values.NewString(*str)
	case colKindRecordID:
		if str == nil {
			return values.Null
		}
		return values.NewRecordID(*str)
	default:
		return values.Null
	}
}
