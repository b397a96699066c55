package docstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/harun/docsess/internal/observability"
	"github.com/harun/docsess/internal/tracing"
	"github.com/harun/docsess/pkg/document"
	"github.com/harun/docsess/pkg/journal"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const driverSQLite = "sqlite"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at);
`

// SQLite stores one JSON document per row
type SQLite struct {
	db  *sql.DB
	dsn string
	now func() time.Time
}

// NewSQLite opens (and creates if needed) the database at dsn.
// dsn is a file path or ":memory:".
func NewSQLite(dsn string) (*SQLite, error) {
	observability.EnsureRegistered()

	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn cannot be empty")
	}

	inMemory := dsn == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dsn), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", withSQLiteParams(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to :memory: is a separate database
	if inMemory {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info().Str("dsn", dsn).Msg("SQLite document store opened")

	return &SQLite{db: db, dsn: dsn, now: time.Now}, nil
}

func withSQLiteParams(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000&_txlock=immediate"
}

// FindOne returns the document stored under id
func (s *SQLite) FindOne(ctx context.Context, id string) (document.Map, error) {
	ctx, span := tracing.StartSpan(ctx, "docsess.docstore", "sqlite.find_one", attribute.String("driver", driverSQLite))
	defer span.End()
	start := time.Now()

	doc, err := s.findOne(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		tracing.Fail(span, err)
	}
	observability.RecordStoreOperation(driverSQLite, "find_one", time.Since(start), ignoreNotFound(err))
	return doc, err
}

func (s *SQLite) findOne(ctx context.Context, id string) (document.Map, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	var body string
	err := s.db.QueryRowContext(ctx, "SELECT body FROM documents WHERE id = ?", id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}

	doc, err := document.Decode([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return stripReserved(doc), nil
}

// Upsert applies spec to the stored document inside one transaction
func (s *SQLite) Upsert(ctx context.Context, id string, spec journal.Spec) error {
	ctx, span := tracing.StartSpan(ctx, "docsess.docstore", "sqlite.upsert", attribute.String("driver", driverSQLite))
	defer span.End()
	start := time.Now()

	err := s.upsert(ctx, id, spec)
	observability.RecordStoreOperation(driverSQLite, "upsert", time.Since(start), err)
	return tracing.Fail(span, err)
}

func (s *SQLite) upsert(ctx context.Context, id string, spec journal.Spec) error {
	if err := checkID(id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current := document.Map{}
	var body, storedHash string
	err = tx.QueryRowContext(ctx, "SELECT body, content_hash FROM documents WHERE id = ?", id).Scan(&body, &storedHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to query document: %w", err)
	default:
		if current, err = document.Decode([]byte(body)); err != nil {
			return fmt.Errorf("failed to decode document: %w", err)
		}
	}

	next, err := journal.Apply(current, spec)
	if err != nil {
		return fmt.Errorf("failed to apply update: %w", err)
	}

	encoded, err := json.Marshal(map[string]any(next))
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	hash, err := contentHash(encoded)
	if err != nil {
		return fmt.Errorf("failed to hash document: %w", err)
	}

	now := s.now().UnixMilli()
	if hash == storedHash {
		// Same canonical content: only the idle clock moves
		if _, err := tx.ExecContext(ctx, "UPDATE documents SET updated_at = ? WHERE id = ?", now, id); err != nil {
			return fmt.Errorf("failed to touch document: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		log.Debug().Str("hash", hash).Msg("Document unchanged, body write skipped")
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, body, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			body = excluded.body,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at`,
		id, string(encoded), hash, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Remove deletes the row for id
func (s *SQLite) Remove(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "docsess.docstore", "sqlite.remove", attribute.String("driver", driverSQLite))
	defer span.End()
	start := time.Now()

	err := checkID(id)
	if err == nil {
		if _, execErr := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); execErr != nil {
			err = fmt.Errorf("failed to delete document: %w", execErr)
		}
	}
	observability.RecordStoreOperation(driverSQLite, "remove", time.Since(start), err)
	return tracing.Fail(span, err)
}

// PurgeBefore deletes rows last updated before cutoff
func (s *SQLite) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "docsess.docstore", "sqlite.purge_before", attribute.String("driver", driverSQLite))
	defer span.End()
	start := time.Now()

	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE updated_at < ?", cutoff.UnixMilli())
	if err != nil {
		err = fmt.Errorf("failed to purge documents: %w", err)
		observability.RecordStoreOperation(driverSQLite, "purge", time.Since(start), err)
		return 0, tracing.Fail(span, err)
	}
	observability.RecordStoreOperation(driverSQLite, "purge", time.Since(start), nil)

	n, err := res.RowsAffected()
	if err != nil {
		return 0, tracing.Fail(span, fmt.Errorf("failed to count purged documents: %w", err))
	}
	span.SetAttributes(attribute.Int64("purged", n))
	return int(n), nil
}

// ContentHash returns the stored content hash of id, or ErrNotFound
func (s *SQLite) ContentHash(ctx context.Context, id string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT content_hash FROM documents WHERE id = ?", id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query content hash: %w", err)
	}
	return hash, nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

// contentHash is the sha256 of the RFC 8785 canonical form of body
func contentHash(body []byte) (string, error) {
	canonical, err := jcs.Transform(body)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
