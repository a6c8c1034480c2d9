package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mailtriage/internal/triage"
)

// DefaultQuery reads inbound messages from an existing mail database. Any
// replacement must select id, sender, subject and body, in that order.
const DefaultQuery = `SELECT id::text, COALESCE(from_json->>'email', ''), COALESCE(subject, ''), COALESCE(text, '')
	FROM messages WHERE direction = 'inbound' ORDER BY created_at ASC`

// Store is a read-only view over a postgres mail database.
type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("missing database dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Messages runs query and returns the messages it selects.
func (s *Store) Messages(ctx context.Context, query string) ([]triage.Message, error) {
	if query == "" {
		query = DefaultQuery
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []triage.Message
	for rows.Next() {
		var m triage.Message
		if err := rows.Scan(&m.ID, &m.From, &m.Subject, &m.Body); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
