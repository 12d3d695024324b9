package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ai-portfolio/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id            TEXT PRIMARY KEY,
	last_activity TEXT NOT NULL,
	turns         INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS turns (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	sk              TEXT NOT NULL,
	question        TEXT NOT NULL,
	answer          TEXT NOT NULL,
	tools           TEXT NOT NULL DEFAULT '[]',
	provider        TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	FOREIGN KEY(conversation_id) REFERENCES conversations(id)
);
CREATE INDEX IF NOT EXISTS turns_by_conversation ON turns(conversation_id, id);`

// SQLiteStore is a file-backed turn log for running without AWS.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("repository: sqlite path must not be empty")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetConversationTurnCount(ctx context.Context, conversationID string) (int, error) {
	var turns int
	err := s.db.QueryRowContext(ctx, `SELECT turns FROM conversations WHERE id = ?`, conversationID).Scan(&turns)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("repository: GetConversationTurnCount: %w", err)
	}
	return turns, nil
}

// GetHistory returns up to limit of the most recent turns, oldest first.
// A non-positive limit returns every turn.
func (s *SQLiteStore) GetHistory(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sk, question, answer, tools, provider, status
		FROM turns
		WHERE conversation_id = ?
		ORDER BY id DESC
		LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: GetHistory query: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var (
			turn  = domain.Turn{ConversationID: conversationID, PK: convPK(conversationID)}
			tools string
		)
		if err := rows.Scan(&turn.SK, &turn.Question, &turn.Answer, &tools, &turn.Provider, &turn.Status); err != nil {
			return nil, fmt.Errorf("repository: GetHistory scan: %w", err)
		}
		if err := json.Unmarshal([]byte(tools), &turn.Tools); err != nil {
			return nil, fmt.Errorf("repository: GetHistory decode tools: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: GetHistory rows: %w", err)
	}
	reverse(turns)
	return turns, nil
}

func (s *SQLiteStore) SaveCompletedTurn(ctx context.Context, turn domain.Turn, turns int) error {
	if strings.TrimSpace(turn.ConversationID) == "" {
		return errors.New("repository: SaveCompletedTurn: conversation id is required")
	}
	tools := turn.Tools
	if tools == nil {
		tools = []string{}
	}
	toolsJSON, err := json.Marshal(tools)
	if err != nil {
		return fmt.Errorf("repository: SaveCompletedTurn encode tools: %w", err)
	}
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: SaveCompletedTurn begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, last_activity, turns) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_activity = excluded.last_activity, turns = excluded.turns`,
		turn.ConversationID, now.UTC().Format(time.RFC3339), turns); err != nil {
		return fmt.Errorf("repository: SaveCompletedTurn upsert conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO turns (conversation_id, sk, question, answer, tools, provider, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.ConversationID, turnSK(now), turn.Question, turn.Answer, string(toolsJSON), turn.Provider, StatusComplete); err != nil {
		return fmt.Errorf("repository: SaveCompletedTurn insert turn: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: SaveCompletedTurn commit: %w", err)
	}
	return nil
}
