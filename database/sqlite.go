package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"doc-collab/backend/models"

	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5000

// SQLiteStore keeps messages and users in a single SQLite file. It serves
// single-node deployments and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path. Call Migrate before use and Close when done.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "doc-collab.db"
	}
	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"):
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=foreign_keys=ON", path, separator, defaultBusyTimeout)
}

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) (err error) {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_document ON messages(document_id, id);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CreateMessage inserts a message; the autoincrement id is the canonical order.
func (s *SQLiteStore) CreateMessage(ctx context.Context, documentID, userID, content string) (*models.Message, error) {
	createdAt := time.Now().UTC().Truncate(time.Millisecond)
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(document_id, user_id, content, created_at) VALUES(?, ?, ?, ?)`,
		documentID, userID, content, createdAt.UnixMilli())
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Message{
		ID:         strconv.FormatInt(id, 10),
		DocumentID: documentID,
		UserID:     userID,
		Content:    content,
		CreatedAt:  createdAt,
	}, nil
}

// ListMessages returns the latest limit messages of a document, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, documentID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, user_id, content, created_at FROM (
			SELECT id, document_id, user_id, content, created_at
			FROM messages WHERE document_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, documentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var (
			msg       models.Message
			id        int64
			createdAt int64
		)
		if err := rows.Scan(&id, &msg.DocumentID, &msg.UserID, &msg.Content, &createdAt); err != nil {
			return nil, err
		}
		msg.ID = strconv.FormatInt(id, 10)
		msg.CreatedAt = time.UnixMilli(createdAt).UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// GetUserByID returns ErrUserNotFound for unknown IDs.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, email, image, role FROM users WHERE id = ?`, id)
	var user models.User
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Image, &user.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpsertUser writes the display record of a user. Accounts are owned by the
// application's user service; this keeps the local copy in sync and seeds tests.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user models.User) error {
	if user.ID == "" {
		return errors.New("user id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users(id, name, email, image, role) VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, email=excluded.email, image=excluded.image, role=excluded.role`,
		user.ID, user.Name, user.Email, user.Image, user.Role)
	return err
}

// Ping reports whether the database handle is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying DB connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
