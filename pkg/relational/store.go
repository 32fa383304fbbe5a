// Package relational is the transactional relational-store port C8: typed
// CRUD over the users, chat_session_member, and message tables plus the
// IN-list/range/order+limit query shapes spec.md §4.8 and §6 require. The
// method-per-entity CRUD naming is adapted from the teacher's
// bucket-per-entity BoltDB store (Create/Get/List/Update/Delete), translated
// from a KV blob store to real SQL tables and predicate queries since this
// domain needs IN-lists, time ranges, and ORDER BY ... LIMIT that a bucket
// store cannot express.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/littleblus/breezechat/pkg/types"
)

// Store wraps a *sql.DB connection pool.
type Store struct {
	db *sql.DB
}

// Config configures a new Store.
type Config struct {
	DSN             string
	MaxOpenConns    int // default 10, per spec.md §5
	ConnMaxLifetime time.Duration
}

// New opens a connection pool against a MySQL DSN.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("relational: open: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("relational: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// --- users -----------------------------------------------------------------

// InsertUser inserts a new row. Caller-visible uniqueness conflicts (nickname
// or email already taken) surface as the driver's duplicate-key error; the
// caller classifies them into errs.Conflict.
func (s *Store) InsertUser(ctx context.Context, u *types.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, nickname, description, password_hash, email, avatar_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.UserID, nullableString(u.Nickname), u.Description, u.PasswordHash, nullableString(u.Email), u.AvatarID,
	)
	return err
}

// UpdateUser overwrites every mutable field of the row identified by UserID.
func (s *Store) UpdateUser(ctx context.Context, u *types.User) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET nickname=?, description=?, password_hash=?, email=?, avatar_id=? WHERE user_id=?`,
		nullableString(u.Nickname), u.Description, u.PasswordHash, nullableString(u.Email), u.AvatarID, u.UserID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// DeleteUser removes the row for userID.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id=?`, userID)
	return err
}

// GetUserByID loads one user by primary key. Returns sql.ErrNoRows if absent.
func (s *Store) GetUserByID(ctx context.Context, userID string) (*types.User, error) {
	return s.scanOneUser(s.db.QueryRowContext(ctx,
		`SELECT user_id, nickname, description, password_hash, email, avatar_id FROM users WHERE user_id=?`, userID))
}

// GetUserByNickname loads one user by its unique nickname.
func (s *Store) GetUserByNickname(ctx context.Context, nickname string) (*types.User, error) {
	return s.scanOneUser(s.db.QueryRowContext(ctx,
		`SELECT user_id, nickname, description, password_hash, email, avatar_id FROM users WHERE nickname=?`, nickname))
}

// GetUserByEmail loads one user by its unique email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	return s.scanOneUser(s.db.QueryRowContext(ctx,
		`SELECT user_id, nickname, description, password_hash, email, avatar_id FROM users WHERE email=?`, email))
}

// ListUsersByIDs returns every row whose user_id is in ids (an IN-list
// query, per spec.md §4.8). Callers de-duplicate ids before calling, per
// spec.md §4.11's GetMultiUserInfo contract.
func (s *Store) ListUsersByIDs(ctx context.Context, ids []string) ([]*types.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args := inListQuery(
		`SELECT user_id, nickname, description, password_hash, email, avatar_id FROM users WHERE user_id IN (%s)`,
		ids,
	)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) scanOneUser(row *sql.Row) (*types.User, error) {
	var u types.User
	var nickname, email sql.NullString
	if err := row.Scan(&u.UserID, &nickname, &u.Description, &u.PasswordHash, &email, &u.AvatarID); err != nil {
		return nil, err
	}
	u.Nickname = nickname.String
	u.Email = email.String
	return &u, nil
}

func scanUser(rows *sql.Rows) (*types.User, error) {
	var u types.User
	var nickname, email sql.NullString
	if err := rows.Scan(&u.UserID, &nickname, &u.Description, &u.PasswordHash, &email, &u.AvatarID); err != nil {
		return nil, err
	}
	u.Nickname = nickname.String
	u.Email = email.String
	return &u, nil
}

// --- chat_session_member -----------------------------------------------------

// InsertSessionMember adds one (session_id, user_id) pair. A duplicate pair
// is a unique-key conflict, enforcing "at most once per pair" (spec.md §3).
func (s *Store) InsertSessionMember(ctx context.Context, m *types.ChatSessionMember) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_session_member (session_id, user_id) VALUES (?, ?)`, m.SessionID, m.UserID)
	return err
}

// DeleteSessionMember removes one (session_id, user_id) pair.
func (s *Store) DeleteSessionMember(ctx context.Context, sessionID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_session_member WHERE session_id=? AND user_id=?`, sessionID, userID)
	return err
}

// PurgeSession deletes every member row for sessionID (whole-session purge).
func (s *Store) PurgeSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chat_session_member WHERE session_id=?`, sessionID)
	return err
}

// ListSessionMembers returns every user_id in sessionID.
func (s *Store) ListSessionMembers(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM chat_session_member WHERE session_id=?`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		out = append(out, userID)
	}
	return out, rows.Err()
}

// --- message -----------------------------------------------------------------

// InsertMessage appends a message row. message_id uniqueness is enforced by
// a unique key, the invariant invoked by spec.md §8 invariant 6.
func (s *Store) InsertMessage(ctx context.Context, m *types.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message (message_id, user_id, session_id, type, create_time, content, file_id, file_name, file_size)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.MessageID, m.UserID, m.SessionID, string(m.Type), m.CreateTime.Unix(),
		nullableString(m.Content), nullableString(m.FileID), nullableString(m.FileName), m.FileSize,
	)
	return err
}

// DeleteMessagesBySession bulk-deletes every message in sessionID.
func (s *Store) DeleteMessagesBySession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM message WHERE session_id=?`, sessionID)
	return err
}

// RecentMessages returns the n most recent messages in sessionID, ordered
// by create_time descending (spec.md §4.8's ORDER BY ... LIMIT pattern).
func (s *Store) RecentMessages(ctx context.Context, sessionID string, n int) ([]*types.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, user_id, session_id, type, create_time, content, file_id, file_name, file_size
		 FROM message WHERE session_id=? ORDER BY create_time DESC LIMIT ?`, sessionID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MessagesInRange returns every message in sessionID with create_time in
// [start, end] inclusive.
func (s *Store) MessagesInRange(ctx context.Context, sessionID string, start, end time.Time) ([]*types.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, user_id, session_id, type, create_time, content, file_id, file_name, file_size
		 FROM message WHERE session_id=? AND create_time BETWEEN ? AND ?`,
		sessionID, start.Unix(), end.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]*types.Message, error) {
	var out []*types.Message
	for rows.Next() {
		var m types.Message
		var typ string
		var unixTime int64
		var content, fileID, fileName sql.NullString
		if err := rows.Scan(&m.MessageID, &m.UserID, &m.SessionID, &typ, &unixTime,
			&content, &fileID, &fileName, &m.FileSize); err != nil {
			return nil, err
		}
		m.Type = types.MessageType(typ)
		m.CreateTime = time.Unix(unixTime, 0)
		m.Content = content.String
		m.FileID = fileID.String
		m.FileName = fileName.String
		out = append(out, &m)
	}
	return out, rows.Err()
}

// --- test teardown -------------------------------------------------------

// Truncate clears table, reserved for test teardown per spec.md §6.
func (s *Store) Truncate(ctx context.Context, table string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("TRUNCATE TABLE %s", table))
	return err
}

// --- helpers ---------------------------------------------------------------

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func inListQuery(template string, ids []string) (string, []any) {
	placeholders := ""
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}
	return fmt.Sprintf(template, placeholders), args
}
