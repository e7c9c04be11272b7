package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "vocabot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsSQL string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, now: time.Now}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Info("storage opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migrationsSQL)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetSettings(ctx context.Context, userID int64) (Settings, bool, error) {
	if s == nil || s.db == nil {
		return Settings{}, false, ErrDisabled
	}
	var raw, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT learning_preferences, updated_at FROM user_settings WHERE user_id = ?`, userID,
	).Scan(&raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(userID), false, nil
	}
	if err != nil {
		return Settings{}, false, err
	}
	st, err := decodePrefs(userID, raw)
	if err != nil {
		return Settings{}, false, err
	}
	st.UpdatedAt = parseTime(updated)
	return st, true, nil
}

func (s *sqliteStore) PutSettings(ctx context.Context, st Settings) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT learning_preferences FROM user_settings WHERE user_id = ?`, st.UserID).Scan(&raw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	doc, err := mergePrefs(raw, st)
	if err != nil {
		return err
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_settings(user_id, learning_preferences, created_at, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET learning_preferences=excluded.learning_preferences, updated_at=excluded.updated_at`,
		st.UserID, doc, now, now,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) EnabledReminderUsers(ctx context.Context) ([]ReminderUser, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, learning_preferences FROM user_settings ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReminderUser
	for rows.Next() {
		var (
			id  int64
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		st, err := decodePrefs(id, raw)
		if err != nil {
			s.log.Warn("skipping user with malformed settings", logx.Int64("user_id", id), logx.Err(err))
			continue
		}
		if st.ReminderEnabled {
			out = append(out, ReminderUser{UserID: id, ReminderTime: st.ReminderTime, DailyTarget: st.DailyTarget})
		}
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteUser(ctx context.Context, userID int64) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, q := range []string{
		`DELETE FROM user_settings WHERE user_id = ?`,
		`DELETE FROM words WHERE user_id = ?`,
		`DELETE FROM reminder_log WHERE user_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, userID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) AddWord(ctx context.Context, it Item) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	if strings.TrimSpace(it.Word) == "" {
		return 0, errors.New("word is required")
	}
	due := it.DueDate
	if due.IsZero() {
		due = s.now()
	}
	if it.Interval <= 0 {
		it.Interval = 1
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO words(user_id, word, chinese_meaning, next_review, interval, difficulty, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		it.UserID, strings.TrimSpace(it.Word), nullStr(it.Meaning), Day(due).Format(DateLayout),
		it.Interval, it.Difficulty, s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) DueItems(ctx context.Context, userID int64, today time.Time) ([]Item, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, word, COALESCE(chinese_meaning, ''), next_review, interval, difficulty
		 FROM words
		 WHERE user_id = ? AND next_review IS NOT NULL AND next_review <= ?
		 ORDER BY next_review, id`,
		userID, Day(today).Format(DateLayout),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it := Item{UserID: userID}
		var due string
		if err := rows.Scan(&it.ID, &it.Word, &it.Meaning, &due, &it.Interval, &it.Difficulty); err != nil {
			return nil, err
		}
		d, err := time.Parse(DateLayout, due)
		if err != nil {
			s.log.Debug("skipping item with malformed review date", logx.Int64("item_id", it.ID), logx.String("next_review", due))
			continue
		}
		it.DueDate = d
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MarkReminded(ctx context.Context, userID int64, day time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reminder_log(user_id, day, sent_at) VALUES(?,?,?)`,
		userID, Day(day).Format(DateLayout), s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sqliteStore) PruneReminded(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminder_log WHERE day < ?`, Day(before).Format(DateLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
