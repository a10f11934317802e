// Package storage persists scripts and options in a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	updateagent "github.com/scriptward/UpdateAgent"
	"github.com/scriptward/UpdateAgent/internal/meta"
)

const schema = `
CREATE TABLE IF NOT EXISTS scripts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	version       TEXT NOT NULL DEFAULT '',
	download_url  TEXT NOT NULL DEFAULT '',
	update_url    TEXT NOT NULL DEFAULT '',
	enabled       INTEGER NOT NULL DEFAULT 1,
	notify        INTEGER,
	code          TEXT NOT NULL DEFAULT '',
	checking      INTEGER NOT NULL DEFAULT 0,
	check_error   TEXT NOT NULL DEFAULT '',
	check_message TEXT NOT NULL DEFAULT '',
	updated_at    INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS options (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const scriptColumns = `id, name, version, download_url, update_url, enabled, notify, code, checking, check_error, check_message`

// Store is a SQLite-backed script and options store. It implements
// updateagent.ScriptStore and updateagent.OptionsStore.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage: database path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open script database")
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY on concurrent persist calls.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ensure script schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// GetScript loads one script by id.
func (s *Store) GetScript(ctx context.Context, id int64) (*updateagent.Script, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scriptColumns+` FROM scripts WHERE id = ?`, id)
	script, err := scanScript(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Errorf("script %d not found", id)
	}
	return script, err
}

// AllScripts loads every script ordered by id.
func (s *Store) AllScripts(ctx context.Context) ([]*updateagent.Script, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scriptColumns+` FROM scripts ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "query scripts")
	}
	defer rows.Close()

	var scripts []*updateagent.Script
	for rows.Next() {
		script, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, script)
	}
	return scripts, errors.Wrap(rows.Err(), "iterate scripts")
}

// InsertScript stores a new script and returns its id.
func (s *Store) InsertScript(ctx context.Context, script *updateagent.Script) (int64, error) {
	if script == nil {
		return 0, errors.New("storage: script is nil")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scripts (name, version, download_url, update_url, enabled, notify, code, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		script.Meta.Name, script.Meta.Version, script.Meta.DownloadURL, script.Meta.UpdateURL,
		boolInt(script.Config.Enabled), notifyValue(script.Config.NotifyUpdates), script.Code,
		time.Now().UnixMilli())
	if err != nil {
		return 0, errors.Wrap(err, "insert script")
	}
	id, err := res.LastInsertId()
	return id, errors.Wrap(err, "script insert id")
}

// ParseAndPersist parses the metadata block of req.Code and persists the
// refreshed script. A missing block or missing @name is a validation
// failure: the failure is recorded on the script's update state and returned
// as an error with a user-facing message.
func (s *Store) ParseAndPersist(ctx context.Context, req updateagent.PersistRequest) (*updateagent.Script, error) {
	block, err := meta.Parse(req.Code)
	if err == nil && block.Name == "" {
		err = errors.New("script metadata is missing @name")
	}
	if err != nil {
		if _, updErr := s.db.ExecContext(ctx,
			`UPDATE scripts SET checking = ?, check_error = ? WHERE id = ?`,
			boolInt(req.Update.Checking), err.Error(), req.ID); updErr != nil {
			log.Warn().Err(updErr).Int64("script_id", req.ID).Msg("record parse failure state failed")
		}
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE scripts
		 SET name = ?, version = ?, download_url = ?, update_url = ?, code = ?,
		     checking = ?, check_error = '', check_message = ?, updated_at = ?
		 WHERE id = ?`,
		block.Name, block.Version, block.DownloadURL, block.UpdateURL, req.Code,
		boolInt(req.Update.Checking), req.Update.Message, time.Now().UnixMilli(), req.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "persist script %d", req.ID)
	}
	return s.GetScript(ctx, req.ID)
}

// Bool reads a boolean option; unset or unparseable values are false.
func (s *Store) Bool(key string) bool {
	value, ok := s.optionValue(key)
	if !ok {
		return false
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// Int64 reads an integer option; unset or unparseable values are zero.
func (s *Store) Int64(key string) int64 {
	value, ok := s.optionValue(key)
	if !ok {
		return 0
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

// SetInt64 stores an integer option.
func (s *Store) SetInt64(key string, value int64) error {
	return s.setOption(key, strconv.FormatInt(value, 10))
}

// SetBool stores a boolean option.
func (s *Store) SetBool(key string, value bool) error {
	if value {
		return s.setOption(key, "true")
	}
	return s.setOption(key, "false")
}

func (s *Store) optionValue(key string) (string, bool) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM options WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("read option failed")
		return "", false
	}
	return value, true
}

func (s *Store) setOption(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO options (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return errors.Wrapf(err, "set option %s", key)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScript(row rowScanner) (*updateagent.Script, error) {
	var (
		script   updateagent.Script
		enabled  int64
		notify   sql.NullInt64
		checking int64
	)
	err := row.Scan(
		&script.ID, &script.Meta.Name, &script.Meta.Version,
		&script.Meta.DownloadURL, &script.Meta.UpdateURL,
		&enabled, &notify, &script.Code,
		&checking, &script.Update.Error, &script.Update.Message)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan script row")
	}
	script.Config.Enabled = enabled != 0
	if notify.Valid {
		flag := notify.Int64 != 0
		script.Config.NotifyUpdates = &flag
	}
	script.Update.Checking = checking != 0
	return &script, nil
}

func boolInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func notifyValue(v *bool) any {
	if v == nil {
		return nil
	}
	return boolInt(*v)
}
