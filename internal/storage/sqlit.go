package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	// Register sqlite3 driver
	_ "github.com/mattn/go-sqlite3"

	"capmOptimizerBot/internal/capm"
)

type DB interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	Close() error
}

type Store struct {
	db  DB
	now func() time.Time
}

func OpenSQLite(dsn string) (DB, error) {
	return sql.Open("sqlite3", dsn)
}

func InitSchema(db DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS prices(
		key TEXT PRIMARY KEY, fetched_at INTEGER, payload TEXT
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS runs(
		id TEXT PRIMARY KEY, chat_id INTEGER, created_at INTEGER, mode TEXT, tickers TEXT, payload TEXT
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS runs_chat ON runs(chat_id, created_at)`)
	return err
}

func NewStore(db DB) *Store { return &Store{db: db, now: time.Now} }

// LoadPrices returns the series stored under key if it is younger than maxAge.
// A zero maxAge accepts any age.
func (s *Store) LoadPrices(key string, maxAge time.Duration) (capm.PriceSeries, bool, error) {
	rows, err := s.db.Query(`SELECT fetched_at, payload FROM prices WHERE key=?`, key)
	if err != nil {
		return capm.PriceSeries{}, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return capm.PriceSeries{}, false, rows.Err()
	}
	var fetchedAt int64
	var payload string
	if err := rows.Scan(&fetchedAt, &payload); err != nil {
		return capm.PriceSeries{}, false, err
	}
	if maxAge > 0 && s.now().Sub(time.Unix(fetchedAt, 0)) > maxAge {
		return capm.PriceSeries{}, false, nil
	}
	var ps capm.PriceSeries
	if err := json.Unmarshal([]byte(payload), &ps); err != nil {
		return capm.PriceSeries{}, false, fmt.Errorf("decode cached prices %s: %w", key, err)
	}
	return ps, true, nil
}

func (s *Store) SavePrices(key string, ps capm.PriceSeries) error {
	payload, err := json.Marshal(ps)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO prices(key,fetched_at,payload) VALUES(?,?,?)`,
		key, s.now().Unix(), string(payload))
	return err
}

// Run is one persisted optimization. Payload is the JSON run summary.
type Run struct {
	ID        string
	ChatID    int64
	CreatedAt time.Time
	Mode      string
	Tickers   []string
	Payload   []byte
}

var ErrNoRuns = errors.New("no runs recorded")

func (s *Store) SaveRun(r Run) error {
	if r.ID == "" {
		return errors.New("run id required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO runs(id,chat_id,created_at,mode,tickers,payload) VALUES(?,?,?,?,?,?)`,
		r.ID, r.ChatID, r.CreatedAt.Unix(), r.Mode, strings.Join(r.Tickers, ","), string(r.Payload))
	return err
}

// RecentRuns lists a chat's runs, newest first.
func (s *Store) RecentRuns(chatID int64, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(`SELECT id,chat_id,created_at,mode,tickers,payload FROM runs
		WHERE chat_id=? ORDER BY created_at DESC, rowid DESC LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var ts int64
		var tickers, payload string
		if err := rows.Scan(&r.ID, &r.ChatID, &ts, &r.Mode, &tickers, &payload); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(ts, 0)
		if tickers != "" {
			r.Tickers = strings.Split(tickers, ",")
		}
		r.Payload = []byte(payload)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) LastRun(chatID int64) (Run, error) {
	runs, err := s.RecentRuns(chatID, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrNoRuns
	}
	return runs[0], nil
}
