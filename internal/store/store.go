// Package store is the on-disk cache for fetched API payloads.
//
// Payloads are kept in a single SQLite table keyed by the BLAKE3 hash of the
// request that produced them. Bodies are stored xz-compressed.
package store

import (
	"bytes"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/sefer/core/errors"
	"github.com/FocuswithJustin/sefer/core/sqlite"
	"github.com/FocuswithJustin/sefer/internal/logging"
)

// FileName is the database file created inside the cache directory.
const FileName = "payloads.db"

const schema = `CREATE TABLE IF NOT EXISTS payloads (
	key        TEXT PRIMARY KEY,
	ref        TEXT NOT NULL,
	body       BLOB NOT NULL,
	created_at INTEGER NOT NULL
)`

// Store is a payload cache backed by SQLite.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
	now  func() time.Time
}

// Stats summarises the cache contents.
type Stats struct {
	Path            string
	Driver          string
	Entries         int64
	CompressedBytes int64
	Oldest          time.Time
	Newest          time.Time
}

// Key derives the cache key of a request.
func Key(method, url string, body []byte) string {
	h := blake3.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(url))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Open opens (creating if needed) the cache database inside dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewIO("mkdir", dir, err)
	}
	path := filepath.Join(dir, FileName)
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.NewIO("create schema", path, err)
	}
	logging.Debug("payload cache opened", "path", path, "driver", sqlite.DriverType())
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns the payload stored under key if it is younger than ttl.
// A ttl of zero disables expiry. Expired entries are removed.
func (s *Store) Get(key string, ttl time.Duration) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		body    []byte
		created int64
	)
	err := s.db.QueryRow(`SELECT body, created_at FROM payloads WHERE key = ?`, key).Scan(&body, &created)
	if err == sql.ErrNoRows {
		logging.CacheEvent("miss", key)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewIO("read", key, err)
	}

	if ttl > 0 && s.now().Sub(time.Unix(created, 0)) > ttl {
		logging.CacheEvent("expired", key)
		if _, err := s.db.Exec(`DELETE FROM payloads WHERE key = ?`, key); err != nil {
			return nil, false, errors.NewIO("expire", key, err)
		}
		return nil, false, nil
	}

	data, err := decompress(body)
	if err != nil {
		return nil, false, errors.NewIO("decompress", key, err)
	}
	logging.CacheEvent("hit", key)
	return data, true, nil
}

// Put stores body under key, replacing any previous entry.
func (s *Store) Put(key, ref string, body []byte) error {
	packed, err := compress(body)
	if err != nil {
		return errors.NewIO("compress", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO payloads (key, ref, body, created_at) VALUES (?, ?, ?, ?)`,
		key, ref, packed, s.now().Unix(),
	)
	if err != nil {
		return errors.NewIO("write", key, err)
	}
	logging.CacheEvent("put", key, "ref", ref, "bytes", len(body), "stored", len(packed))
	return nil
}

// Purge removes every entry and returns how many were removed.
func (s *Store) Purge() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM payloads`)
	if err != nil {
		return 0, errors.NewIO("purge", s.path, err)
	}
	n, _ := res.RowsAffected()
	if _, err := s.db.Exec(`VACUUM`); err != nil {
		logging.Warn("cache vacuum failed", "path", s.path, "error", err)
	}
	return n, nil
}

// Stats reports the number of entries and their stored size.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Path: s.path, Driver: sqlite.DriverType()}
	var oldest, newest sql.NullInt64
	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(body)), 0), MIN(created_at), MAX(created_at) FROM payloads`,
	).Scan(&st.Entries, &st.CompressedBytes, &oldest, &newest)
	if err != nil {
		return Stats{}, errors.NewIO("stats", s.path, err)
	}
	if oldest.Valid {
		st.Oldest = time.Unix(oldest.Int64, 0)
	}
	if newest.Valid {
		st.Newest = time.Unix(newest.Int64, 0)
	}
	return st, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("xz writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xz reader: %w", err)
	}
	return io.ReadAll(r)
}
