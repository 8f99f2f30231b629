// Package sqlite opens the payload cache database through one of two drivers:
//
//   - Default: pure Go modernc.org/sqlite
//   - With -tags cgo_sqlite: mattn/go-sqlite3 via contrib/sqlite-external
//
// Both are opened with a busy timeout and WAL journaling so that a CLI run
// and a running server can share one cache file.
package sqlite

import (
	"database/sql"
	"strings"
	"time"
)

// BusyTimeout is how long a connection waits on a locked database.
const BusyTimeout = 5 * time.Second

// DriverName returns the database/sql driver name in use.
func DriverName() string {
	return driverName
}

// DriverType returns "cgo" for mattn/go-sqlite3 and "purego" for modernc.org/sqlite.
func DriverType() string {
	return driverType
}

// Open opens the database file at path.
func Open(path string) (*sql.DB, error) {
	return sql.Open(driverName, DSN(path))
}

// DSN builds the data source name for path in the syntax of the active driver.
func DSN(path string) string {
	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(path)
	for i, p := range dsnParams(int(BusyTimeout / time.Millisecond)) {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p)
	}
	return b.String()
}
