// Package sqliteexternal provides the optional CGO SQLite driver.
//
// To use the CGO driver (github.com/mattn/go-sqlite3) build with:
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./cmd/sefer
//
// By default sefer uses modernc.org/sqlite, which needs no CGO and
// cross-compiles cleanly. See github.com/FocuswithJustin/sefer/core/sqlite.
package sqliteexternal
