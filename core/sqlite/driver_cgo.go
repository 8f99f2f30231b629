//go:build cgo_sqlite

// Build with: CGO_ENABLED=1 go build -tags cgo_sqlite
package sqlite

import (
	"strconv"

	sqliteexternal "github.com/FocuswithJustin/sefer/contrib/sqlite-external"
)

const (
	driverName = sqliteexternal.DriverName
	driverType = sqliteexternal.DriverType
)

func dsnParams(busyMillis int) []string {
	return []string{
		"_busy_timeout=" + strconv.Itoa(busyMillis),
		"_journal_mode=WAL",
	}
}
