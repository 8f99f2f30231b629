//go:build !cgo_sqlite

package sqlite

import (
	"strconv"

	_ "modernc.org/sqlite"
)

const (
	driverName = "sqlite"
	driverType = "purego"
)

func dsnParams(busyMillis int) []string {
	return []string{
		"_pragma=busy_timeout(" + strconv.Itoa(busyMillis) + ")",
		"_pragma=journal_mode(WAL)",
	}
}
