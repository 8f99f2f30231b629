package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FlagLogName is the file name of each day's flag log.
const FlagLogName = "flagged.log"

// FlagLog keeps passages whose text carries the marked term. Each entry is a
// "# <RFC3339> <ref>" line followed by the passage lines. Entries go to the
// log of the day they are recorded on; old logs are never removed.
type FlagLog struct {
	mu   sync.Mutex
	out  io.WriteCloser
	day  string
	open func(day time.Time) (io.WriteCloser, error) // nil for a fixed writer
	now  func() time.Time
}

// FlagLogDir returns the directory holding the dated flag logs:
// $XDG_STATE_HOME/sefer, falling back to ~/.local/state/sefer.
func FlagLogDir() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "sefer")
}

// dayPath is <dir>/<yyyy-mm-dd>/flagged.log.
func dayPath(dir string, t time.Time) string {
	return filepath.Join(dir, t.Format("2006-01-02"), FlagLogName)
}

// OpenFlagLog opens the flag log under dir. The log moves to a new dated
// directory when the day changes.
func OpenFlagLog(dir string) (*FlagLog, error) {
	return openDailyFlagLog(dir, time.Now)
}

func openDailyFlagLog(dir string, now func() time.Time) (*FlagLog, error) {
	f := &FlagLog{
		now: now,
		open: func(day time.Time) (io.WriteCloser, error) {
			path := dayPath(dir, day)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create flag log directory: %w", err)
			}
			// Size rotation only; rotated files are kept uncompressed.
			return &lumberjack.Logger{
				Filename: path,
				MaxSize:  10, // megabytes
			}, nil
		},
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.rollLocked(now()); err != nil {
		return nil, err
	}
	return f, nil
}

// NewFlagLog wraps an arbitrary writer.
func NewFlagLog(w io.WriteCloser) *FlagLog {
	return &FlagLog{out: w, now: time.Now}
}

// rollLocked switches to the log of the day of t. MUST be called with mu held.
func (f *FlagLog) rollLocked(t time.Time) error {
	day := t.Format("2006-01-02")
	if f.open == nil || (f.out != nil && day == f.day) {
		return nil
	}
	w, err := f.open(t)
	if err != nil {
		return err
	}
	if f.out != nil {
		if err := f.out.Close(); err != nil {
			Warn("close previous flag log", "day", f.day, "error", err)
		}
	}
	f.out, f.day = w, day
	return nil
}

// Record appends one entry. A nil FlagLog discards.
func (f *FlagLog) Record(ref string, lines []string) error {
	if f == nil {
		return nil
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}

	now := f.now()
	var b strings.Builder
	fmt.Fprintf(&b, "# %s %s\n", now.UTC().Format(time.RFC3339), ref)
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.rollLocked(now); err != nil {
		Warn("flag log rotation failed", "ref", ref, "error", err)
		return err
	}
	_, err := io.WriteString(f.out, b.String())
	if err != nil {
		Warn("flag log write failed", "ref", ref, "error", err)
	}
	return err
}

// Close closes the underlying writer.
func (f *FlagLog) Close() error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.out == nil {
		return nil
	}
	return f.out.Close()
}
