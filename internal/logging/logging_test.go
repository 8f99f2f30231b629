package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// captureLogOutput captures log output for testing by temporarily
// redirecting the logger to write to a buffer
func captureLogOutput(f func()) string {
	var buf bytes.Buffer

	oldLogger := defaultLogger
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	defaultLogger = slog.New(handler)

	f()

	defaultLogger = oldLogger
	return buf.String()
}

// captureLogOutputWithInit reinitializes the logger on a buffer so the
// ReplaceAttr logic of InitLoggerWriter is exercised.
func captureLogOutputWithInit(level Level, format Format, f func()) string {
	var buf bytes.Buffer
	InitLoggerWriter(&buf, level, format)
	f()
	InitLoggerWriter(os.Stderr, LevelWarn, FormatText)
	return buf.String()
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  Level
		format Format
	}{
		{"Debug level JSON format", LevelDebug, FormatJSON},
		{"Info level JSON format", LevelInfo, FormatJSON},
		{"Warn level JSON format", LevelWarn, FormatJSON},
		{"Error level JSON format", LevelError, FormatJSON},
		{"Info level Text format", LevelInfo, FormatText},
		{"Default level (invalid value)", Level(999), FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			InitLogger(tt.level, tt.format)
			if GetLogger() == nil {
				t.Error("Expected logger to be initialized, got nil")
			}
		})
	}
	InitLoggerWriter(os.Stderr, LevelWarn, FormatText)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{" warn ", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"loud", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("JSON") != FormatJSON {
		t.Error("ParseFormat(JSON) should be FormatJSON")
	}
	if ParseFormat("text") != FormatText || ParseFormat("") != FormatText {
		t.Error("ParseFormat should default to FormatText")
	}
}

func TestLevelFiltering(t *testing.T) {
	output := captureLogOutputWithInit(LevelWarn, FormatJSON, func() {
		Info("hidden")
		Warn("shown")
	})
	if strings.Contains(output, "hidden") {
		t.Error("Info message should be filtered at warn level")
	}
	if !strings.Contains(output, "shown") {
		t.Error("Warn message should be logged at warn level")
	}
}

func TestGetRequestID(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID(empty) = %q, want empty", got)
	}
	ctx := WithRequestID(context.Background(), "req-1")
	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("GetRequestID() = %q, want req-1", got)
	}
	// Wrong value type is ignored.
	ctx = context.WithValue(context.Background(), RequestIDKey, 42)
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("GetRequestID(int) = %q, want empty", got)
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerWriter(&buf, LevelInfo, FormatJSON)
	defer InitLoggerWriter(os.Stderr, LevelWarn, FormatText)

	ctx := WithRequestID(context.Background(), "abc")
	LoggerFromContext(ctx).Info("with id")
	if !strings.Contains(buf.String(), `"request_id":"abc"`) {
		t.Errorf("output missing request_id: %s", buf.String())
	}
}

func TestLoggingFunctions(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func()
		level   string
	}{
		{"Debug", func() { Debug("debug message", "key", "value") }, "DEBUG"},
		{"Info", func() { Info("info message", "key", "value") }, "INFO"},
		{"Warn", func() { Warn("warn message", "key", "value") }, "WARN"},
		{"Error", func() { Error("error message", "key", "value") }, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := captureLogOutput(tt.logFunc)
			if !strings.Contains(output, tt.level) {
				t.Errorf("Expected level %s in output: %s", tt.level, output)
			}
			if !strings.Contains(output, `"key":"value"`) {
				t.Errorf("Expected key/value in output: %s", output)
			}
		})
	}
}

func TestContextLoggingFunctions(t *testing.T) {
	ctx := WithRequestID(context.Background(), "ctx-id")
	tests := []struct {
		name    string
		logFunc func()
	}{
		{"DebugContext", func() { DebugContext(ctx, "debug") }},
		{"InfoContext", func() { InfoContext(ctx, "info") }},
		{"WarnContext", func() { WarnContext(ctx, "warn") }},
		{"ErrorContext", func() { ErrorContext(ctx, "error") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := captureLogOutput(tt.logFunc)
			if !strings.Contains(output, "ctx-id") {
				t.Errorf("Expected request id in output: %s", output)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	output := captureLogOutput(func() {
		Lookup(context.Background(), "Genesis 1:1", "Genesis 1", 1, 20*time.Millisecond, "cached", true)
	})
	for _, want := range []string{`"msg":"lookup"`, `"citation":"Genesis 1:1"`, `"ref":"Genesis 1"`, `"verses":1`, `"duration_ms":20`, `"cached":true`} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %s: %s", want, output)
		}
	}
}

func TestCacheEvent(t *testing.T) {
	output := captureLogOutput(func() {
		CacheEvent("hit", "deadbeef", "ref", "Exodus 20")
	})
	for _, want := range []string{`"msg":"cache_event"`, `"event":"hit"`, `"key":"deadbeef"`, `"ref":"Exodus 20"`} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %s: %s", want, output)
		}
	}
}

func TestWebSocketEvent(t *testing.T) {
	output := captureLogOutput(func() {
		WebSocketEvent("client_connected", 5)
	})
	if !strings.Contains(output, `"event":"client_connected"`) || !strings.Contains(output, `"client_count":5`) {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestServerStartup(t *testing.T) {
	output := captureLogOutput(func() {
		ServerStartup("api", "http", 8081, "version", "1.0")
	})
	for _, want := range []string{`"server_type":"api"`, `"protocol":"http"`, `"port":8081`, `"version":"1.0"`} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %s: %s", want, output)
		}
	}
}

func TestResponseWriter_WriteHeader(t *testing.T) {
	recorder := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: recorder, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusNotFound)
	// Second call should be ignored
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("Expected status code %d, got %d", http.StatusNotFound, rw.statusCode)
	}
	if recorder.Code != http.StatusNotFound {
		t.Errorf("recorder code = %d, want %d", recorder.Code, http.StatusNotFound)
	}
}

func TestResponseWriter_Write(t *testing.T) {
	recorder := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: recorder, statusCode: http.StatusOK}

	n, err := rw.Write([]byte("test data"))
	if err != nil || n != len("test data") {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if !rw.written || rw.statusCode != http.StatusOK {
		t.Errorf("Write should imply 200, got written=%v code=%d", rw.written, rw.statusCode)
	}
	if rw.Unwrap() != recorder {
		t.Error("Unwrap() should return the underlying writer")
	}
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); !errors.Is(err, http.ErrNotSupported) {
		t.Errorf("Hijack() error = %v, want ErrNotSupported", err)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	existing := uuid.NewString()
	tests := []struct {
		name   string
		header string
		check  func(t *testing.T, got string)
	}{
		{
			name: "generate new request ID",
			check: func(t *testing.T, got string) {
				if _, err := uuid.Parse(got); err != nil {
					t.Errorf("X-Request-ID %q is not a UUID", got)
				}
			},
		},
		{
			name:   "keep existing UUID",
			header: existing,
			check: func(t *testing.T, got string) {
				if got != existing {
					t.Errorf("X-Request-ID = %q, want %q", got, existing)
				}
			},
		},
		{
			name:   "replace malformed ID",
			header: "not a uuid",
			check: func(t *testing.T, got string) {
				if got == "not a uuid" {
					t.Error("malformed request ID should be replaced")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctxID string
			handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxID = GetRequestID(r.Context())
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			got := w.Header().Get("X-Request-ID")
			if ctxID != got {
				t.Errorf("context ID %q != header ID %q", ctxID, got)
			}
			tt.check(t, got)
		})
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	InitLoggerWriter(&buf, LevelInfo, FormatJSON)
	defer InitLoggerWriter(os.Stderr, LevelWarn, FormatText)

	handler := CombinedMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/parse", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{`"msg":"http_request"`, `"status_code":418`, `"path":"/api/v1/parse"`, `"request_id"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %s", want, out)
		}
	}
}

func TestReplaceAttrTimestamp(t *testing.T) {
	output := captureLogOutputWithInit(LevelInfo, FormatJSON, func() {
		Info("timestamp test")
	})
	if !strings.Contains(output, "timestamp test") {
		t.Fatal("Expected output to contain test message")
	}
	// RFC3339 has no fractional seconds.
	if strings.Contains(output, `"time":"`) {
		idx := strings.Index(output, `"time":"`) + len(`"time":"`)
		end := strings.Index(output[idx:], `"`)
		if _, err := time.Parse(time.RFC3339, output[idx:idx+end]); err != nil {
			t.Errorf("timestamp not RFC3339: %v", err)
		}
		if strings.Contains(output[idx:idx+end], ".") {
			t.Errorf("timestamp has fractional seconds: %s", output[idx:idx+end])
		}
	} else {
		t.Error("Expected time attribute")
	}
}

func TestInit(t *testing.T) {
	if defaultLogger == nil {
		t.Error("Expected defaultLogger to be initialized by init()")
	}
}

type closeBuffer struct {
	bytes.Buffer
	closed bool
}

func (c *closeBuffer) Close() error {
	c.closed = true
	return nil
}

func TestFlagLogRecord(t *testing.T) {
	buf := &closeBuffer{}
	fl := NewFlagLog(buf)
	fl.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	if err := fl.Record("Exodus 3:15", []string{"15 And God said", ""}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := fl.Record("   ", []string{"ignored"}); err != nil {
		t.Fatalf("Record(blank) error: %v", err)
	}
	if got, want := buf.String(), "# 2024-03-01T12:00:00Z Exodus 3:15\n15 And God said\n\n"; got != want {
		t.Errorf("log = %q, want %q", got, want)
	}
	if err := fl.Close(); err != nil || !buf.closed {
		t.Errorf("Close() = %v, closed=%v", err, buf.closed)
	}
}

func TestFlagLogNil(t *testing.T) {
	var fl *FlagLog
	if err := fl.Record("Genesis 1", nil); err != nil {
		t.Errorf("nil Record() error: %v", err)
	}
	if err := fl.Close(); err != nil {
		t.Errorf("nil Close() error: %v", err)
	}
}

func TestFlagLogDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)
	if got, want := FlagLogDir(), filepath.Join(dir, "sefer"); got != want {
		t.Errorf("FlagLogDir() = %q, want %q", got, want)
	}
}

func TestOpenFlagLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	fl, err := OpenFlagLog(dir)
	if err != nil {
		t.Fatalf("OpenFlagLog() error: %v", err)
	}
	if err := fl.Record("Psalms 23:1", []string{"1 text"}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*", FlagLogName))
	if err != nil || len(matches) != 1 {
		t.Fatalf("flag logs = %v (%v), want one", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if !strings.HasSuffix(string(data), " Psalms 23:1\n1 text\n") {
		t.Errorf("log contents = %q", data)
	}
}

func TestFlagLogKeepsRotatedFiles(t *testing.T) {
	fl, err := openDailyFlagLog(t.TempDir(), time.Now)
	if err != nil {
		t.Fatalf("openDailyFlagLog() error: %v", err)
	}
	defer fl.Close()
	lj, ok := fl.out.(*lumberjack.Logger)
	if !ok {
		t.Fatalf("writer = %T, want *lumberjack.Logger", fl.out)
	}
	if lj.MaxBackups != 0 || lj.MaxAge != 0 || lj.Compress {
		t.Errorf("rotation = backups %d, age %d, compress %v; want 0, 0, false", lj.MaxBackups, lj.MaxAge, lj.Compress)
	}
}

func TestFlagLogFollowsDate(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)
	fl, err := openDailyFlagLog(dir, func() time.Time { return clock })
	if err != nil {
		t.Fatalf("openDailyFlagLog() error: %v", err)
	}
	if err := fl.Record("Exodus 3:15", []string{"15 first"}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := fl.Record("Exodus 6:2", []string{"2 second"}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := fl.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	tests := []struct {
		day  string
		want string
	}{
		{"2024-12-31", "# 2024-12-31T23:59:00Z Exodus 3:15\n15 first\n"},
		{"2025-01-01", "# 2025-01-01T00:01:00Z Exodus 6:2\n2 second\n"},
	}
	for _, tt := range tests {
		data, err := os.ReadFile(filepath.Join(dir, tt.day, FlagLogName))
		if err != nil {
			t.Errorf("%s: %v", tt.day, err)
			continue
		}
		if string(data) != tt.want {
			t.Errorf("%s log = %q, want %q", tt.day, data, tt.want)
		}
	}
}
