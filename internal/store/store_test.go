package store

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKey(t *testing.T) {
	a := Key("GET", "https://www.sefaria.org/api/texts/Genesis_1", nil)
	b := Key("GET", "https://www.sefaria.org/api/texts/Genesis_1", nil)
	if a != b {
		t.Errorf("Key() not deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("Key() length = %d, want 64 hex chars", len(a))
	}

	distinct := map[string]bool{
		a: true,
		Key("POST", "https://www.sefaria.org/api/texts/Genesis_1", nil):           true,
		Key("GET", "https://www.sefaria.org/api/texts/Genesis_2", nil):           true,
		Key("POST", "https://www.sefaria.org/api/search-wrapper", []byte(`{}`)):  true,
		Key("POST", "https://www.sefaria.org/api/search-wrapper", []byte(`{ }`)): true,
	}
	if len(distinct) != 5 {
		t.Errorf("Key() collided across different requests")
	}
}

func TestPutGet(t *testing.T) {
	s := openTemp(t)
	body := bytes.Repeat([]byte(`{"text":["In the beginning"]}`), 50)
	key := Key("GET", "/api/texts/Genesis 1", nil)

	if err := s.Put(key, "Genesis 1", body); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	got, ok, err := s.Get(key, time.Hour)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("Get() returned %d bytes, want %d", len(got), len(body))
	}

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if st.Entries != 1 {
		t.Errorf("Entries = %d, want 1", st.Entries)
	}
	if st.CompressedBytes <= 0 || st.CompressedBytes >= int64(len(body)) {
		t.Errorf("CompressedBytes = %d, want compressed below %d", st.CompressedBytes, len(body))
	}
}

func TestGetMissing(t *testing.T) {
	s := openTemp(t)
	got, ok, err := s.Get("nope", 0)
	if err != nil || ok || got != nil {
		t.Errorf("Get(missing) = %q, %v, %v", got, ok, err)
	}
}

func TestGetExpired(t *testing.T) {
	s := openTemp(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	if err := s.Put("k", "Exodus 20", []byte("payload")); err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, ok, err := s.Get("k", 0); err != nil || !ok {
		t.Errorf("Get(ttl=0) = %v, %v; zero ttl never expires", ok, err)
	}
	if _, ok, err := s.Get("k", time.Hour); err != nil || ok {
		t.Errorf("Get(expired) = %v, %v; want miss", ok, err)
	}
	// The expired entry is gone.
	if _, ok, _ := s.Get("k", 0); ok {
		t.Error("expired entry was not removed")
	}
}

func TestPutReplaces(t *testing.T) {
	s := openTemp(t)
	if err := s.Put("k", "a", []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("k", "a", []byte("two")); err != nil {
		t.Fatal(err)
	}
	got, _, _ := s.Get("k", 0)
	if string(got) != "two" {
		t.Errorf("Get() = %q, want two", got)
	}
	if st, _ := s.Stats(); st.Entries != 1 {
		t.Errorf("Entries = %d, want 1", st.Entries)
	}
}

func TestPurge(t *testing.T) {
	s := openTemp(t)
	for _, k := range []string{"a", "b", "c"} {
		if err := s.Put(k, k, []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.Purge()
	if err != nil {
		t.Fatalf("Purge() error: %v", err)
	}
	if n != 3 {
		t.Errorf("Purge() = %d, want 3", n)
	}
	st, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 0 || !st.Oldest.IsZero() {
		t.Errorf("Stats() after purge = %+v", st)
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put("k", "Psalms 23", []byte("The LORD is my shepherd")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Fatalf("database file missing: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, ok, err := s2.Get("k", 0)
	if err != nil || !ok || !strings.Contains(string(got), "shepherd") {
		t.Errorf("Get() after reopen = %q, %v, %v", got, ok, err)
	}
}

func TestCompressRoundTrip(t *testing.T) {
	in := []byte("בראשית ברא אלהים")
	packed, err := compress(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := decompress(packed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(in, out) {
		t.Errorf("decompress(compress(x)) = %q", out)
	}
	if _, err := decompress([]byte("not xz")); err == nil {
		t.Error("decompress(garbage) should fail")
	}
}
