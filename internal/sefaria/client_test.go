package sefaria

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/FocuswithJustin/sefer/core/errors"
	"github.com/FocuswithJustin/sefer/core/text"
)

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	refs    map[string]string
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}, refs: map[string]string{}}
}

func (m *memCache) Get(key string, ttl time.Duration) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.entries[key]
	return b, ok, nil
}

func (m *memCache) Put(key, ref string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = body
	m.refs[key] = ref
	return nil
}

func newTestClient(t *testing.T, h http.HandlerFunc, cache Cache) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL + "/", Timeout: 5 * time.Second, UserAgent: UserAgent("test"), Cache: cache})
}

const exodusSpan = `{
	"ref": "Exodus 18:1-20:23",
	"sectionRef": "Exodus 18",
	"type": "Tanakh",
	"book": "Exodus",
	"text": [["a", "b"], ["c"], ["d", "e"]],
	"he": [["א", "ב"], ["ג"], ["ד", "ה"]],
	"spanningRefs": ["Exodus 18:1-27", "Exodus 19", "Exodus 20:1-23"],
	"isSpanning": true
}`

func TestText(t *testing.T) {
	var gotPath, gotQuery, gotUA string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		io.WriteString(w, exodusSpan)
	}, nil)

	resp, err := c.Text(context.Background(), "Exodus 18:1-20:23", TextOptions{EnglishVersion: "JPS"})
	if err != nil {
		t.Fatalf("Text() error: %v", err)
	}
	if gotPath != "/api/texts/Exodus_18:1-20:23" {
		t.Errorf("path = %q", gotPath)
	}
	for _, want := range []string{"commentary=0", "context=0", "ven=JPS"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %s", gotQuery, want)
		}
	}
	if gotUA != "sefer/test" {
		t.Errorf("User-Agent = %q, want sefer/test", gotUA)
	}
	if resp.SectionRef != "Exodus 18" || resp.Type != "Tanakh" || !resp.IsSpanning || len(resp.SpanningRefs) != 3 {
		t.Errorf("Text() = %+v", resp)
	}

	units, err := text.FlattenJSON(resp.Payload(false))
	if err != nil {
		t.Fatalf("FlattenJSON() error: %v", err)
	}
	if len(units) != 5 {
		t.Errorf("flattened %d units, want 5", len(units))
	}
	he, err := text.FlattenJSON(resp.Payload(true))
	if err != nil || he[0] != "א" {
		t.Errorf("Hebrew payload = %q, %v", he, err)
	}
}

func TestTextAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error": "Could not find title in reference: Nothing 1"}`)
	}, nil)
	_, err := c.Text(context.Background(), "Nothing 1", TextOptions{})
	if !stderrors.Is(err, errors.ErrNotFound) {
		t.Fatalf("Text() error = %v, want ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "Could not find title") {
		t.Errorf("error lost API message: %v", err)
	}
}

func TestTextHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, errors.ErrNotFound},
		{http.StatusInternalServerError, errors.ErrUnavailable},
		{http.StatusTooManyRequests, errors.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, "nope")
			}, nil)
			_, err := c.Text(context.Background(), "Genesis 1", TextOptions{})
			if !stderrors.Is(err, tt.want) {
				t.Fatalf("Text() error = %v, want %v", err, tt.want)
			}
			var httpErr *errors.HTTPError
			if !stderrors.As(err, &httpErr) || httpErr.StatusCode != tt.status || httpErr.Body != "nope" {
				t.Errorf("HTTPError = %+v", httpErr)
			}
		})
	}
}

func TestTextMalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>`)
	}, nil)
	if _, err := c.Text(context.Background(), "Genesis 1", TextOptions{}); !stderrors.Is(err, errors.ErrUnexpectedShape) {
		t.Errorf("Text() error = %v, want ErrUnexpectedShape", err)
	}
}

func TestTextUsesCache(t *testing.T) {
	calls := 0
	cache := newMemCache()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		io.WriteString(w, exodusSpan)
	}, cache)

	for i := 0; i < 3; i++ {
		if _, err := c.Text(context.Background(), "Exodus 18:1-20:23", TextOptions{}); err != nil {
			t.Fatalf("Text() error: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("server called %d times, want 1", calls)
	}
	if len(cache.entries) != 1 {
		t.Errorf("cache holds %d entries, want 1", len(cache.entries))
	}
	for _, ref := range cache.refs {
		if ref != "Exodus 18:1-20:23" {
			t.Errorf("cached ref = %q", ref)
		}
	}
}

func TestAPIErrorsAreNotCached(t *testing.T) {
	cache := newMemCache()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"error": "nope"}`)
	}, cache)
	c.Text(context.Background(), "Nothing", TextOptions{})
	if len(cache.entries) != 0 {
		t.Errorf("API error body was cached")
	}
}

func TestSearch(t *testing.T) {
	var body SearchRequest
	var method, path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		io.WriteString(w, `{
			"took": 12, "timed_out": false,
			"_shards": {"total": 1, "successful": 1, "skipped": 0, "failed": 0},
			"hits": {"total": {"value": 2}, "max_score": 3.5, "hits": [
				{"_index": "text", "_id": "Genesis 1:1 (JPS) [en]", "_score": 3.5,
				 "_source": {"ref": "Genesis 1:1"}, "highlight": {"exact": ["In the <b>beginning</b>"]}},
				{"_index": "text", "_id": "John 1:1", "_score": 1.0, "highlight": {"exact": []}}
			]}
		}`)
	}, nil)

	res, err := c.Search(context.Background(), "beginning", 10)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if method != http.MethodPost || path != "/api/search-wrapper" {
		t.Errorf("request = %s %s", method, path)
	}
	if body != (SearchRequest{Query: "beginning", Type: "text", Field: "exact", Size: 10}) {
		t.Errorf("request body = %+v", body)
	}
	if res.Hits.Total != 2 || len(res.Hits.Hits) != 2 || res.Took != 12 {
		t.Fatalf("Search() = %+v", res)
	}
	if got := res.Hits.Hits[0].Ref(); got != "Genesis 1:1" {
		t.Errorf("Ref() = %q", got)
	}
	if got := res.Hits.Hits[1].Ref(); got != "John 1:1" {
		t.Errorf("Ref() fallback = %q", got)
	}
}

func TestSearchValidation(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:0"})
	for _, size := range []int{0, -1, MaxSearchSize + 1} {
		if _, err := c.Search(context.Background(), "x", size); !stderrors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("Search(size=%d) error = %v, want ErrInvalidInput", size, err)
		}
	}
	if _, err := c.Search(context.Background(), "  ", 5); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Search(blank) error = %v, want ErrInvalidInput", err)
	}
}

func TestHitTotalNumber(t *testing.T) {
	var h Hits
	if err := json.Unmarshal([]byte(`{"total": 7, "hits": []}`), &h); err != nil {
		t.Fatal(err)
	}
	if h.Total != 7 {
		t.Errorf("Total = %d, want 7", h.Total)
	}
}

func TestShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/shape/Song_of_Songs" {
			t.Errorf("path = %q", r.URL.Path)
		}
		io.WriteString(w, `[{"section": "Writings", "heTitle": "שיר השירים", "title": "Song of Songs",
			"length": 3, "chapters": [17, 17, 11], "book": "Song of Songs", "heBook": "שיר השירים"}]`)
	}, nil)

	sections, err := c.Shape(context.Background(), "Song of Songs")
	if err != nil {
		t.Fatalf("Shape() error: %v", err)
	}
	if len(sections) != 1 || sections[0].Length != 3 || sections[0].Section != "Writings" {
		t.Fatalf("Shape() = %+v", sections)
	}
	if n, err := sections[0].Verses(); err != nil || n != 45 {
		t.Errorf("Verses() = %d, %v; want 45", n, err)
	}
}

func TestShapeSingleObjectAndErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/Ruth"):
			io.WriteString(w, `{"title": "Ruth", "length": 4, "chapters": [22, 23, 18, 22]}`)
		case strings.HasSuffix(r.URL.Path, "/Empty"):
			io.WriteString(w, `[]`)
		default:
			io.WriteString(w, `{"error": "unknown book"}`)
		}
	}, nil)

	sections, err := c.Shape(context.Background(), "Ruth")
	if err != nil || len(sections) != 1 || sections[0].Title != "Ruth" {
		t.Errorf("Shape(Ruth) = %+v, %v", sections, err)
	}
	if _, err := c.Shape(context.Background(), "Empty"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("Shape(Empty) error = %v, want ErrNotFound", err)
	}
	if _, err := c.Shape(context.Background(), "Nope"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("Shape(Nope) error = %v, want ErrNotFound", err)
	}
}

func TestShapeVersesNested(t *testing.T) {
	s := ShapeSection{Title: "Complex", Chapters: []byte(`[[1, 2], [3, [4]], null]`)}
	if n, err := s.Verses(); err != nil || n != 10 {
		t.Errorf("Verses() = %d, %v; want 10", n, err)
	}
	s.Chapters = []byte(`["x"]`)
	if _, err := s.Verses(); !stderrors.Is(err, errors.ErrUnexpectedShape) {
		t.Errorf("Verses() error = %v, want ErrUnexpectedShape", err)
	}
}

func TestIndex(t *testing.T) {
	toc := strings.Repeat(`{"title":"Genesis"},`, 200)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/index/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		io.WriteString(w, "["+toc+"{}]")
	}, nil)

	var buf bytes.Buffer
	var last int64
	n, err := c.Index(context.Background(), &buf, func(read, total int64) { last = read })
	if err != nil {
		t.Fatalf("Index() error: %v", err)
	}
	if n != int64(buf.Len()) || last != n {
		t.Errorf("Index() = %d bytes, buffer %d, last progress %d", n, buf.Len(), last)
	}
}

func TestContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, exodusSpan)
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Text(ctx, "Exodus 18", TextOptions{}); !stderrors.Is(err, context.Canceled) {
		t.Errorf("Text() error = %v, want context.Canceled", err)
	}
}

func TestRefPath(t *testing.T) {
	tests := map[string]string{
		"Genesis 1:1":      "Genesis_1:1",
		" Pirkei Avot 2.1": "Pirkei_Avot_2.1",
		"Sanhedrin 4b":     "Sanhedrin_4b",
		"Rashi on Genesis": "Rashi_on_Genesis",
		"a?b":              "a%3Fb",
	}
	for in, want := range tests {
		if got := RefPath(in); got != want {
			t.Errorf("RefPath(%q) = %q, want %q", in, got, want)
		}
	}
}
