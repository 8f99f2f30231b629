// Package sefaria is a small client for the public Sefaria API.
package sefaria

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/FocuswithJustin/sefer/core/errors"
	"github.com/FocuswithJustin/sefer/internal/logging"
	"github.com/FocuswithJustin/sefer/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxSearchSize bounds the size of a search request.
const MaxSearchSize = 500

// maxErrorBody is how much of a failed response body is kept in errors.
const maxErrorBody = 4096

// Cache stores raw response bodies. *store.Store satisfies it.
type Cache interface {
	Get(key string, ttl time.Duration) ([]byte, bool, error)
	Put(key, ref string, body []byte) error
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Cache     Cache         // nil disables caching
	CacheTTL  time.Duration // 0 keeps entries forever
}

// Client talks to the Sefaria API. Nothing is retried.
type Client struct {
	base  string
	ua    string
	hc    *http.Client
	cache Cache
	ttl   time.Duration
}

// NewClient creates a client.
func NewClient(opts Options) *Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "sefer"
	}
	return &Client{
		base:  strings.TrimRight(opts.BaseURL, "/"),
		ua:    ua,
		hc:    &http.Client{Timeout: opts.Timeout, Transport: tr},
		cache: opts.Cache,
		ttl:   opts.CacheTTL,
	}
}

// TextOptions selects text versions.
type TextOptions struct {
	EnglishVersion string // "ven"
	HebrewVersion  string // "vhe"
}

// RefPath converts a reference to its URL path form: spaces become
// underscores and the rest is escaped.
func RefPath(ref string) string {
	return url.PathEscape(strings.ReplaceAll(strings.TrimSpace(ref), " ", "_"))
}

// Text fetches the passage named by ref.
func (c *Client) Text(ctx context.Context, ref string, opts TextOptions) (*TextResponse, error) {
	q := url.Values{}
	q.Set("commentary", "0")
	q.Set("context", "0")
	if opts.EnglishVersion != "" {
		q.Set("ven", opts.EnglishVersion)
	}
	if opts.HebrewVersion != "" {
		q.Set("vhe", opts.HebrewVersion)
	}
	u := c.base + "/api/texts/" + RefPath(ref) + "?" + q.Encode()

	body, err := c.fetch(ctx, http.MethodGet, u, ref, nil)
	if err != nil {
		return nil, err
	}
	var resp TextResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(errors.ErrUnexpectedShape, "decode text %s: %v", ref, err)
	}
	if resp.Error != "" {
		return nil, notFound("text", ref, resp.Error)
	}
	return &resp, nil
}

// Search runs a full-text search. size must be within 1..MaxSearchSize.
func (c *Client) Search(ctx context.Context, query string, size int) (*SearchResult, error) {
	if size < 1 || size > MaxSearchSize {
		return nil, errors.NewValidation("size", fmt.Sprintf("must be between 1 and %d, got %d", MaxSearchSize, size))
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.NewValidation("query", "must not be empty")
	}

	payload, err := json.Marshal(SearchRequest{Query: query, Type: "text", Field: "exact", Size: size})
	if err != nil {
		return nil, errors.Wrap(err, "encode search")
	}
	u := c.base + "/api/search-wrapper"

	body, err := c.fetch(ctx, http.MethodPost, u, "search:"+query, payload)
	if err != nil {
		return nil, err
	}
	var resp SearchResult
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrapf(errors.ErrUnexpectedShape, "decode search: %v", err)
	}
	return &resp, nil
}

// Shape fetches the structure of a book.
func (c *Client) Shape(ctx context.Context, book string) ([]ShapeSection, error) {
	u := c.base + "/api/shape/" + RefPath(book)
	body, err := c.fetch(ctx, http.MethodGet, u, "shape:"+book, nil)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var e apiError
		if err := json.Unmarshal(trimmed, &e); err == nil && e.Error != "" {
			return nil, notFound("book", book, e.Error)
		}
		var one ShapeSection
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, errors.Wrapf(errors.ErrUnexpectedShape, "decode shape %s: %v", book, err)
		}
		return []ShapeSection{one}, nil
	}

	var sections []ShapeSection
	if err := json.Unmarshal(trimmed, &sections); err != nil {
		return nil, errors.Wrapf(errors.ErrUnexpectedShape, "decode shape %s: %v", book, err)
	}
	if len(sections) == 0 {
		return nil, errors.NewNotFound("book", book)
	}
	return sections, nil
}

// Progress is called while a download advances. total is -1 when unknown.
type Progress func(read, total int64)

// Index streams the table of contents into w and returns the bytes written.
func (c *Client) Index(ctx context.Context, w io.Writer, progress Progress) (int64, error) {
	u := c.base + "/api/index/"
	res, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	src := io.Reader(res.Body)
	if progress != nil {
		src = &progressReader{r: res.Body, total: res.ContentLength, fn: progress}
	}
	n, err := io.Copy(w, src)
	if err != nil {
		return n, errors.NewIO("download", u, err)
	}
	return n, nil
}

// fetch returns the response body for a request, consulting the cache first.
func (c *Client) fetch(ctx context.Context, method, u, ref string, payload []byte) ([]byte, error) {
	key := store.Key(method, u, payload)
	if c.cache != nil {
		if body, ok, err := c.cache.Get(key, c.ttl); err != nil {
			logging.WarnContext(ctx, "cache read failed", "ref", ref, "error", err)
		} else if ok {
			return body, nil
		}
	}

	res, err := c.do(ctx, method, u, payload)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.NewIO("read", u, err)
	}

	if c.cache != nil && !isAPIError(body) {
		if err := c.cache.Put(key, ref, body); err != nil {
			logging.WarnContext(ctx, "cache write failed", "ref", ref, "error", err)
		}
	}
	return body, nil
}

// do sends a request and fails on non-2xx statuses.
func (c *Client) do(ctx context.Context, method, u string, payload []byte) (*http.Response, error) {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, errors.NewValidation("url", err.Error())
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.ua)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %w", method, u, errors.ErrUnavailable, err)
	}
	logging.DebugContext(ctx, "sefaria request", "method", method, "url", u,
		"status", res.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if res.StatusCode < 200 || res.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		res.Body.Close()
		return nil, &errors.HTTPError{Method: method, URL: u, StatusCode: res.StatusCode, Body: string(b)}
	}
	return res, nil
}

func isAPIError(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var e apiError
	return json.Unmarshal(trimmed, &e) == nil && e.Error != ""
}

func notFound(resource, id, msg string) error {
	nf := errors.NewNotFound(resource, id)
	return fmt.Errorf("%w: %s", nf, msg)
}

type progressReader struct {
	r     io.Reader
	read  int64
	total int64
	fn    Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	p.fn(p.read, p.total)
	return n, err
}

// UserAgent builds the User-Agent header value for a version string.
func UserAgent(version string) string {
	if version == "" {
		return "sefer"
	}
	return "sefer/" + version
}
