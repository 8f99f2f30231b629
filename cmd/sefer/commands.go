package main

import (
	"bytes"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/FocuswithJustin/sefer/core/citation"
	"github.com/FocuswithJustin/sefer/internal/api"
	"github.com/FocuswithJustin/sefer/internal/config"
	"github.com/FocuswithJustin/sefer/internal/display"
	"github.com/FocuswithJustin/sefer/internal/htmltext"
	"github.com/FocuswithJustin/sefer/internal/logging"
	"github.com/FocuswithJustin/sefer/internal/lookup"
	"github.com/FocuswithJustin/sefer/internal/sefaria"
	"github.com/FocuswithJustin/sefer/internal/store"
	"github.com/FocuswithJustin/sefer/internal/validation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TextCmd looks up citations.
type TextCmd struct {
	Citation      []string `arg:"" help:"Citation, e.g. 'Genesis 1:1-5'; separate several with ';'"`
	Lines         bool     `short:"l" help:"Include verse numbers"`
	Hebrew        bool     `help:"Show the Hebrew text instead of English"`
	Translation   string   `help:"English version title" placeholder:"TITLE"`
	HebrewVersion string   `name:"hebrew-version" help:"Hebrew version title" placeholder:"TITLE"`
	Notes         bool     `help:"Print footnotes after each passage"`
	JSON          bool     `name:"json" help:"Print passages as JSON"`
}

// textResult is the JSON form of one lookup.
type textResult struct {
	Input   string          `json:"input"`
	Passage *lookup.Passage `json:"passage,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (c *TextCmd) Run(a *app) error {
	inputs := validation.SplitCitations(strings.Join(c.Citation, " "))
	if err := validation.ValidateBatch(inputs); err != nil {
		return err
	}

	svc := lookup.NewService(a.sefaria(), a.recorder())
	opts := lookup.Options{
		ShowNumbers: c.Lines || a.cfg.Numbers,
		Hebrew:      c.Hebrew || a.cfg.Hebrew(),
		Versions: sefaria.TextOptions{
			EnglishVersion: c.Translation,
			HebrewVersion:  c.HebrewVersion,
		},
	}
	results := svc.LookupAll(a.ctx, inputs, opts)

	failed := 0
	if c.JSON {
		out := make([]textResult, len(results))
		for i, r := range results {
			out[i] = textResult{Input: inputs[i], Passage: r.Passage}
			if r.Err != nil {
				out[i].Error = r.Err.Error()
				failed++
			}
		}
		if err := writeJSON(a.stdout, out); err != nil {
			return err
		}
	} else {
		first := true
		for _, r := range results {
			if r.Err != nil {
				a.errorf("%v", r.Err)
				failed++
				continue
			}
			if !first {
				fmt.Fprintln(a.stdout)
			}
			first = false
			p := r.Passage
			if err := display.Passage(a.stdout, display.Title(p.Title, p.Type), p.Lines, a.style); err != nil {
				return err
			}
			if c.Notes {
				for i, n := range p.Notes {
					fmt.Fprintf(a.stdout, "[%d] %s\n", i+1, n)
				}
			}
		}
	}

	if failed > 0 {
		return errReported
	}
	return nil
}

// KeywordCmd searches the library.
type KeywordCmd struct {
	Words []string `arg:"" help:"Words to search for"`
	Size  int      `short:"s" default:"50" help:"Maximum number of results (1-500)"`
}

func (c *KeywordCmd) Run(a *app) error {
	if c.Size < 1 || c.Size > sefaria.MaxSearchSize {
		return fmt.Errorf("--size must be between 1 and %d", sefaria.MaxSearchSize)
	}
	query := strings.Join(c.Words, " ")
	if err := validation.ValidateQuery(query); err != nil {
		return err
	}

	res, err := a.sefaria().Search(a.ctx, query, c.Size)
	if err != nil {
		return err
	}

	conv := htmltext.NewConverter()
	hits := make([]display.Hit, 0, len(res.Hits.Hits))
	for _, h := range res.Hits.Hits {
		frags, err := conv.ConvertAll(h.Highlight.Exact)
		if err != nil {
			return err
		}
		hits = append(hits, display.Hit{Ref: h.Ref(), Fragments: htmltext.Texts(frags)})
	}
	return display.Hits(a.stdout, query, int64(res.Hits.Total), hits, a.style)
}

// InfoCmd describes a book.
type InfoCmd struct {
	Book []string `arg:"" help:"Book title, e.g. 'Genesis'"`
}

func (c *InfoCmd) Run(a *app) error {
	book := strings.Join(c.Book, " ")
	if err := validation.ValidateCitation(book); err != nil {
		return err
	}
	shape, err := a.sefaria().Shape(a.ctx, book)
	if err != nil {
		return err
	}

	sections := make([]display.Section, 0, len(shape))
	for _, s := range shape {
		verses, err := s.Verses()
		if err != nil {
			return err
		}
		sections = append(sections, display.Section{
			Title:    s.Title,
			Category: s.Section,
			Chapters: s.Length,
			Verses:   verses,
		})
	}
	return display.Info(a.stdout, sections, a.style)
}

// ParseCmd prints a parsed citation.
type ParseCmd struct {
	Citation []string `arg:"" help:"Citation to parse"`
}

func (c *ParseCmd) Run(a *app) error {
	input := strings.Join(c.Citation, " ")
	if err := validation.ValidateCitation(input); err != nil {
		return err
	}
	cit, err := citation.Parse(input)
	if err != nil {
		return err
	}
	return writeJSON(a.stdout, api.ParseResult{Input: input, Citation: cit, SectionRef: cit.SectionRef()})
}

// writeJSON prints v indented by two spaces. Output of custom marshalers is
// compact, so the whole document is indented after encoding.
func writeJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := stdjson.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(w)
	return err
}

// SetupCmd downloads the table of contents.
type SetupCmd struct {
	Force bool `help:"Download again even if the table of contents exists"`
}

func (c *SetupCmd) Run(a *app) error {
	path := tocPath()
	if _, err := os.Stat(path); err == nil && !c.Force {
		fmt.Fprintf(a.stdout, "Table of contents already at %s\n", path)
	} else {
		n, err := c.download(a, path)
		if err != nil {
			return err
		}
		logging.InfoContext(a.ctx, "table of contents written", "path", path, "bytes", n)
		fmt.Fprintf(a.stdout, "Wrote %s (%s)\n", path, humanize.Bytes(uint64(n)))
	}

	if _, err := os.Stat(a.cfgAt); errors.Is(err, os.ErrNotExist) {
		if err := config.Save(a.cfgAt, config.Defaults()); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Wrote default config to %s\n", a.cfgAt)
	}
	return nil
}

// download streams the index into a temporary file next to path and renames
// it into place once complete.
func (c *SetupCmd) download(a *app, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".toc-*.json")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	var (
		progress *mpb.Progress
		bar      *mpb.Bar
		report   sefaria.Progress
	)
	if f, ok := a.stderr.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		progress = mpb.New(
			mpb.WithOutput(f),
			mpb.WithWidth(80),
			mpb.WithRefreshRate(180*time.Millisecond),
		)
		bar = progress.AddBar(0,
			mpb.BarFillerClearOnComplete(),
			mpb.PrependDecorators(
				decor.OnComplete(decor.Name("toc.json"), "toc.json done"),
			),
			mpb.AppendDecorators(
				decor.OnComplete(decor.CountersKibiByte("%.1f / %.1f"), ""),
			),
		)
		report = func(read, total int64) {
			if total > 0 {
				bar.SetTotal(total, false)
			} else {
				bar.SetTotal(read+1, false)
			}
			bar.SetCurrent(read)
		}
	}

	n, err := a.sefaria().Index(a.ctx, tmp, report)
	if bar != nil {
		if err != nil {
			bar.Abort(true)
		} else {
			bar.SetTotal(-1, true)
		}
		progress.Wait()
	}
	if err != nil {
		tmp.Close()
		return n, err
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}
	return n, os.Rename(tmp.Name(), path)
}

// tocPath is $XDG_DATA_HOME/sefer/toc.json, falling back to
// ~/.local/share/sefer/toc.json.
func tocPath() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "sefer", "toc.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".local", "share", "sefer", "toc.json")
	}
	return filepath.Join(home, ".local", "share", "sefer", "toc.json")
}

// CacheGroup contains payload cache operations.
type CacheGroup struct {
	Purge CachePurgeCmd `cmd:"" help:"Remove every cached payload"`
	Stats CacheStatsCmd `cmd:"" help:"Show cache size and age"`
}

type CachePurgeCmd struct{}

func (c *CachePurgeCmd) Run(a *app) error {
	st, err := store.Open(a.cfg.CacheDir)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.Purge()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Removed %s cached payloads from %s\n", humanize.Comma(n), st.Path())
	return nil
}

type CacheStatsCmd struct{}

func (c *CacheStatsCmd) Run(a *app) error {
	st, err := store.Open(a.cfg.CacheDir)
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := st.Stats()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Path:    %s\n", s.Path)
	fmt.Fprintf(a.stdout, "Driver:  %s\n", s.Driver)
	fmt.Fprintf(a.stdout, "Entries: %s\n", humanize.Comma(s.Entries))
	fmt.Fprintf(a.stdout, "Size:    %s\n", humanize.Bytes(uint64(s.CompressedBytes)))
	if s.Entries > 0 {
		fmt.Fprintf(a.stdout, "Oldest:  %s\n", humanize.Time(s.Oldest))
		fmt.Fprintf(a.stdout, "Newest:  %s\n", humanize.Time(s.Newest))
	}
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Port      int           `help:"HTTP server port" default:"8080"`
	RateLimit int           `name:"rate-limit" help:"Requests per minute per client (0 disables)" default:"120"`
	Burst     int           `help:"Rate limit burst size" default:"20"`
	Origins   []string      `help:"Allowed CORS origins" placeholder:"ORIGIN"`
	APIKey    string        `name:"api-key" env:"SEFER_API_KEY" help:"Require this X-API-Key on lookups"`
	CacheTTL  time.Duration `name:"cache-ttl" help:"Lifetime of rendered passages" default:"1h"`
}

func (c *ServeCmd) Run(a *app) error {
	cfg := api.DefaultConfig()
	cfg.Port = c.Port
	cfg.RateLimitRequests = c.RateLimit
	cfg.RateLimitBurst = c.Burst
	cfg.AllowedOrigins = c.Origins
	cfg.CacheTTL = c.CacheTTL
	cfg.Hebrew = a.cfg.Hebrew()
	cfg.Version = version
	if c.APIKey != "" {
		cfg.Auth = api.AuthConfig{Enabled: true, APIKey: c.APIKey}
	}

	srv, err := api.NewServer(cfg, lookup.NewService(a.sefaria(), a.recorder()))
	if err != nil {
		return err
	}
	return srv.ListenAndServe(a.ctx)
}

type VersionCmd struct{}

func (c *VersionCmd) Run(a *app) error {
	fmt.Fprintf(a.stdout, "sefer version %s\n", version)
	return nil
}
