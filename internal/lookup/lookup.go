// Package lookup resolves a citation into a rendered passage: it parses the
// input, decides what to fetch, flattens and converts the payload, then
// renders the requested span.
package lookup

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/sefer/core/citation"
	"github.com/FocuswithJustin/sefer/core/errors"
	"github.com/FocuswithJustin/sefer/core/render"
	"github.com/FocuswithJustin/sefer/core/text"
	"github.com/FocuswithJustin/sefer/internal/htmltext"
	"github.com/FocuswithJustin/sefer/internal/logging"
	"github.com/FocuswithJustin/sefer/internal/sefaria"
	"github.com/FocuswithJustin/sefer/internal/validation"
)

// maxConcurrent bounds the fetches of LookupAll.
const maxConcurrent = 4

// Fetcher fetches passages. *sefaria.Client satisfies it.
type Fetcher interface {
	Text(ctx context.Context, ref string, opts sefaria.TextOptions) (*sefaria.TextResponse, error)
}

// Recorder keeps passages carrying the marked term. *logging.FlagLog satisfies it.
type Recorder interface {
	Record(ref string, lines []string) error
}

// Options controls a lookup.
type Options struct {
	ShowNumbers bool
	Hebrew      bool
	Versions    sefaria.TextOptions
}

// Passage is a rendered lookup result.
type Passage struct {
	Input    string             `json:"input"`
	Citation *citation.Citation `json:"citation"`
	Ref      string             `json:"ref"`
	Title    string             `json:"title"`
	Type     string             `json:"type,omitempty"`
	Lines    []render.Line      `json:"lines"`
	Notes    []string           `json:"notes,omitempty"`
	Flagged  bool               `json:"flagged"`
}

// Strings returns the plain display form of the passage lines.
func (p *Passage) Strings() []string {
	return render.Strings(p.Lines)
}

// Plan describes the fetch and render steps for a citation.
type Plan struct {
	// Query is the reference to fetch.
	Query string
	// Spec is the verse spec to render; nil means the whole fetched text.
	Spec citation.VerseSpec
	// FallbackLabel is the boundary header when the payload carries no
	// spanning references.
	FallbackLabel string
}

// PlanFor decides what to fetch for c. A single verse fetches its whole
// section, since Number(n) selects the n-th element of that section.
func PlanFor(c *citation.Citation) Plan {
	switch v := c.Verse.(type) {
	case citation.Number:
		return Plan{Query: c.SectionRef(), Spec: v}
	case citation.Range:
		return Plan{Query: c.Ref(), Spec: v}
	case citation.ChapterRange:
		return Plan{Query: c.Ref(), Spec: v, FallbackLabel: fmt.Sprintf("%s %d", c.Work, v.EndSection)}
	default:
		return Plan{Query: c.Ref()}
	}
}

// Service performs lookups.
type Service struct {
	fetcher   Fetcher
	converter *htmltext.Converter
	flags     Recorder
}

// NewService creates a lookup service. flags may be nil.
func NewService(f Fetcher, flags Recorder) *Service {
	return &Service{fetcher: f, converter: htmltext.NewConverter(), flags: flags}
}

// Lookup resolves one citation.
func (s *Service) Lookup(ctx context.Context, input string, opts Options) (*Passage, error) {
	start := time.Now()
	if err := validation.ValidateCitation(input); err != nil {
		return nil, err
	}
	c, err := citation.Parse(input)
	if err != nil {
		return nil, err
	}
	plan := PlanFor(c)

	resp, err := s.fetcher.Text(ctx, plan.Query, opts.Versions)
	if err != nil {
		return nil, err
	}
	units, err := text.FlattenJSON(resp.Payload(opts.Hebrew))
	if err != nil {
		return nil, errors.Wrapf(err, "payload of %s", plan.Query)
	}

	frags, err := s.converter.ConvertAll(units)
	if err != nil {
		return nil, errors.Wrapf(err, "convert %s", plan.Query)
	}

	spec := plan.Spec
	if spec == nil {
		spec = render.DefaultRange(len(units))
	}
	var label string
	if _, ok := spec.(citation.ChapterRange); ok {
		label = boundaryLabel(resp, plan)
	}

	lines, err := render.Render(spec, htmltext.Texts(frags), render.Options{
		ShowNumbers:   opts.ShowNumbers,
		BoundaryLabel: label,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "render %s", input)
	}

	flagged := text.ContainsMarkedTerm(selected(units, spec))

	p := &Passage{
		Input:    input,
		Citation: c,
		Ref:      firstNonEmpty(resp.Ref, plan.Query),
		Title:    firstNonEmpty(resp.SectionRef, resp.Ref, plan.Query),
		Type:     resp.Type,
		Lines:    lines,
		Notes:    notes(selected(frags, spec)),
		Flagged:  flagged,
	}

	if flagged && s.flags != nil {
		if err := s.flags.Record(p.Ref, p.Strings()); err != nil {
			logging.WarnContext(ctx, "flag log record failed", "ref", p.Ref, "error", err)
		}
	}
	logging.Lookup(ctx, input, p.Ref, countVerses(lines), time.Since(start), "flagged", flagged)
	return p, nil
}

// Result pairs a lookup with its error.
type Result struct {
	Passage *Passage
	Err     error
}

// LookupAll resolves several citations concurrently. Results keep the input
// order and a failure in one input does not affect the others.
func (s *Service) LookupAll(ctx context.Context, inputs []string, opts Options) []Result {
	results := make([]Result, len(inputs))
	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	for i, in := range inputs {
		g.Go(func() error {
			p, err := s.Lookup(ctx, in, opts)
			results[i] = Result{Passage: p, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// boundaryLabel names the section a chapter range crosses into: the last
// spanning reference when the payload has them.
func boundaryLabel(resp *sefaria.TextResponse, plan Plan) string {
	if n := len(resp.SpanningRefs); n > 1 {
		return resp.SpanningRefs[n-1]
	}
	return plan.FallbackLabel
}

// selected returns the units a spec renders: one element for a Number, all
// of them otherwise.
func selected[T any](units []T, spec citation.VerseSpec) []T {
	if n, ok := spec.(citation.Number); ok {
		if n.N >= 1 && n.N <= len(units) {
			return units[n.N-1 : n.N]
		}
		return nil
	}
	return units
}

func notes(frags []htmltext.Fragment) []string {
	var out []string
	for _, f := range frags {
		out = append(out, f.Notes...)
	}
	return out
}

func countVerses(lines []render.Line) int {
	n := 0
	for _, l := range lines {
		if l.Kind == render.KindVerse {
			n++
		}
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
