// Package render maps a verse specification and a flat sequence of fetched
// verses onto numbered display lines.
package render

import (
	"strconv"

	"github.com/FocuswithJustin/sefer/core/citation"
	"github.com/FocuswithJustin/sefer/core/errors"
)

// Kind classifies a display line.
type Kind int

const (
	// KindVerse is a verse, numbered when Line.Number > 0.
	KindVerse Kind = iota
	// KindContinuation is the blank marker between two verses of a span.
	KindContinuation
	// KindTerminator closes a span.
	KindTerminator
	// KindHeader announces the start of the next section in a chapter range.
	KindHeader
)

func (k Kind) String() string {
	switch k {
	case KindVerse:
		return "verse"
	case KindContinuation:
		return "continuation"
	case KindTerminator:
		return "terminator"
	case KindHeader:
		return "header"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Line is one display line.
type Line struct {
	Kind   Kind   `json:"kind"`
	Number int    `json:"number,omitempty"` // 0 when unnumbered
	Text   string `json:"text,omitempty"`   // verse text or header label
}

// String returns the plain form of the line: "n text" for numbered verses,
// the text for unnumbered verses and headers, and "" for markers.
func (l Line) String() string {
	switch l.Kind {
	case KindVerse:
		if l.Number > 0 {
			return strconv.Itoa(l.Number) + " " + l.Text
		}
		return l.Text
	case KindHeader:
		return l.Text
	default:
		return ""
	}
}

// Options controls rendering.
type Options struct {
	// ShowNumbers labels verse lines with their verse number.
	ShowNumbers bool

	// BoundaryLabel is printed as the header where a chapter range crosses
	// into its second section, typically that section's full reference.
	BoundaryLabel string
}

// DefaultRange is the spec a caller renders when the citation named no
// verses: the whole fetched section, numbered from 1.
func DefaultRange(n int) citation.Range {
	return citation.Range{Start: 1, End: n}
}

// Render produces the display lines for spec over text.
//
// For a Range the text must hold exactly the verses Start..End. For a
// ChapterRange it must hold the rest of the first section from StartVerse
// followed by the second section up to EndVerse.
func Render(spec citation.VerseSpec, text []string, opts Options) ([]Line, error) {
	if len(text) == 0 {
		return nil, errors.NewRange(errors.ErrEmptyInput, 0, 0)
	}

	switch s := spec.(type) {
	case citation.Number:
		return renderNumber(s, text, opts)
	case citation.Range:
		return renderRange(s, text, opts)
	case citation.ChapterRange:
		return renderChapterRange(s, text, opts)
	default:
		return nil, errors.Wrapf(errors.ErrInternal, "render: unknown verse spec %T", spec)
	}
}

func renderNumber(s citation.Number, text []string, opts Options) ([]Line, error) {
	if s.N < 1 || s.N > len(text) {
		return nil, errors.NewRange(errors.ErrOutOfRange, s.N, len(text))
	}
	return []Line{verse(s.N, text[s.N-1], opts)}, nil
}

func renderRange(s citation.Range, text []string, opts Options) ([]Line, error) {
	if s.Start > s.End {
		return []Line{}, nil
	}
	if s.Len() != len(text) {
		return nil, errors.NewRange(errors.ErrLengthMismatch, s.Len(), len(text))
	}

	lines := make([]Line, 0, 2*len(text))
	for idx, unit := range text {
		lines = append(lines, verse(idx+s.Start, unit, opts))
		lines = append(lines, separator(idx, len(text)))
	}
	return lines, nil
}

// renderChapterRange numbers the first section from StartVerse and restarts
// at 1 where the last EndVerse elements begin.
//
// TODO: spans over three or more sections need per-section lengths (from the
// shape endpoint) to place every boundary; today only one header is emitted.
func renderChapterRange(s citation.ChapterRange, text []string, opts Options) ([]Line, error) {
	boundary := len(text) - s.EndVerse
	if s.EndVerse < 1 || boundary < 1 {
		return nil, errors.NewRange(errors.ErrLengthMismatch, s.EndVerse+1, len(text))
	}

	lines := make([]Line, 0, 2*len(text)+1)
	for idx, unit := range text {
		n := idx + s.StartVerse
		if idx >= boundary {
			n = idx - boundary + 1
		}
		if idx == boundary {
			lines = append(lines, Line{Kind: KindHeader, Text: opts.BoundaryLabel})
		}
		lines = append(lines, verse(n, unit, opts))
		lines = append(lines, separator(idx, len(text)))
	}
	return lines, nil
}

func verse(n int, unit string, opts Options) Line {
	l := Line{Kind: KindVerse, Text: unit}
	if opts.ShowNumbers {
		l.Number = n
	}
	return l
}

func separator(idx, total int) Line {
	if idx == total-1 {
		return Line{Kind: KindTerminator}
	}
	return Line{Kind: KindContinuation}
}

// Strings returns the plain form of each line.
func Strings(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.String()
	}
	return out
}
