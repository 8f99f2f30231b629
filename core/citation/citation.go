// Package citation parses free-form text citations such as "Exodus 18:1-20:23",
// "Sanhedrin 4b" or "Pirkei_Avot_2.1" into a structured Citation.
package citation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Citation is the result of parsing a citation string.
//
// Section is empty when the input carried no section token. For a chapter
// range both sections live in the ChapterRange verse spec and Section stays
// empty. Verse is nil when the input carried no verse token.
type Citation struct {
	// Work is the cited work's name with underscores replaced by spaces.
	Work string

	// Section is the chapter or folio label ("21", "21b").
	Section string

	// Verse is one of Number, Range or ChapterRange.
	Verse VerseSpec
}

// VerseSpec is the closed set of verse specifications: Number, Range and
// ChapterRange.
type VerseSpec interface {
	fmt.Stringer
	verseSpec()
}

// Number is a single 1-based verse.
type Number struct {
	N int
}

// Range is an inclusive 1-based span of verses within one section.
type Range struct {
	Start int
	End   int
}

// ChapterRange is a span that starts in one section and ends in a later one.
type ChapterRange struct {
	StartSection int
	StartVerse   int
	EndSection   int
	EndVerse     int
}

func (Number) verseSpec()       {}
func (Range) verseSpec()        {}
func (ChapterRange) verseSpec() {}

func (n Number) String() string {
	return strconv.Itoa(n.N)
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

func (c ChapterRange) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", c.StartSection, c.StartVerse, c.EndSection, c.EndVerse)
}

// Len returns the number of verses the range covers. It is zero or negative
// for degenerate ranges.
func (r Range) Len() int {
	return r.End - r.Start + 1
}

// HasSection reports whether the citation named a section.
func (c *Citation) HasSection() bool {
	return c.Section != ""
}

// Ref returns the canonical reference string for the citation, suitable for
// a text lookup ("Exodus 1:2", "Leviticus 22:2-10", "Exodus 18:1-20:23").
func (c *Citation) Ref() string {
	var sb strings.Builder
	sb.WriteString(c.Work)

	if cr, ok := c.Verse.(ChapterRange); ok {
		sb.WriteString(" ")
		sb.WriteString(cr.String())
		return sb.String()
	}

	if c.Section != "" {
		sb.WriteString(" ")
		sb.WriteString(c.Section)
		if c.Verse != nil {
			sb.WriteString(":")
			sb.WriteString(c.Verse.String())
		}
	}

	return sb.String()
}

// SectionRef returns the reference of the whole section the citation points
// into. For a chapter range that is the starting section.
func (c *Citation) SectionRef() string {
	if cr, ok := c.Verse.(ChapterRange); ok {
		return fmt.Sprintf("%s %d", c.Work, cr.StartSection)
	}
	if c.Section == "" {
		return c.Work
	}
	return c.Work + " " + c.Section
}

// String returns the canonical reference.
func (c *Citation) String() string {
	return c.Ref()
}

// verseJSON is the wire form of a VerseSpec.
type verseJSON struct {
	Kind         string `json:"kind"`
	N            int    `json:"n,omitempty"`
	Start        int    `json:"start,omitempty"`
	End          int    `json:"end,omitempty"`
	StartSection int    `json:"start_section,omitempty"`
	StartVerse   int    `json:"start_verse,omitempty"`
	EndSection   int    `json:"end_section,omitempty"`
	EndVerse     int    `json:"end_verse,omitempty"`
}

// MarshalJSON encodes the citation with a tagged verse object.
func (c *Citation) MarshalJSON() ([]byte, error) {
	out := struct {
		Work    string     `json:"work"`
		Section string     `json:"section,omitempty"`
		Verse   *verseJSON `json:"verse,omitempty"`
		Ref     string     `json:"ref"`
	}{
		Work:    c.Work,
		Section: c.Section,
		Ref:     c.Ref(),
	}

	switch v := c.Verse.(type) {
	case Number:
		out.Verse = &verseJSON{Kind: "number", N: v.N}
	case Range:
		out.Verse = &verseJSON{Kind: "range", Start: v.Start, End: v.End}
	case ChapterRange:
		out.Verse = &verseJSON{
			Kind:         "chapter_range",
			StartSection: v.StartSection,
			StartVerse:   v.StartVerse,
			EndSection:   v.EndSection,
			EndVerse:     v.EndVerse,
		}
	}

	return json.Marshal(out)
}
