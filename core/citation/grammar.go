package citation

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/FocuswithJustin/sefer/core/errors"
)

// The grammar is
//
//	total   := book (bsep tail)? END
//	tail    := chapter_range | section vsep range | section vsep number | section
//	section := Number FolioSide?
//	bsep    := (Whitespace | Comma | Dot)+
//	vsep    := Whitespace? (Colon | Dot | Comma) Whitespace? | Whitespace
//	range   := Number Whitespace? Dash Whitespace? Number
//	chapter_range := Number (Colon|Dot) Number Whitespace? Dash Whitespace? Number (Colon|Dot) Number
//
// The book absorbs everything before the tail. Tail alternatives are tried in
// the order of tailAlternatives; the first one that matches the rest of the
// input in full wins, so a chapter range is preferred over a plain
// section/verse reading of the same text.

// tail is a successful match of the part of a citation after the book.
type tail struct {
	section string
	verse   []string // raw digit captures, interpreted by build
	shape   tailShape
}

type tailShape int

const (
	shapeSection tailShape = iota
	shapeNumber
	shapeRange
	shapeChapterRange
)

type alternative struct {
	name  string
	match func(s *scanner) (tail, bool)
}

// tailAlternatives lists the tail productions in priority order.
var tailAlternatives = []alternative{
	{"chapter_range", matchChapterRange},
	{"section_verse_range", matchSectionRange},
	{"section_verse", matchSectionNumber},
	{"section", matchSection},
}

// Parse parses a citation. It fails with an error wrapping
// errors.ErrMalformed when the input does not match the grammar.
func Parse(input string) (*Citation, error) {
	normalized := normalize(input)
	if normalized == "" {
		return nil, errors.NewParse(input, "", "empty citation")
	}

	tokens, fragment, err := tokenize(normalized)
	if err != nil {
		perr := errors.NewParse(input, fragment, "unexpected character")
		perr.Err = fmt.Errorf("%w: %v", errors.ErrMalformed, err)
		return nil, perr
	}

	for _, alt := range tailAlternatives {
		// Right to left: the book is as long as the tail allows.
		for start := len(tokens) - 1; start > 0; start-- {
			if tokens[start].kind != kindNumber {
				continue
			}
			work, ok := splitBook(tokens[:start])
			if !ok {
				continue
			}
			s := &scanner{tokens: tokens[start:]}
			t, ok := alt.match(s)
			if !ok || !s.done() {
				continue
			}
			return build(work, t)
		}
	}

	if work, ok := bookText(tokens); ok {
		return &Citation{Work: work}, nil
	}

	return nil, errors.NewParse(input, offendingFragment(normalized, tokens), "does not match book [section] [verse]")
}

// MustParse is like Parse but panics on error. It is intended for tests and
// static tables.
func MustParse(input string) *Citation {
	c, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return c
}

// normalize applies NFC, treats underscores as spaces and trims the input.
func normalize(input string) string {
	s := norm.NFC.String(input)
	s = strings.ReplaceAll(s, "_", " ")
	return strings.TrimSpace(s)
}

// build converts a matched tail into a Citation. Numeric captures were
// matched as digit runs, so a conversion failure is a grammar defect.
func build(work string, t tail) (*Citation, error) {
	nums := make([]int, len(t.verse))
	for i, raw := range t.verse {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: numeric capture %q in %q: %v", errors.ErrInternal, raw, work, err)
		}
		nums[i] = n
	}

	c := &Citation{Work: work, Section: t.section}
	switch t.shape {
	case shapeNumber:
		c.Verse = Number{N: nums[0]}
	case shapeRange:
		c.Verse = Range{Start: nums[0], End: nums[1]}
	case shapeChapterRange:
		c.Verse = ChapterRange{
			StartSection: nums[0],
			StartVerse:   nums[1],
			EndSection:   nums[2],
			EndVerse:     nums[3],
		}
	}
	return c, nil
}

// splitBook separates the book from the separator run that precedes the
// tail. A period directly after the book followed by more separators is an
// abbreviation marker and stays with the book ("Ex. 3").
func splitBook(prefix []token) (string, bool) {
	j := len(prefix)
	for j > 0 && isBookSeparator(prefix[j-1].kind) {
		j--
	}
	if j == len(prefix) || j == 0 {
		return "", false
	}
	if prefix[j].kind == kindDot && j+1 < len(prefix) {
		j++
	}
	return bookText(prefix[:j])
}

func isBookSeparator(k kind) bool {
	return k == kindSpace || k == kindComma || k == kindDot
}

// bookText validates the tokens of a book name and returns its text with
// whitespace runs collapsed.
func bookText(tokens []token) (string, bool) {
	if len(tokens) == 0 {
		return "", false
	}
	if first := tokens[0].kind; first == kindComma || first == kindDot || first == kindSpace {
		return "", false
	}

	var sb strings.Builder
	hasWord := false
	for i, t := range tokens {
		switch t.kind {
		case kindWord:
			hasWord = true
			sb.WriteString(t.text)
		case kindNumber, kindComma:
			sb.WriteString(t.text)
		case kindSpace:
			sb.WriteString(" ")
		case kindDot:
			if i != len(tokens)-1 {
				return "", false
			}
			sb.WriteString(t.text)
		default:
			return "", false
		}
	}
	if !hasWord {
		return "", false
	}
	return strings.TrimSpace(sb.String()), true
}

// offendingFragment points at the first token that cannot belong to a book
// name, or the whole input when there is none.
func offendingFragment(input string, tokens []token) string {
	for i, t := range tokens {
		switch t.kind {
		case kindColon, kindDash, kindOther:
			return input[t.offset:]
		case kindDot:
			if i != len(tokens)-1 {
				return input[t.offset:]
			}
		}
	}
	return input
}

// scanner walks the tokens of a candidate tail.
type scanner struct {
	tokens []token
	pos    int
}

func (s *scanner) done() bool {
	return s.pos == len(s.tokens)
}

func (s *scanner) peek() (token, bool) {
	if s.done() {
		return token{}, false
	}
	return s.tokens[s.pos], true
}

func (s *scanner) accept(k kind) (string, bool) {
	t, ok := s.peek()
	if !ok || t.kind != k {
		return "", false
	}
	s.pos++
	return t.text, true
}

func (s *scanner) skipSpace() bool {
	_, ok := s.accept(kindSpace)
	return ok
}

// section matches digits with an optional folio side letter.
func (s *scanner) section() (string, bool) {
	digits, ok := s.accept(kindNumber)
	if !ok {
		return "", false
	}
	if t, ok := s.peek(); ok && t.kind == kindWord && isFolioSide(t.text) {
		s.pos++
		return digits + t.text, true
	}
	return digits, true
}

func isFolioSide(s string) bool {
	return len(s) == 1 && s[0] >= 'a' && s[0] <= 'z'
}

// verseSeparator matches vsep.
func (s *scanner) verseSeparator() bool {
	start := s.pos
	spaced := s.skipSpace()
	if t, ok := s.peek(); ok && (t.kind == kindColon || t.kind == kindDot || t.kind == kindComma) {
		s.pos++
		s.skipSpace()
		return true
	}
	if spaced {
		return true
	}
	s.pos = start
	return false
}

// chapterSeparator matches the separator inside a chapter range endpoint.
func (s *scanner) chapterSeparator() bool {
	if _, ok := s.accept(kindColon); ok {
		return true
	}
	_, ok := s.accept(kindDot)
	return ok
}

func (s *scanner) dash() bool {
	start := s.pos
	s.skipSpace()
	if _, ok := s.accept(kindDash); !ok {
		s.pos = start
		return false
	}
	s.skipSpace()
	return true
}

// numberRange matches "a-b" and returns both operands.
func (s *scanner) numberRange() (string, string, bool) {
	first, ok := s.accept(kindNumber)
	if !ok || !s.dash() {
		return "", "", false
	}
	last, ok := s.accept(kindNumber)
	if !ok {
		return "", "", false
	}
	return first, last, true
}

func matchChapterRange(s *scanner) (tail, bool) {
	startSection, ok := s.accept(kindNumber)
	if !ok || !s.chapterSeparator() {
		return tail{}, false
	}
	startVerse, ok := s.accept(kindNumber)
	if !ok || !s.dash() {
		return tail{}, false
	}
	endSection, ok := s.accept(kindNumber)
	if !ok || !s.chapterSeparator() {
		return tail{}, false
	}
	endVerse, ok := s.accept(kindNumber)
	if !ok {
		return tail{}, false
	}
	if compareDigits(endSection, startSection) <= 0 {
		return tail{}, false
	}
	return tail{
		verse: []string{startSection, startVerse, endSection, endVerse},
		shape: shapeChapterRange,
	}, true
}

func matchSectionRange(s *scanner) (tail, bool) {
	section, ok := s.section()
	if !ok || !s.verseSeparator() {
		return tail{}, false
	}
	first, last, ok := s.numberRange()
	if !ok {
		return tail{}, false
	}
	return tail{section: section, verse: []string{first, last}, shape: shapeRange}, true
}

func matchSectionNumber(s *scanner) (tail, bool) {
	section, ok := s.section()
	if !ok || !s.verseSeparator() {
		return tail{}, false
	}
	n, ok := s.accept(kindNumber)
	if !ok {
		return tail{}, false
	}
	return tail{section: section, verse: []string{n}, shape: shapeNumber}, true
}

func matchSection(s *scanner) (tail, bool) {
	section, ok := s.section()
	if !ok {
		return tail{}, false
	}
	return tail{section: section, shape: shapeSection}, true
}

// compareDigits compares two unsigned decimal strings numerically without
// converting them, so arbitrarily long inputs cannot overflow.
func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
