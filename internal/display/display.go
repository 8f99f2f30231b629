// Package display formats passages, search hits and book summaries for the
// terminal. Output is markdown; with colour enabled the emphasis markers are
// replaced by ANSI bold.
package display

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/FocuswithJustin/sefer/core/render"
)

const (
	ansiBold  = "\x1b[1;33m"
	ansiTitle = "\x1b[1m"
	ansiReset = "\x1b[0m"
)

var strongRe = regexp.MustCompile(`\*\*(.+?)\*\*`)

// Style controls presentation.
type Style struct {
	Color bool
}

// ColorEnabled resolves a colour mode ("auto", "always" or "never") for f.
// In auto mode colour is used when f is a terminal and NO_COLOR is unset.
func ColorEnabled(mode string, f *os.File) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" || f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (s Style) strong(text string) string {
	if s.Color {
		return ansiBold + text + ansiReset
	}
	return "**" + text + "**"
}

// inline rewrites markdown emphasis already present in converted text.
func (s Style) inline(text string) string {
	if !s.Color {
		return text
	}
	return strongRe.ReplaceAllString(text, ansiBold+"$1"+ansiReset)
}

func (s Style) heading(level int, text string) string {
	if s.Color {
		return ansiTitle + text + ansiReset
	}
	return strings.Repeat("#", level) + " " + text
}

// Title returns the passage heading "<ref> ~ <type>".
func Title(ref, kind string) string {
	if kind == "" {
		return ref
	}
	return ref + " ~ " + kind
}

// Passage writes a titled passage.
func Passage(w io.Writer, title string, lines []render.Line, st Style) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, st.heading(1, title))
	fmt.Fprintln(bw, "---")
	for _, l := range lines {
		switch l.Kind {
		case render.KindVerse:
			if l.Number > 0 {
				fmt.Fprintf(bw, "> %s %s\n", st.strong(fmt.Sprint(l.Number)), st.inline(l.Text))
			} else {
				fmt.Fprintf(bw, "> %s\n", st.inline(l.Text))
			}
		case render.KindContinuation:
			fmt.Fprintln(bw, ">")
		case render.KindTerminator:
			fmt.Fprintln(bw)
		case render.KindHeader:
			fmt.Fprintln(bw, st.heading(2, l.Text))
		}
	}
	return bw.Flush()
}

// Hit is one search result ready for display.
type Hit struct {
	Ref       string
	Fragments []string
}

// Hits writes search results, one heading per reference.
func Hits(w io.Writer, query string, total int64, hits []Hit, st Style) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, st.heading(1, fmt.Sprintf("%s ~ %s results", query, humanize.Comma(total))))
	fmt.Fprintln(bw, "---")
	for _, h := range hits {
		fmt.Fprintln(bw, st.heading(2, h.Ref))
		for _, f := range h.Fragments {
			fmt.Fprintf(bw, "> %s\n", st.inline(f))
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// Section summarises one book or part of a book.
type Section struct {
	Title    string
	Category string
	Chapters int
	Verses   int
}

// Info writes book summaries.
func Info(w io.Writer, sections []Section, st Style) error {
	bw := bufio.NewWriter(w)
	for _, s := range sections {
		fmt.Fprintf(bw, "%s ~ %s\n", st.strong(s.Title), st.strong(s.Category))
		fmt.Fprintf(bw, "Chapters: %s\n", st.strong(humanize.Comma(int64(s.Chapters))))
		fmt.Fprintf(bw, "Verses: %s\n", st.strong(humanize.Comma(int64(s.Verses))))
	}
	return bw.Flush()
}
