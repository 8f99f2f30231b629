// Package htmltext turns the HTML fragments carried in API payloads into
// terminal-friendly markdown text, lifting footnotes out of the verse body.
package htmltext

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// footnoteExpr selects footnote bodies in a well-formed fragment.
var footnoteExpr = xpath.MustCompile(`//i[contains(concat(' ', normalize-space(@class), ' '), ' footnote ')]`)

var (
	voidBreakRe      = regexp.MustCompile(`(?i)<br\s*>`)
	excessiveLinesRe = regexp.MustCompile(`\n{3,}`)
)

// Fragment is one converted unit of text.
type Fragment struct {
	Text  string
	Notes []string
}

// Converter converts HTML fragments to markdown.
type Converter struct {
	converter *md.Converter
}

// NewConverter creates a converter that drops footnote markers and bodies
// from the converted text.
func NewConverter() *Converter {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	converter.AddRules(
		md.Rule{
			Filter: []string{"sup", "i"},
			Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
				if selec.HasClass("footnote-marker") || selec.HasClass("footnote") {
					return md.String("")
				}
				return nil
			},
		},
	)
	return &Converter{converter: converter}
}

// Convert converts one fragment. Text without markup is returned unchanged.
func (c *Converter) Convert(fragment string) (Fragment, error) {
	if !strings.ContainsAny(fragment, "<&") {
		return Fragment{Text: fragment}, nil
	}

	text, err := c.converter.ConvertString(fragment)
	if err != nil {
		return Fragment{}, err
	}
	text = excessiveLinesRe.ReplaceAllString(strings.TrimSpace(text), "\n\n")

	return Fragment{Text: text, Notes: footnotes(fragment)}, nil
}

// ConvertAll converts every unit, keeping order.
func (c *Converter) ConvertAll(units []string) ([]Fragment, error) {
	out := make([]Fragment, len(units))
	for i, u := range units {
		f, err := c.Convert(u)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// Texts returns the Text of each fragment.
func Texts(frags []Fragment) []string {
	out := make([]string, len(frags))
	for i, f := range frags {
		out[i] = f.Text
	}
	return out
}

// footnotes returns the footnote bodies of fragment. Fragments that are not
// well-formed XML yield none.
func footnotes(fragment string) []string {
	if !strings.Contains(fragment, "footnote") {
		return nil
	}
	src := voidBreakRe.ReplaceAllString(fragment, "<br/>")
	src = strings.ReplaceAll(src, "&nbsp;", "&#160;")

	doc, err := xmlquery.Parse(strings.NewReader("<root>" + src + "</root>"))
	if err != nil {
		return nil
	}

	var notes []string
	for _, n := range xmlquery.QuerySelectorAll(doc, footnoteExpr) {
		if note := strings.Join(strings.Fields(n.InnerText()), " "); note != "" {
			notes = append(notes, note)
		}
	}
	return notes
}
