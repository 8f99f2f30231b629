package citation

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// citationLexer tokenizes citations. Whitespace is significant: it separates
// the work from the section and the section from the verse.
var citationLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Number", Pattern: `[0-9]+`},
	// Letters of any script, combining marks, apostrophes and Hebrew geresh/gershayim
	{Name: "Word", Pattern: `[\p{L}\p{M}'\x{2019}\x{05F3}\x{05F4}]+`},
	{Name: "Colon", Pattern: `:`},
	{Name: "Dot", Pattern: `\.`},
	{Name: "Comma", Pattern: `,`},
	{Name: "Dash", Pattern: `-`},
	{Name: "Whitespace", Pattern: `\s+`},
	// Anything else is lexed so the grammar can report where it went wrong
	{Name: "Other", Pattern: `.`},
})

type kind int

const (
	kindNumber kind = iota
	kindWord
	kindColon
	kindDot
	kindComma
	kindDash
	kindSpace
	kindOther
)

var kindsBySymbol = map[string]kind{
	"Number":     kindNumber,
	"Word":       kindWord,
	"Colon":      kindColon,
	"Dot":        kindDot,
	"Comma":      kindComma,
	"Dash":       kindDash,
	"Whitespace": kindSpace,
	"Other":      kindOther,
}

// tokenKinds maps participle token types onto the grammar's kinds.
var tokenKinds = func() map[lexer.TokenType]kind {
	m := make(map[lexer.TokenType]kind, len(kindsBySymbol))
	for name, tt := range citationLexer.Symbols() {
		if k, ok := kindsBySymbol[name]; ok {
			m[tt] = k
		}
	}
	return m
}()

type token struct {
	kind   kind
	text   string
	offset int
}

// tokenize lexes a normalised citation. On failure it returns the fragment
// of the input where lexing stopped.
func tokenize(input string) ([]token, string, error) {
	lex, err := citationLexer.Lex("", strings.NewReader(input))
	if err != nil {
		return nil, input, err
	}

	raw, err := lexer.ConsumeAll(lex)
	if err != nil {
		fragment := input
		var lexErr *lexer.Error
		if stderrors.As(err, &lexErr) && lexErr.Pos.Offset < len(input) {
			fragment = input[lexErr.Pos.Offset:]
		}
		return nil, fragment, err
	}

	tokens := make([]token, 0, len(raw))
	for _, t := range raw {
		if t.EOF() {
			break
		}
		k, ok := tokenKinds[t.Type]
		if !ok {
			return nil, t.Value, &lexer.Error{Msg: fmt.Sprintf("unknown token %q", t.Value), Pos: t.Pos}
		}
		tokens = append(tokens, token{kind: k, text: t.Value, offset: t.Pos.Offset})
	}
	return tokens, "", nil
}
