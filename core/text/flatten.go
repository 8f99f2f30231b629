// Package text normalises fetched text payloads into a flat sequence of
// verses and scans them for the marked divine name.
package text

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/FocuswithJustin/sefer/core/errors"
)

// Flatten turns a decoded JSON payload into one verse per element.
//
// Supported shapes:
//   - a string: one verse
//   - a list of strings: returned in order
//   - a list of lists of strings (a span over several sections): flattened
//     one level in source order
//
// Any other value fails with an error wrapping errors.ErrUnexpectedShape.
func Flatten(payload any) ([]string, error) {
	switch v := payload.(type) {
	case string:
		return []string{v}, nil
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	case [][]string:
		var out []string
		for _, section := range v {
			out = append(out, section...)
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, piece := range v {
			switch p := piece.(type) {
			case string:
				out = append(out, p)
			case []any:
				for j, part := range p {
					s, ok := part.(string)
					if !ok {
						return nil, &errors.ShapeError{Path: fmt.Sprintf("[%d][%d]", i, j), Kind: kindOf(part)}
					}
					out = append(out, s)
				}
			default:
				return nil, &errors.ShapeError{Path: fmt.Sprintf("[%d]", i), Kind: kindOf(piece)}
			}
		}
		return out, nil
	default:
		return nil, &errors.ShapeError{Kind: kindOf(payload)}
	}
}

// FlattenJSON decodes a raw JSON payload and flattens it.
func FlattenJSON(raw []byte) ([]string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &errors.ShapeError{Kind: "empty"}
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnexpectedShape, err)
	}
	return Flatten(payload)
}

// kindOf names the JSON kind of a decoded value.
func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64, json.Number:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	default:
		return fmt.Sprintf("%T", v)
	}
}
