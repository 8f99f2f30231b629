package sefaria

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/FocuswithJustin/sefer/core/errors"
)

// TextResponse is the subset of /api/texts we consume.
type TextResponse struct {
	Ref          string              `json:"ref"`
	HeRef        string              `json:"heRef"`
	SectionRef   string              `json:"sectionRef"`
	Type         string              `json:"type"`
	Book         string              `json:"book"`
	Text         jsoniter.RawMessage `json:"text"`
	He           jsoniter.RawMessage `json:"he"`
	SpanningRefs []string            `json:"spanningRefs"`
	IsSpanning   bool                `json:"isSpanning"`
	Error        string              `json:"error,omitempty"`
}

// Payload returns the raw text payload in the requested language.
func (t *TextResponse) Payload(hebrew bool) jsoniter.RawMessage {
	if hebrew {
		return t.He
	}
	return t.Text
}

// SearchRequest is the body posted to /api/search-wrapper.
type SearchRequest struct {
	Query string `json:"query"`
	Type  string `json:"type"`
	Field string `json:"field"`
	Size  int    `json:"size"`
}

// SearchResult mirrors the Elasticsearch response returned by the search wrapper.
type SearchResult struct {
	Took     int64  `json:"took"`
	TimedOut bool   `json:"timed_out"`
	Shards   Shards `json:"_shards"`
	Hits     Hits   `json:"hits"`
}

// Shards is the shard summary of a search.
type Shards struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Skipped    int64 `json:"skipped"`
	Failed     int64 `json:"failed"`
}

// Hits holds the matching documents.
type Hits struct {
	Total    HitTotal `json:"total"`
	MaxScore float64  `json:"max_score"`
	Hits     []Hit    `json:"hits"`
}

// HitTotal accepts both the bare number and the {"value": n} object forms.
type HitTotal int64

// UnmarshalJSON implements json.Unmarshaler.
func (h *HitTotal) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*h = HitTotal(n)
		return nil
	}
	var obj struct {
		Value int64 `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*h = HitTotal(obj.Value)
	return nil
}

// Hit is one search match.
type Hit struct {
	Index     string    `json:"_index"`
	ID        string    `json:"_id"`
	Score     float64   `json:"_score"`
	Source    HitSource `json:"_source"`
	Highlight Highlight `json:"highlight"`
}

// Ref returns the reference of the hit, falling back to the document id.
func (h Hit) Ref() string {
	if h.Source.Ref != "" {
		return h.Source.Ref
	}
	return h.ID
}

// HitSource carries the indexed document fields.
type HitSource struct {
	Ref     string `json:"ref"`
	HeRef   string `json:"heRef"`
	Version string `json:"version"`
	Lang    string `json:"lang"`
}

// Highlight holds the highlighted fragments of a hit.
type Highlight struct {
	Exact []string `json:"exact"`
}

// ShapeSection describes one book (or part of one) from /api/shape.
type ShapeSection struct {
	Section  string              `json:"section"`
	HeTitle  string              `json:"heTitle"`
	Title    string              `json:"title"`
	Length   int                 `json:"length"`
	Chapters jsoniter.RawMessage `json:"chapters"`
	Book     string              `json:"book"`
	HeBook   string              `json:"heBook"`
}

// Verses sums the verse counts in Chapters. Complex texts nest the counts,
// so every numeric leaf is added.
func (s ShapeSection) Verses() (int, error) {
	if len(s.Chapters) == 0 {
		return 0, nil
	}
	var v any
	if err := json.Unmarshal(s.Chapters, &v); err != nil {
		return 0, errors.Wrapf(errors.ErrUnexpectedShape, "shape %s chapters: %v", s.Title, err)
	}
	return sumLeaves(v, s.Title)
}

func sumLeaves(v any, title string) (int, error) {
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case []any:
		total := 0
		for _, e := range t {
			n, err := sumLeaves(e, title)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	case nil:
		return 0, nil
	default:
		return 0, errors.Wrapf(errors.ErrUnexpectedShape, "shape %s chapters: unexpected %T", title, v)
	}
}

type apiError struct {
	Error string `json:"error"`
}
