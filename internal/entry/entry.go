// Package entry holds the values exchanged between clients, the server and
// scoring handlers: text entries, requests and per-document scores.
package entry

import "fmt"

// TextEntry is a query or a candidate document. It is immutable once built;
// use WithParsed to derive a copy carrying a parsed form.
type TextEntry struct {
	id     int64
	text   string
	parsed []string
}

// New returns an entry without a parsed form.
func New(id int64, text string) TextEntry {
	return TextEntry{id: id, text: text}
}

// NewParsed returns an entry with the given parsed form. The slice is copied.
func NewParsed(id int64, text string, parsed []string) TextEntry {
	return TextEntry{id: id, text: text, parsed: cloneTerms(parsed)}
}

func (e TextEntry) ID() int64 { return e.id }

func (e TextEntry) Text() string { return e.text }

// HasParsed reports whether a parsed form is attached, even an empty one.
func (e TextEntry) HasParsed() bool { return e.parsed != nil }

// Parsed returns a copy of the parsed form, or nil when absent.
func (e TextEntry) Parsed() []string { return cloneTerms(e.parsed) }

// WithParsed returns a copy of e carrying the given parsed form.
func (e TextEntry) WithParsed(parsed []string) TextEntry {
	return NewParsed(e.id, e.text, parsed)
}

// String renders the entry the way handlers log it: the parsed form when
// present, the raw text otherwise.
func (e TextEntry) String() string {
	if e.parsed != nil {
		return fmt.Sprintf("%d:%v", e.id, e.parsed)
	}
	return fmt.Sprintf("%d:%q", e.id, e.text)
}

func cloneTerms(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// ScoreVector is the ordered list of scores assigned to one document.
type ScoreVector []float64

// Scores maps document ids to their score vectors.
type Scores map[int64]ScoreVector

// Request is one query with its candidate documents. Document ids are unique.
type Request struct {
	Query     TextEntry
	Documents []TextEntry
}

// NewRequest builds a request and rejects duplicate document ids.
func NewRequest(query TextEntry, docs []TextEntry) (Request, error) {
	seen := make(map[int64]struct{}, len(docs))
	for _, d := range docs {
		if _, dup := seen[d.ID()]; dup {
			return Request{}, &DecodeError{Reason: fmt.Sprintf("duplicate document id %d", d.ID())}
		}
		seen[d.ID()] = struct{}{}
	}
	return Request{Query: query, Documents: docs}, nil
}

// DocumentIDs returns the document ids in request order.
func (r Request) DocumentIDs() []int64 {
	ids := make([]int64, len(r.Documents))
	for i, d := range r.Documents {
		ids[i] = d.ID()
	}
	return ids
}

// CheckComplete verifies that s holds exactly one vector per document of r.
func (r Request) CheckComplete(s Scores) error {
	var missing, extra []int64
	want := make(map[int64]struct{}, len(r.Documents))
	for _, d := range r.Documents {
		want[d.ID()] = struct{}{}
		if _, ok := s[d.ID()]; !ok {
			missing = append(missing, d.ID())
		}
	}
	for id := range s {
		if _, ok := want[id]; !ok {
			extra = append(extra, id)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sortIDs(extra)
	return &HandlerContractError{Missing: missing, Extra: extra}
}
