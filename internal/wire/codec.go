package wire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gaspardpetit/qscore/internal/entry"
)

// Entry is the JSON form of a text entry. A nil Parsed means no parsed form.
type Entry struct {
	ID     *int64    `json:"id"`
	Text   string    `json:"text"`
	Parsed *[]string `json:"parsed,omitempty"`
}

// RequestBody is the JSON form of a scoring request.
type RequestBody struct {
	Query     *Entry  `json:"query"`
	Documents []Entry `json:"documents"`
}

// ResponseBody carries either scores or an error.
type ResponseBody struct {
	Scores map[int64][]float64 `json:"scores,omitempty"`
	Error  *RemoteError        `json:"error,omitempty"`
}

// Error codes carried in error responses.
const (
	CodeDecode      = "decode_error"
	CodeHandler     = "handler_error"
	CodeContract    = "handler_contract_error"
	CodeCancelled   = "cancelled"
	CodeUnavailable = "unavailable"
	CodeInternal    = "internal_error"
)

// ErrUnavailable is returned for requests refused while the server drains.
var ErrUnavailable = errors.New("server is draining")

// RemoteError is an error response as seen by a client.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string { return e.Code + ": " + e.Message }

// ErrorCode maps a server-side error to its wire code.
func ErrorCode(err error) string {
	var (
		de *entry.DecodeError
		he *entry.HandlerError
		ce *entry.HandlerContractError
	)
	switch {
	case errors.As(err, &de):
		return CodeDecode
	case errors.As(err, &ce):
		return CodeContract
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	case errors.As(err, &he):
		return CodeHandler
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

func toWire(e entry.TextEntry) Entry {
	id := e.ID()
	we := Entry{ID: &id, Text: e.Text()}
	if e.HasParsed() {
		p := e.Parsed()
		we.Parsed = &p
	}
	return we
}

func fromWire(we Entry, what string) (entry.TextEntry, error) {
	if we.ID == nil {
		return entry.TextEntry{}, &entry.DecodeError{Reason: what + ": missing id"}
	}
	if we.Parsed != nil {
		return entry.NewParsed(*we.ID, we.Text, *we.Parsed), nil
	}
	return entry.New(*we.ID, we.Text), nil
}

// EncodeRequest renders req as a frame body.
func EncodeRequest(req entry.Request) ([]byte, error) {
	q := toWire(req.Query)
	body := RequestBody{Query: &q, Documents: make([]Entry, len(req.Documents))}
	for i, d := range req.Documents {
		body.Documents[i] = toWire(d)
	}
	return json.Marshal(body)
}

// DecodeRequest parses a frame body into a request. All failures are
// reported as *entry.DecodeError.
func DecodeRequest(b []byte) (entry.Request, error) {
	var body RequestBody
	if err := json.Unmarshal(b, &body); err != nil {
		return entry.Request{}, &entry.DecodeError{Reason: "malformed json", Err: err}
	}
	return body.Request()
}

// Request converts the JSON form into a validated request.
func (body RequestBody) Request() (entry.Request, error) {
	if body.Query == nil {
		return entry.Request{}, &entry.DecodeError{Reason: "missing query"}
	}
	q, err := fromWire(*body.Query, "query")
	if err != nil {
		return entry.Request{}, err
	}
	docs := make([]entry.TextEntry, len(body.Documents))
	for i, wd := range body.Documents {
		d, err := fromWire(wd, fmt.Sprintf("document %d", i))
		if err != nil {
			return entry.Request{}, err
		}
		docs[i] = d
	}
	return entry.NewRequest(q, docs)
}

// EncodeScores renders a successful response body.
func EncodeScores(s entry.Scores) ([]byte, error) {
	body := ResponseBody{Scores: make(map[int64][]float64, len(s))}
	for id, v := range s {
		body.Scores[id] = []float64(v)
	}
	return json.Marshal(body)
}

// EncodeError renders an error response body for err.
func EncodeError(err error) []byte {
	b, mErr := json.Marshal(ResponseBody{Error: &RemoteError{Code: ErrorCode(err), Message: err.Error()}})
	if mErr != nil {
		return []byte(`{"error":{"code":"internal_error","message":"encode error response"}}`)
	}
	return b
}

// DecodeResponse parses a response body. An error response is returned as
// a *RemoteError.
func DecodeResponse(b []byte) (entry.Scores, error) {
	var body ResponseBody
	if err := json.Unmarshal(b, &body); err != nil {
		return nil, &entry.DecodeError{Reason: "malformed response", Err: err}
	}
	if body.Error != nil {
		return nil, body.Error
	}
	s := make(entry.Scores, len(body.Scores))
	for id, v := range body.Scores {
		s[id] = entry.ScoreVector(v)
	}
	return s, nil
}
