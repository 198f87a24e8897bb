package entry

import (
	"fmt"
	"sort"
)

// DecodeError reports a malformed, incomplete or oversized request payload.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode request: %s: %v", e.Reason, e.Err)
	}
	return "decode request: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// HandlerError wraps a failure raised by a scoring handler, including
// recovered panics.
type HandlerError struct {
	Handler string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s: %v", e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// HandlerContractError reports a handler result whose id set differs from
// the request's document ids.
type HandlerContractError struct {
	Missing []int64
	Extra   []int64
}

func (e *HandlerContractError) Error() string {
	return fmt.Sprintf("handler result violates completeness: missing=%v extra=%v", e.Missing, e.Extra)
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
