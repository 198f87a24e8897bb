// Package wire implements the qscore framing: a 4-byte big-endian length
// followed by a JSON body. Request and response bodies round-trip exactly.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/gaspardpetit/qscore/internal/entry"
)

// DefaultMaxFrameBytes bounds a single frame body.
const DefaultMaxFrameBytes = 16 << 20

const headerLen = 4

// WriteFrame writes body as one frame.
func WriteFrame(w io.Writer, body []byte) error {
	if uint64(len(body)) > uint64(^uint32(0)) {
		return fmt.Errorf("frame too large: %d bytes", len(body))
	}
	buf := make([]byte, headerLen+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[headerLen:], body)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame body. It returns io.EOF when r ends cleanly
// before a header, and a *entry.DecodeError for truncated or oversized frames.
// Other read errors are returned unchanged.
func ReadFrame(r io.Reader, maxBytes int) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &entry.DecodeError{Reason: "truncated frame header", Err: err}
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if uint64(n) > uint64(maxBytes) {
		return nil, &entry.DecodeError{Reason: fmt.Sprintf("frame of %d bytes exceeds limit of %d", n, maxBytes)}
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &entry.DecodeError{Reason: "truncated payload", Err: io.ErrUnexpectedEOF}
		}
		return nil, err
	}
	return body, nil
}
