// Package stream decodes the newline-delimited JSON chat stream.
package stream

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/vaultmind/chat-client/internal/model"
)

// DefaultMaxLineBytes bounds a single record.
const DefaultMaxLineBytes = 4 << 20

var errLineTooLong = errors.New("line exceeds maximum length")

// MalformedLineError reports a line that could not be decoded. It is not
// fatal: the decoder is positioned at the next line.
type MalformedLineError struct {
	Line int
	Err  error
}

func (e *MalformedLineError) Error() string {
	return fmt.Sprintf("malformed line %d: %v", e.Line, e.Err)
}

func (e *MalformedLineError) Unwrap() error {
	return e.Err
}

// Decoder reads events from a chat stream. Bytes are only parsed once a full
// line is available, so records split across reads decode exactly once.
type Decoder struct {
	r       *bufio.Reader
	max     int
	line    int
	buf     []byte
	pending error
}

// NewDecoder returns a decoder reading from r. A maxLineBytes of zero or
// less selects DefaultMaxLineBytes.
func NewDecoder(r io.Reader, maxLineBytes int) *Decoder {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &Decoder{
		r:   bufio.NewReaderSize(r, 64<<10),
		max: maxLineBytes,
	}
}

// Next returns the next event. It returns io.EOF at the clean end of the
// stream, a *MalformedLineError for a line that can be skipped, and any
// other error when the underlying reader failed.
func (d *Decoder) Next() (model.Event, error) {
	for {
		if d.pending != nil {
			err := d.pending
			return nil, err
		}

		raw, err := d.readLine()
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, errLineTooLong) {
			// A line cut short by a failing reader is never parsed.
			d.pending = err
			return nil, err
		}
		if errors.Is(err, io.EOF) {
			d.pending = io.EOF
		}
		if errors.Is(err, errLineTooLong) {
			return nil, &MalformedLineError{Line: d.line, Err: err}
		}

		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 {
			continue
		}

		ev, perr := model.ParseEvent(trimmed)
		if perr != nil {
			return nil, &MalformedLineError{Line: d.line, Err: perr}
		}
		return ev, nil
	}
}

// Line returns the number of the last line read, starting at 1.
func (d *Decoder) Line() int {
	return d.line
}

// readLine returns one line without its terminator. At the clean end of the
// stream it returns the unterminated remainder together with io.EOF. Lines
// longer than the limit are consumed and reported as errLineTooLong.
func (d *Decoder) readLine() ([]byte, error) {
	d.buf = d.buf[:0]
	overflow := false
	for {
		frag, err := d.r.ReadSlice('\n')
		if !overflow {
			if len(d.buf)+len(frag) > d.max+1 {
				overflow = true
				d.buf = d.buf[:0]
			} else {
				d.buf = append(d.buf, frag...)
			}
		}

		switch {
		case err == nil:
			d.line++
			if overflow {
				return nil, errLineTooLong
			}
			return bytes.TrimRight(d.buf, "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(d.buf) > 0 || overflow {
				d.line++
			}
			if overflow {
				d.pending = io.EOF
				return nil, errLineTooLong
			}
			return d.buf, io.EOF
		default:
			return nil, err
		}
	}
}
