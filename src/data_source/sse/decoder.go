package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
)

const maxLineBytes = 1 << 20

// ErrEventTooLong is returned for an event holding a line over maxLineBytes.
// The event is skipped and the decoder stays usable.
var ErrEventTooLong = errors.New("sse event exceeds line limit")

// Event is one dispatched server-sent event
type Event struct {
	Name  string
	Data  string
	ID    string
	Retry int
}

// Decoder reads server-sent events incrementally from a stream.
// Lines may end in LF or CRLF. Comment lines (":" prefix) are skipped.
type Decoder struct {
	reader *bufio.Reader
	line   []byte
	lastID string
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReaderSize(r, 64*1024)}
}

// -----------------------------------------------------------------------------

// Next blocks until a complete event is available. An event cut off by the end of
// the stream is discarded and the read error (io.EOF at a clean end) is returned.
// An event with an oversized line yields ErrEventTooLong once its blank line is read.
func (d *Decoder) Next() (Event, error) {
	var (
		name      string
		data      strings.Builder
		hasData   bool
		retry     int
		oversized bool
	)

	for {
		line, tooLong, err := d.readLine()
		if err != nil {
			return Event{}, err
		}
		if tooLong {
			oversized = true
			continue
		}

		if len(line) == 0 {
			if oversized {
				return Event{Name: name, ID: d.lastID}, ErrEventTooLong
			}
			if !hasData {
				name, retry = "", 0
				continue
			}
			return Event{
				Name:  name,
				Data:  strings.TrimSuffix(data.String(), "\n"),
				ID:    d.lastID,
				Retry: retry,
			}, nil
		}

		if line[0] == ':' {
			continue
		}

		field, value := line, []byte(nil)
		if i := bytes.IndexByte(line, ':'); i >= 0 {
			field = line[:i]
			value = bytes.TrimPrefix(line[i+1:], []byte(" "))
		}

		switch string(field) {
		case "event":
			name = string(value)
		case "data":
			data.Write(value)
			data.WriteByte('\n')
			hasData = true
		case "id":
			if bytes.IndexByte(value, 0) < 0 {
				d.lastID = string(value)
			}
		case "retry":
			if n, err := strconv.Atoi(string(value)); err == nil && n >= 0 {
				retry = n
			}
		}
	}
}

// readLine returns the next line without its terminator. Bytes of a line past
// maxLineBytes are drained and dropped; tooLong reports that happened.
// A trailing line with no terminator is treated as cut off.
func (d *Decoder) readLine() (line []byte, tooLong bool, err error) {
	d.line = d.line[:0]
	for {
		chunk, err := d.reader.ReadSlice('\n')
		if !tooLong {
			if len(d.line)+len(chunk) > maxLineBytes+2 {
				tooLong = true
				d.line = d.line[:0]
			} else {
				d.line = append(d.line, chunk...)
			}
		}

		switch {
		case err == nil:
			if tooLong {
				return nil, true, nil
			}
			line = bytes.TrimSuffix(d.line, []byte("\n"))
			return bytes.TrimSuffix(line, []byte("\r")), false, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, tooLong, err
		}
	}
}
