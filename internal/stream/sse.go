package stream

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Frame is one dispatched SSE message before typed decoding.
type Frame struct {
	Event   string
	Data    string
	ID      string
	Retry   int
	Comment string
}

// IsComment reports whether the frame only carried a comment line, which the
// backend uses as keepalive.
func (f Frame) IsComment() bool {
	return f.Comment != "" && f.Event == "" && f.Data == ""
}

const maxFrameLine = 1 << 20

// Decoder reads frames from a text/event-stream body.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameLine)
	return &Decoder{scanner: scanner}
}

// Next returns the next frame. A comment block with no fields is returned on
// its own so callers can count keepalives. io.EOF marks a clean end of stream.
func (d *Decoder) Next() (Frame, error) {
	var (
		frame   Frame
		data    []string
		hasData bool
		pending bool
	)
	for d.scanner.Scan() {
		line := strings.TrimSuffix(d.scanner.Text(), "\r")
		if line == "" {
			if !pending {
				continue
			}
			if hasData {
				frame.Data = strings.Join(data, "\n")
			}
			return frame, nil
		}
		pending = true

		if strings.HasPrefix(line, ":") {
			comment := strings.TrimSpace(strings.TrimPrefix(line, ":"))
			if comment == "" {
				comment = ":"
			}
			frame.Comment = comment
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}
		switch field {
		case "event":
			frame.Event = value
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				frame.ID = value
			}
		case "retry":
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				frame.Retry = n
			}
		}
	}
	if err := d.scanner.Err(); err != nil {
		return Frame{}, err
	}
	if pending && hasData {
		frame.Data = strings.Join(data, "\n")
		return frame, nil
	}
	return Frame{}, io.EOF
}
