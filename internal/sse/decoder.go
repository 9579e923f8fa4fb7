// Package sse decodes a text/event-stream body into frames.
package sse

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"time"
)

// Frame is one dispatched server-sent event.
type Frame struct {
	Event string
	ID    string
	Data  []byte
	Retry time.Duration
}

// Decoder reads frames from an event stream. It is not safe for concurrent
// use.
type Decoder struct {
	reader *bufio.Reader
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReader(r)}
}

// Next blocks until a complete frame is available. Frames without data
// lines are skipped. At the end of the stream it returns io.EOF; a trailing
// frame that was never terminated by a blank line is discarded.
func (d *Decoder) Next() (Frame, error) {
	var (
		frame   Frame
		data    bytes.Buffer
		hasData bool
	)

	for {
		line, err := d.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return Frame{}, io.EOF
			}
			return Frame{}, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if !hasData {
				frame = Frame{}
				continue
			}
			frame.Data = data.Bytes()
			return frame, nil
		}

		// Comment lines keep proxies from idling the connection out
		if line[0] == ':' {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.Write(value)
			hasData = true
		case "event":
			frame.Event = string(value)
		case "id":
			frame.ID = string(value)
		case "retry":
			if ms, err := strconv.Atoi(string(value)); err == nil && ms >= 0 {
				frame.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}

func splitField(line []byte) (string, []byte) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return string(line), nil
	}
	value := line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:i]), value
}
