package datastream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	ErrMalformedLine = errors.New("datastream: malformed line")
	ErrUnknownPart   = errors.New("datastream: unknown part type")
)

const maxPendingBytes = 1 << 20

// Decoder turns arbitrarily split chunks back into parts. A line that is cut
// across two chunks is held until its newline arrives. Lines that cannot be
// decoded are reported to OnError and skipped.
type Decoder struct {
	OnError func(line string, err error)

	pending []byte
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes one chunk and returns the parts completed by it, in order.
func (d *Decoder) Feed(chunk []byte) []Part {
	d.pending = append(d.pending, chunk...)

	var parts []Part
	for {
		idx := bytes.IndexByte(d.pending, '\n')
		if idx < 0 {
			break
		}
		line := d.pending[:idx]
		if p, ok := d.decode(line); ok {
			parts = append(parts, p)
		}
		d.pending = d.pending[idx+1:]
	}

	if len(d.pending) > maxPendingBytes {
		d.report(string(d.pending[:64]), fmt.Errorf("%w: line exceeds %d bytes", ErrMalformedLine, maxPendingBytes))
		d.pending = nil
	}
	if len(d.pending) == 0 {
		d.pending = nil
	}
	return parts
}

// Flush decodes a final line that was not newline-terminated.
func (d *Decoder) Flush() []Part {
	if len(d.pending) == 0 {
		return nil
	}
	line := d.pending
	d.pending = nil
	if p, ok := d.decode(line); ok {
		return []Part{p}
	}
	return nil
}

func (d *Decoder) decode(raw []byte) (Part, bool) {
	line := bytes.TrimRight(raw, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return Part{}, false
	}
	p, err := ParseLine(line)
	if err != nil {
		d.report(string(line), err)
		return Part{}, false
	}
	return p, true
}

func (d *Decoder) report(line string, err error) {
	if d.OnError != nil {
		d.OnError(line, err)
	}
}

// ParseLine decodes a single line without its trailing newline.
func ParseLine(line []byte) (Part, error) {
	if len(line) < 2 || line[1] != ':' {
		return Part{}, fmt.Errorf("%w: missing type prefix", ErrMalformedLine)
	}
	typ := PartType(line[0])
	payload := line[2:]

	p := Part{Type: typ}
	var err error
	switch typ {
	case PartText:
		err = json.Unmarshal(payload, &p.Text)
	case PartError:
		err = json.Unmarshal(payload, &p.Text)
	case PartStartStep:
		var v startStepPayload
		err = json.Unmarshal(payload, &v)
		p.MessageID = v.MessageID
	case PartToolCallStart:
		var v toolCallStartPayload
		err = json.Unmarshal(payload, &v)
		p.ToolCallID, p.ToolName = v.ToolCallID, v.ToolName
	case PartToolCallDelta:
		var v toolCallDeltaPayload
		err = json.Unmarshal(payload, &v)
		p.ToolCallID, p.ArgsTextDelta = v.ToolCallID, v.ArgsTextDelta
	case PartToolCall:
		var v toolCallPayload
		err = json.Unmarshal(payload, &v)
		p.ToolCallID, p.ToolName, p.Args = v.ToolCallID, v.ToolName, v.Args
		if err == nil && p.ToolCallID == "" {
			err = errors.New("toolCallId is required")
		}
	case PartToolResult:
		var v toolResultPayload
		err = json.Unmarshal(payload, &v)
		p.ToolCallID, p.Result, p.IsError = v.ToolCallID, v.Result, v.IsError
		if err == nil && p.ToolCallID == "" {
			err = errors.New("toolCallId is required")
		}
	case PartFinishStep:
		var v finishStepPayload
		err = json.Unmarshal(payload, &v)
		p.FinishReason, p.Usage, p.IsContinued = v.FinishReason, v.Usage, v.IsContinued
	case PartFinishMessage:
		var v finishMessagePayload
		err = json.Unmarshal(payload, &v)
		p.FinishReason, p.Usage = v.FinishReason, v.Usage
	default:
		return Part{}, fmt.Errorf("%w: %q", ErrUnknownPart, string(line[0]))
	}
	if err != nil {
		return Part{}, fmt.Errorf("%w: %s part: %v", ErrMalformedLine, typ, err)
	}
	return p, nil
}

// ReadAll decodes a whole stream. Malformed lines go to onError, which may be nil.
func ReadAll(r io.Reader, onError func(line string, err error)) ([]Part, error) {
	dec := NewDecoder()
	dec.OnError = onError

	var parts []Part
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			parts = append(parts, dec.Feed(buf[:n])...)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return parts, fmt.Errorf("datastream: read: %w", err)
		}
	}
	return append(parts, dec.Flush()...), nil
}
