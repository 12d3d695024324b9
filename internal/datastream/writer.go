package datastream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"ai-portfolio/internal/domain"
)

// Writer encodes parts onto an io.Writer, one line per part. When the
// destination is an http.Flusher every part is flushed as it is written.
// After the first write error all further writes return that error.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	err     error
	parts   int
}

func NewWriter(w io.Writer) *Writer {
	out := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		out.flusher = f
	}
	return out
}

// SetHeaders prepares an HTTP response for a data stream body.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", ContentType)
	h.Set(VersionHeader, Version)
	h.Set("Cache-Control", "no-cache")
}

// Started reports whether at least one part was written.
func (w *Writer) Started() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.parts > 0
}

func (w *Writer) StartStep(messageID string) error {
	return w.write(PartStartStep, startStepPayload{MessageID: messageID})
}

// Text writes a text delta. Empty deltas are dropped.
func (w *Writer) Text(delta string) error {
	if delta == "" {
		return nil
	}
	return w.write(PartText, delta)
}

func (w *Writer) ToolCallStart(id, name string) error {
	return w.write(PartToolCallStart, toolCallStartPayload{ToolCallID: id, ToolName: name})
}

func (w *Writer) ToolCallDelta(id, argsDelta string) error {
	if argsDelta == "" {
		return nil
	}
	return w.write(PartToolCallDelta, toolCallDeltaPayload{ToolCallID: id, ArgsTextDelta: argsDelta})
}

func (w *Writer) ToolCall(call domain.ToolCall) error {
	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	return w.write(PartToolCall, toolCallPayload{ToolCallID: call.ID, ToolName: call.Name, Args: args})
}

func (w *Writer) ToolResult(id string, result any) error {
	return w.write(PartToolResult, toolResultPayload{ToolCallID: id, Result: result})
}

// ToolError reports a tool that failed. Clients move the invocation to the
// error state instead of treating msg as its result.
func (w *Writer) ToolError(id, msg string) error {
	return w.write(PartToolResult, toolResultPayload{ToolCallID: id, Result: msg, IsError: true})
}

func (w *Writer) FinishStep(reason string, usage Usage, continued bool) error {
	return w.write(PartFinishStep, finishStepPayload{FinishReason: reason, Usage: usage, IsContinued: continued})
}

func (w *Writer) FinishMessage(reason string, usage Usage) error {
	return w.write(PartFinishMessage, finishMessagePayload{FinishReason: reason, Usage: usage})
}

func (w *Writer) Error(msg string) error {
	return w.write(PartError, msg)
}

func (w *Writer) write(code PartType, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("datastream: encode %s part: %w", code, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}

	line := make([]byte, 0, len(payload)+3)
	line = append(line, byte(code), ':')
	line = append(line, payload...)
	line = append(line, '\n')
	if _, err := w.w.Write(line); err != nil {
		w.err = fmt.Errorf("datastream: write %s part: %w", code, err)
		return w.err
	}
	w.parts++
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
