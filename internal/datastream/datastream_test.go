package datastream

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ai-portfolio/internal/domain"
)

func TestWriter_EncodesOnePartPerLine(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.StartStep("msg-1"))
	require.NoError(t, w.Text("Hello"))
	require.NoError(t, w.Text(""))
	require.NoError(t, w.ToolCall(domain.ToolCall{ID: "call_1", Name: "getProjects"}))
	require.NoError(t, w.ToolResult("call_1", "Here are all my projects"))
	require.NoError(t, w.FinishStep("tool-calls", Usage{PromptTokens: 3, CompletionTokens: 4}, true))
	require.NoError(t, w.FinishMessage("stop", Usage{PromptTokens: 3, CompletionTokens: 4}))

	want := strings.Join([]string{
		`f:{"messageId":"msg-1"}`,
		`0:"Hello"`,
		`9:{"toolCallId":"call_1","toolName":"getProjects","args":{}}`,
		`a:{"toolCallId":"call_1","result":"Here are all my projects"}`,
		`e:{"finishReason":"tool-calls","usage":{"promptTokens":3,"completionTokens":4},"isContinued":true}`,
		`d:{"finishReason":"stop","usage":{"promptTokens":3,"completionTokens":4}}`,
	}, "\n") + "\n"
	require.Equal(t, want, buf.String())
	require.True(t, w.Started())
}

func TestWriter_FlushesHTTPResponses(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)
	require.NoError(t, w.Text("hi"))
	require.True(t, rec.Flushed)
}

type failingWriter struct{ calls int }

func (f *failingWriter) Write(_ []byte) (int, error) {
	f.calls++
	return 0, errors.New("broken pipe")
}

func TestWriter_StickyError(t *testing.T) {
	fw := &failingWriter{}
	w := NewWriter(fw)
	require.Error(t, w.Text("a"))
	err := w.Text("b")
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken pipe")
	require.Equal(t, 1, fw.calls)
	require.False(t, w.Started())
}

func TestDecoder_HandlesLinesSplitAcrossChunks(t *testing.T) {
	d := NewDecoder()

	parts := d.Feed([]byte(`0:"Hel`))
	require.Empty(t, parts)

	parts = d.Feed([]byte("lo\"\n0:\" world\"\n9:{\"toolCallId\":\"c1\",\"tool"))
	require.Len(t, parts, 2)
	require.Equal(t, "Hello", parts[0].Text)
	require.Equal(t, " world", parts[1].Text)

	parts = d.Feed([]byte("Name\":\"getSkills\",\"args\":{}}\n"))
	require.Len(t, parts, 1)
	require.Equal(t, PartToolCall, parts[0].Type)
	require.Equal(t, "c1", parts[0].ToolCallID)
	require.Equal(t, "getSkills", parts[0].ToolName)
}

func TestDecoder_SkipsMalformedLines(t *testing.T) {
	var reported []string
	d := NewDecoder()
	d.OnError = func(line string, err error) {
		reported = append(reported, line)
	}

	parts := d.Feed([]byte("0:\"ok\"\n0:not-json\nz:{}\nnoprefix\n\n0:\"again\"\r\n"))
	require.Len(t, parts, 2)
	require.Equal(t, "ok", parts[0].Text)
	require.Equal(t, "again", parts[1].Text)
	require.Equal(t, []string{"0:not-json", "z:{}", "noprefix"}, reported)
}

func TestDecoder_FlushParsesUnterminatedLine(t *testing.T) {
	d := NewDecoder()
	require.Empty(t, d.Feed([]byte(`d:{"finishReason":"stop","usage":{"promptTokens":1,"completionTokens":2}}`)))

	parts := d.Flush()
	require.Len(t, parts, 1)
	require.Equal(t, PartFinishMessage, parts[0].Type)
	require.Equal(t, "stop", parts[0].FinishReason)
	require.Equal(t, 2, parts[0].Usage.CompletionTokens)
	require.Empty(t, d.Flush())
}

func TestParseLine_ToolResultRequiresID(t *testing.T) {
	_, err := ParseLine([]byte(`a:{"result":"x"}`))
	require.ErrorIs(t, err, ErrMalformedLine)

	_, err = ParseLine([]byte(`x:"y"`))
	require.ErrorIs(t, err, ErrUnknownPart)
}

func TestReadAll_RoundTripsWriterOutput(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.ToolCallStart("c1", "getContact"))
	require.NoError(t, w.ToolCallDelta("c1", "{}"))
	require.NoError(t, w.Error("upstream failed"))

	parts, err := ReadAll(&buf, nil)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	require.Equal(t, PartToolCallStart, parts[0].Type)
	require.Equal(t, "{}", parts[1].ArgsTextDelta)
	require.Equal(t, "upstream failed", parts[2].Text)
}

func TestAccumulator_BuildsAssistantMessage(t *testing.T) {
	msg := &domain.ChatMessage{ID: "ai-1", Role: domain.RoleAssistant}
	acc := NewAccumulator(msg)

	stream := strings.Join([]string{
		`f:{"messageId":"m1"}`,
		`b:{"toolCallId":"c1","toolName":"getProjects"}`,
		`9:{"toolCallId":"c1","toolName":"getProjects","args":{}}`,
		`a:{"toolCallId":"c1","result":"projects above"}`,
		`a:{"toolCallId":"unknown","result":"ignored"}`,
		`e:{"finishReason":"tool-calls","usage":{"promptTokens":10,"completionTokens":2},"isContinued":true}`,
		`0:"Here you go"`,
		`0:"!"`,
		`e:{"finishReason":"stop","usage":{"promptTokens":12,"completionTokens":5},"isContinued":false}`,
		`d:{"finishReason":"stop","usage":{"promptTokens":22,"completionTokens":7}}`,
	}, "\n")
	parts, err := ReadAll(strings.NewReader(stream), nil)
	require.NoError(t, err)
	for _, p := range parts {
		acc.Apply(p)
	}

	require.Equal(t, "Here you go!", msg.Content)
	require.Len(t, msg.ToolInvocations, 1)
	inv := msg.ToolInvocations[0]
	require.Equal(t, domain.ToolStateResult, inv.State)
	require.Equal(t, "projects above", inv.Result)
	require.Equal(t, 2, acc.Steps)
	require.Equal(t, "stop", acc.FinishReason)
	require.Equal(t, Usage{PromptTokens: 22, CompletionTokens: 7}, acc.Usage)
}

func TestAccumulator_ResultIsFinal(t *testing.T) {
	msg := &domain.ChatMessage{Role: domain.RoleAssistant}
	acc := NewAccumulator(msg)
	acc.Apply(Part{Type: PartToolCall, ToolCallID: "c1", ToolName: "getSkills"})
	require.True(t, acc.Apply(Part{Type: PartToolResult, ToolCallID: "c1", Result: "first"}))
	require.False(t, acc.Apply(Part{Type: PartToolResult, ToolCallID: "c1", Result: "second"}))
	require.False(t, acc.Apply(Part{Type: PartToolCall, ToolCallID: "c1", ToolName: "getSkills"}))
	require.Equal(t, "first", msg.ToolInvocations[0].Result)
}

func TestAccumulator_ToolErrorMovesInvocationToErrorState(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.StartStep("m1"))
	require.NoError(t, w.ToolCall(domain.ToolCall{ID: "c1", Name: "launchRockets"}))
	require.NoError(t, w.ToolError("c1", "unknown tool: launchRockets"))
	require.Contains(t, buf.String(), `a:{"toolCallId":"c1","result":"unknown tool: launchRockets","isError":true}`)

	parts, err := ReadAll(&buf, nil)
	require.NoError(t, err)

	msg := &domain.ChatMessage{Role: domain.RoleAssistant}
	acc := NewAccumulator(msg)
	for _, p := range parts {
		acc.Apply(p)
	}

	require.Len(t, msg.ToolInvocations, 1)
	inv := msg.ToolInvocations[0]
	require.Equal(t, domain.ToolStateError, inv.State)
	require.Equal(t, "unknown tool: launchRockets", inv.Error)
	require.Nil(t, inv.Result)
}
