package commands

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"ai-portfolio/internal/domain"
)

var (
	colorPrimary = lipgloss.Color("#7aa2f7")
	colorDim     = lipgloss.Color("#565f89")
	colorError   = lipgloss.Color("#f7768e")

	labelStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	toolStyle  = lipgloss.NewStyle().Foreground(colorDim).Italic(true)
	errStyle   = lipgloss.NewStyle().Foreground(colorError)
)

// streamRenderer prints the growing assistant reply as text deltas, so a
// transcript snapshot can be replayed after every update.
type streamRenderer struct {
	out io.Writer

	mu      sync.Mutex
	msgID   string
	printed int
	tools   map[string]bool
}

func newStreamRenderer(out io.Writer) *streamRenderer {
	return &streamRenderer{out: out, tools: map[string]bool{}}
}

func (r *streamRenderer) update(msgs []domain.ChatMessage) {
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Role != domain.RoleAssistant {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if last.ID != r.msgID || len(last.Content) < r.printed {
		r.msgID = last.ID
		r.printed = 0
		r.tools = map[string]bool{}
	}

	for _, inv := range last.ToolInvocations {
		if inv.State == domain.ToolStateCall || r.tools[inv.ToolCallID] {
			continue
		}
		r.tools[inv.ToolCallID] = true
		fmt.Fprintln(r.out, toolStyle.Render(toolLine(inv)))
	}
	if len(last.Content) > r.printed {
		fmt.Fprint(r.out, last.Content[r.printed:])
		r.printed = len(last.Content)
	}
}

// finish terminates the reply line if anything was printed.
func (r *streamRenderer) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.printed > 0 {
		fmt.Fprintln(r.out)
	}
}

func toolLine(inv domain.ToolInvocation) string {
	if inv.State == domain.ToolStateError {
		return fmt.Sprintf("[%s failed: %s]", inv.ToolName, inv.Error)
	}
	return fmt.Sprintf("[%s] %s", inv.ToolName, summarize(inv.Result))
}

// summarize renders a tool result on one line.
func summarize(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return oneLine(v)
	case map[string]any:
		for _, key := range []string{"presentation", "message", "text"} {
			if s, ok := v[key].(string); ok {
				return oneLine(s)
			}
		}
	}
	return ""
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}
