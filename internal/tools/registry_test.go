package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"ai-portfolio/internal/domain"
)

func TestPortfolioRegistry_DefinitionsInOrder(t *testing.T) {
	r := NewPortfolioRegistry()
	defs := r.Definitions()
	require.Len(t, defs, 8)

	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
		require.NotEmpty(t, d.Description)
		require.Equal(t, "object", d.InputSchema["type"])
	}
	require.Equal(t, []string{
		GetProjects, GetPresentation, GetResume, GetContact,
		GetSkills, GetSports, GetCrazy, GetInternship,
	}, names)
}

func TestExecute_ResolvesInvocation(t *testing.T) {
	r := NewPortfolioRegistry()
	inv, err := r.Execute(context.Background(), domain.ToolCall{ID: "c1", Name: GetContact})
	require.NoError(t, err)
	require.Equal(t, domain.ToolStateResult, inv.State)
	require.Equal(t, "c1", inv.ToolCallID)
	require.Contains(t, inv.Result, "contact information")
}

func TestExecute_PresentationIsStructured(t *testing.T) {
	r := NewPortfolioRegistry()
	inv, err := r.Execute(context.Background(), domain.ToolCall{ID: "c1", Name: GetPresentation})
	require.NoError(t, err)
	p, ok := inv.Result.(Presentation)
	require.True(t, ok)
	require.Contains(t, p.Presentation, "full-stack developer")
}

func TestExecute_DispatchErrors(t *testing.T) {
	r := New(Tool{Name: "broken"})

	_, err := r.Execute(context.Background(), domain.ToolCall{ID: "c1"})
	require.ErrorIs(t, err, ErrToolNameEmpty)

	_, err = r.Execute(context.Background(), domain.ToolCall{ID: "c1", Name: "missing"})
	require.ErrorIs(t, err, ErrToolUnregistered)

	_, err = r.Execute(context.Background(), domain.ToolCall{ID: "c1", Name: "broken"})
	require.ErrorIs(t, err, ErrNilExecute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewPortfolioRegistry().Execute(ctx, domain.ToolCall{ID: "c1", Name: GetSkills})
	require.ErrorIs(t, err, context.Canceled)
}

func TestExecute_ToolFailureBecomesErrorState(t *testing.T) {
	r := New(Tool{Name: "flaky", Execute: func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("boom")
	}})
	inv, err := r.Execute(context.Background(), domain.ToolCall{ID: "c1", Name: "flaky"})
	require.NoError(t, err)
	require.Equal(t, domain.ToolStateError, inv.State)
	require.Equal(t, "boom", inv.Error)
}

func TestRegister_ReplacesWithoutReordering(t *testing.T) {
	r := New(Tool{Name: "a"}, Tool{Name: "b"})
	r.Register(Tool{Name: "a", Title: "Alpha"})
	require.Equal(t, 2, r.Len())
	require.Equal(t, "a", r.Definitions()[0].Name)
	require.Equal(t, "Alpha", r.DisplayName("a"))
	require.Equal(t, "b", r.DisplayName("b"))
	require.Equal(t, "My Skills", NewPortfolioRegistry().DisplayName(GetSkills))
}
