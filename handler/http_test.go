package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ai-portfolio/internal/datastream"
	"ai-portfolio/internal/usecase"
)

// flushingChat writes two text parts and records whether the first one
// reached the client before the second was written.
type flushingChat struct {
	release chan struct{}
}

func (f *flushingChat) Chat(_ context.Context, _ usecase.ChatInput, sink usecase.Sink) (usecase.ChatOutput, error) {
	_ = sink.StartStep("msg-1")
	_ = sink.Text("first")
	<-f.release
	_ = sink.Text(" second")
	_ = sink.FinishStep("stop", datastream.Usage{}, false)
	_ = sink.FinishMessage("stop", datastream.Usage{})
	return usecase.ChatOutput{}, nil
}

func TestServeHTTP_StreamsPartsAsWritten(t *testing.T) {
	chat := &flushingChat{release: make(chan struct{})}
	srv := httptest.NewServer(mustHandler(t, chat))
	defer srv.Close()

	res, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"messages":[{"role":"user","content":"hi"}]}`))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, datastream.Version, res.Header.Get(datastream.VersionHeader))

	dec := datastream.NewDecoder()
	var got []datastream.Part
	buf := make([]byte, 256)
	for len(got) < 2 {
		n, err := res.Body.Read(buf)
		got = append(got, dec.Feed(buf[:n])...)
		require.NoError(t, err)
	}
	require.Equal(t, "first", got[1].Text)

	close(chat.release)
	rest, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	got = append(got, dec.Feed(rest)...)
	got = append(got, dec.Flush()...)
	require.Len(t, got, 5)
	require.Equal(t, datastream.PartFinishMessage, got[4].Type)
}

func TestHandle_RejectsOversizedBody(t *testing.T) {
	uc := &stubChat{}
	body := `{"messages":[{"role":"user","content":"` + strings.Repeat("a", maxRequestBodyBytes) + `"}]}`
	resp, err := mustHandler(t, uc).Handle(context.Background(), makeEvent(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Zero(t, uc.calls)
}

func TestServeHTTP_Health(t *testing.T) {
	srv := httptest.NewServer(mustHandler(t, &stubChat{}))
	defer srv.Close()

	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, res.Header.Get("X-Correlation-Id"))
}
