package admind

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presbrey/ircq/echoprom"
	"github.com/presbrey/ircq/irc"
	"github.com/presbrey/ircq/store"
)

func newTestServer(t *testing.T) (*Server, *store.Memory, *irc.Repository) {
	t.Helper()
	s := store.NewMemory()
	repo := irc.NewRepository(s, nil)
	srv := New(s, repo, Options{
		Queue:   "mq:kernel",
		Metrics: echoprom.NewWithRegistry(prometheus.NewRegistry()),
	})
	return srv, s, repo
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, s, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, s.Close())
	rec = do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStats(t *testing.T) {
	srv, s, repo := newTestServer(t)
	ctx := context.Background()

	u := &irc.User{Tag: "fe:1", Nick: "foo"}
	require.NoError(t, repo.SaveUser(ctx, u))
	ch, _, err := repo.FindOrCreateChannel(ctx, "#a")
	require.NoError(t, err)
	require.NoError(t, repo.Join(ctx, u, ch, &irc.Member{Modes: "qo"}))
	require.NoError(t, s.RPush(ctx, "mq:kernel", "shutdown"))

	rec := do(t, srv, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Users)
	assert.Equal(t, 1, got.Channels)
	assert.EqualValues(t, 1, got.QueueDepth)
}

func TestChannel(t *testing.T) {
	srv, _, repo := newTestServer(t)
	ctx := context.Background()

	rec := do(t, srv, http.MethodGet, "/api/channels/a", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	u := &irc.User{Tag: "fe:1", Nick: "foo"}
	ch, _, err := repo.FindOrCreateChannel(ctx, "#a")
	require.NoError(t, err)
	require.NoError(t, repo.Join(ctx, u, ch, &irc.Member{Modes: "qo"}))
	_, err = repo.SetAccess(ctx, "#a", &irc.AccessEntry{Level: irc.AccessVoice, Mask: "bar!*@*", Setter: "foo"})
	require.NoError(t, err)

	rec = do(t, srv, http.MethodGet, "/api/channels/a", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got channelResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "#a", got.Name)
	assert.Equal(t, []memberResponse{{Nick: "foo", Tag: "fe:1", Modes: "qo"}}, got.Members)
	require.Len(t, got.Access, 1)
	assert.Equal(t, "VOICE", got.Access[0].Level)
}

func TestInject(t *testing.T) {
	srv, s, _ := newTestServer(t)
	ctx := context.Background()

	rec := do(t, srv, http.MethodPost, "/api/events", `{"kind":"connect","origin":"fe:9","data":"::1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	v, found, err := s.BLPop(ctx, 0, "mq:kernel")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "connect fe:9 ::1", v)

	rec = do(t, srv, http.MethodPost, "/api/events", `{"kind":"explode","origin":"fe:9"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "kind")

	n, err := s.LLen(ctx, "mq:kernel")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	do(t, srv, http.MethodGet, "/healthz", "")
	rec := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{code="200",method="GET",path="/healthz"} 1`)
}
