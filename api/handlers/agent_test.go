package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/teamflow/profile"
	"github.com/BaSui01/teamflow/testutil/fixtures"
)

func newAgentServer(t *testing.T) (*httptest.Server, *profile.Registry) {
	t.Helper()

	reg := profile.NewRegistry()
	handler := NewAgentHandler(reg, zaptest.NewLogger(t))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/agents", handler.HandleRegisterAgent)
	mux.HandleFunc("GET /api/v1/agents", handler.HandleListAgents)
	mux.HandleFunc("GET /api/v1/agents/balance", handler.HandleTeamBalance)
	mux.HandleFunc("GET /api/v1/agents/{id}", handler.HandleGetAgent)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, reg
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func postProfile(t *testing.T, srv *httptest.Server, p *profile.AgentProfile) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/v1/agents", "application/json", jsonBody(t, p))
	require.NoError(t, err)
	return resp
}

func TestHandleRegisterAgent(t *testing.T) {
	t.Parallel()

	srv, reg := newAgentServer(t)

	resp := postProfile(t, srv, fixtures.ResearcherProfile())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_, registered := decodeEnvelope[profile.AgentProfile](t, resp)
	assert.Equal(t, 1, registered.Version)

	stored, err := reg.Get("researcher-001")
	require.NoError(t, err)
	assert.Equal(t, "researcher", stored.Name)

	// 重复注册发布新版本
	updated := fixtures.ResearcherProfile()
	updated.Role = "lead-researcher"
	resp = postProfile(t, srv, updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, second := decodeEnvelope[profile.AgentProfile](t, resp)
	assert.Equal(t, 2, second.Version)
	assert.Equal(t, "lead-researcher", second.Role)
}

func TestHandleRegisterAgentRejectsInvalid(t *testing.T) {
	t.Parallel()

	srv, _ := newAgentServer(t)

	resp := postProfile(t, srv, &profile.AgentProfile{Name: "no-id"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleGetAgent(t *testing.T) {
	t.Parallel()

	srv, reg := newAgentServer(t)
	require.NoError(t, reg.Register(fixtures.CriticProfile()))

	updated := fixtures.CriticProfile()
	updated.Role = "senior-reviewer"
	require.NoError(t, reg.Update(updated))

	resp, err := http.Get(srv.URL + "/api/v1/agents/critic-001")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, latest := decodeEnvelope[profile.AgentProfile](t, resp)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, "senior-reviewer", latest.Role)

	resp, err = http.Get(srv.URL + "/api/v1/agents/critic-001?version=1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, v1 := decodeEnvelope[profile.AgentProfile](t, resp)
	assert.Equal(t, "reviewer", v1.Role)

	resp, err = http.Get(srv.URL + "/api/v1/agents/critic-001?history=true")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, history := decodeEnvelope[[]*profile.AgentProfile](t, resp)
	assert.Len(t, history, 2)

	resp, err = http.Get(srv.URL + "/api/v1/agents/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleListAgents(t *testing.T) {
	t.Parallel()

	srv, reg := newAgentServer(t)
	for _, p := range fixtures.ResearchTeamProfiles() {
		require.NoError(t, reg.Register(p))
	}

	resp, err := http.Get(srv.URL + "/api/v1/agents")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, list := decodeEnvelope[[]*profile.AgentProfile](t, resp)
	assert.Len(t, list, 3)
	assert.Equal(t, "researcher-001", list[0].ID)
}

func TestHandleTeamBalance(t *testing.T) {
	t.Parallel()

	srv, reg := newAgentServer(t)
	for _, p := range fixtures.ResearchTeamProfiles() {
		require.NoError(t, reg.Register(p))
	}

	resp, err := http.Get(srv.URL + "/api/v1/agents/balance?ids=researcher-001,critic-001,writer-001")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, report := decodeEnvelope[profile.TeamBalanceReport](t, resp)
	assert.Greater(t, report.MeanCompatibility, 0.0)

	resp, err = http.Get(srv.URL + "/api/v1/agents/balance?ids=researcher-001,ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
