package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/canter/internal/config"
	"github.com/ternarybob/canter/pkg/compiler"
)

func newTestServer() *httptest.Server {
	return httptest.NewServer(NewServer(config.Default()).Router())
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeResult(t *testing.T, resp *http.Response) compiler.JSONResult {
	t.Helper()
	defer resp.Body.Close()
	var out compiler.JSONResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
}

func TestTokenizeEndpoint(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/tokenize", CompileRequest{
		Source: "var v = 1",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeResult(t, resp)
	assert.True(t, out.Success)
	assert.Len(t, out.Tokens, 4)
}

func TestTokenizeEndpoint_ReportsErrors(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/tokenize", CompileRequest{
		Source: `var v = "unterminated`,
	})
	out := decodeResult(t, resp)
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Errors)
}

func TestParseEndpoint(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/parse", CompileRequest{
		Source: "var v = 1 + 2",
	})
	out := decodeResult(t, resp)
	assert.True(t, out.Success)
	require.Len(t, out.AST, 1)
	assert.NotNil(t, out.Scope)
}

func TestResolveEndpoint_ReportsUnknownIdentifier(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/resolve", CompileRequest{
		Source: "func main { return nosuchthing }",
	})
	out := decodeResult(t, resp)
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Errors)
}

func TestInvalidBodyRejected(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/parse", "application/json",
		bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
