package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "password123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":"Invalid email or password","code":401}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"resolving","principal_id":"u1","email":"alice@example.com","version":1}`))
	})
	mux.HandleFunc("GET /api/v1/session", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"authenticated","principal_id":"u1","email":"alice@example.com",
			"profile":{"id":"u1","email":"alice@example.com","first_name":"Alice","last_name":"","role":"mentee"},"version":2}`))
	})
	mux.HandleFunc("GET /api/v1/authorize", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "/mentee/dashboard" {
			_, _ = w.Write([]byte(`{"allow":true,"path":"/mentee/dashboard"}`))
			return
		}
		_, _ = w.Write([]byte(`{"allow":false,"redirect_path":"/mentee/dashboard","path":"` + path + `"}`))
	})
	mux.HandleFunc("POST /api/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		if role, ok := body["role"]; ok {
			_, _ = w.Write([]byte(`{"principal_id":"u2","profile_provisioned":true,"role":"` + role + `"}`))
			return
		}
		_, _ = w.Write([]byte(`{"principal_id":"u2"}`))
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := &Client{BaseURL: srv.URL, HTTP: srv.Client(), Out: &out}
	cmd := newRootCmd(c)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoginCommand(t *testing.T) {
	srv := fakeServer(t)

	out, err := execute(t, srv, "login", "--email", "alice@example.com", "--password", "password123")
	require.NoError(t, err)
	assert.Contains(t, out, "alice@example.com (resolving), no profile")

	_, err = execute(t, srv, "login", "--email", "alice@example.com", "--password", "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Code)
	assert.Equal(t, "Invalid email or password", apiErr.Status)
}

func TestLoginRequiresPassword(t *testing.T) {
	t.Setenv("MENTORSHIP_PASSWORD", "")
	srv := fakeServer(t)

	_, err := execute(t, srv, "login", "--email", "alice@example.com")
	assert.Error(t, err)
}

func TestWhoamiCommand(t *testing.T) {
	srv := fakeServer(t)

	out, err := execute(t, srv, "whoami")
	require.NoError(t, err)
	assert.Equal(t, "Alice  <alice@example.com> role=mentee (authenticated)\n", out)
}

func TestCanCommand(t *testing.T) {
	srv := fakeServer(t)

	out, err := execute(t, srv, "can", "/mentee/dashboard")
	require.NoError(t, err)
	assert.Equal(t, "allow /mentee/dashboard\n", out)

	out, err = execute(t, srv, "can", "/admin/dashboard")
	require.NoError(t, err)
	assert.Equal(t, "redirect /admin/dashboard -> /mentee/dashboard\n", out)

	_, err = execute(t, srv, "can")
	assert.Error(t, err)
}

func TestHealthCommand(t *testing.T) {
	srv := fakeServer(t)

	out, err := execute(t, srv, "health", "live")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "ok"`)

	_, err = execute(t, srv, "health", "deep")
	assert.Error(t, err)
}

func TestSignupCommand(t *testing.T) {
	srv := fakeServer(t)

	out, err := execute(t, srv, "signup", "--email", "bob@example.com", "--password", "password123", "--role", "mentor")
	require.NoError(t, err)
	assert.Contains(t, out, `"role": "mentor"`)

	out, err = execute(t, srv, "signup", "--email", "bob@example.com", "--password", "password123")
	require.NoError(t, err)
	assert.NotContains(t, out, "role")
}
