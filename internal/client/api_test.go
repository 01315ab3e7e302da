package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPI_RegisterKeepsToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/register":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "a@x.com", body["email"])
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"code":0,"message":"created","data":{"user":{"_id":"u1","email":"a@x.com"},"token":"tok"}}`))
		case "/projects/all":
			gotAuth = r.Header.Get("Authorization")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"code":0,"message":"ok","data":{"projects":[{"_id":"p1","name":"demo","fileTree":{"app.js":"x"},"users":[{"_id":"u1","email":"a@x.com"}]}]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	api := NewAPI(srv.URL + "/")
	auth, err := api.Register(context.Background(), "a@x.com", "abc")
	require.NoError(t, err)
	assert.Equal(t, "u1", auth.User.ID)
	assert.Equal(t, "tok", api.Token())

	projects, err := api.Projects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	require.Len(t, projects, 1)
	assert.Equal(t, "demo", projects[0].Name)
	assert.Equal(t, "x", projects[0].FileTree.Data()["app.js"])
	assert.Equal(t, []string{"u1"}, projects[0].MemberIDs())
}

func TestAPI_ErrorsCarryServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":400,"message":"validation failed","errors":[{"field":"email","message":"email must be a valid email address"}]}`))
	}))
	defer srv.Close()

	_, err := NewAPI(srv.URL).Register(context.Background(), "nope", "abc")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Len(t, apiErr.Fields, 1)
	assert.Contains(t, apiErr.Error(), "email must be a valid email address")
}

func TestAPI_GenerateReturnsRawText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "build a server", r.URL.Query().Get("prompt"))
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	out, err := NewAPI(srv.URL).Generate(context.Background(), "build a server")
	require.NoError(t, err)
	assert.Equal(t, `{"text":"ok"}`, out)
}
