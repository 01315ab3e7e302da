package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("COCODE_CONFIG", filepath.Join(t.TempDir(), "credentials.json"))
	t.Setenv("COCODE_TOKEN", "")
	t.Setenv("COCODE_SERVER", "")
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func fakeServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/users/login":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "abc" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"code":401,"message":"invalid email or password"}`))
				return
			}
			_, _ = w.Write([]byte(`{"code":0,"message":"ok","data":{"user":{"_id":"u1","email":"` + body["email"] + `"},"token":"tok"}}`))
		case "/projects/all":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"code":401,"message":"authorization required"}`))
				return
			}
			_, _ = w.Write([]byte(`{"code":0,"message":"ok","data":{"projects":[{"_id":"p1","name":"demo","fileTree":{},"users":[{"_id":"u1","email":"a@x.com"}]}]}}`))
		case "/users/all":
			_, _ = w.Write([]byte(`{"code":0,"message":"ok","data":{"users":[{"_id":"u2","email":"b@x.com"}]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestLoginStoresTokenForLaterCommands(t *testing.T) {
	isolate(t)
	srv := fakeServer(t)
	defer srv.Close()

	out, err := execute(t, "", "--server", srv.URL, "login", "-e", "a@x.com", "-p", "abc")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as a@x.com")

	creds, err := LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, "tok", creds.Token)
	assert.Equal(t, srv.URL, creds.Server)

	out, err = execute(t, "", "projects")
	require.NoError(t, err)
	assert.Contains(t, out, "demo")
	assert.Contains(t, out, "p1")
}

func TestLoginPromptsForMissingCredentials(t *testing.T) {
	isolate(t)
	srv := fakeServer(t)
	defer srv.Close()

	out, err := execute(t, "a@x.com\nabc\n", "--server", srv.URL, "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Email: ")
	assert.Contains(t, out, "Logged in as a@x.com")
}

func TestLoginFailureSurfacesServerMessage(t *testing.T) {
	isolate(t)
	srv := fakeServer(t)
	defer srv.Close()

	_, err := execute(t, "", "--server", srv.URL, "login", "-e", "a@x.com", "-p", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid email or password")
}

func TestCommandsRequireLogin(t *testing.T) {
	isolate(t)
	_, err := execute(t, "", "--server", "http://127.0.0.1:1", "projects")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestResolveUsersByEmail(t *testing.T) {
	isolate(t)
	srv := fakeServer(t)
	defer srv.Close()
	t.Setenv("COCODE_TOKEN", "tok")

	root := NewRootCommand()
	a := &app{server: srv.URL}
	require.NoError(t, a.init(root))
	require.Equal(t, "tok", a.api.Token())

	ids, err := a.resolveUsers(root, []string{"B@x.com", "u3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u3"}, ids)

	_, err = a.resolveUsers(root, []string{"nobody@x.com"})
	assert.Error(t, err)
}

func TestReadTreeSkipsDependencies(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, body string) {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	write("app.js", "console.log(1)")
	write("routes/user.js", "module.exports = {}")
	write("node_modules/express/index.js", "x")
	write(".git/HEAD", "ref")

	tree, err := readTree(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.js", "routes/user.js"}, tree.Paths())
}

func TestCredentialsClear(t *testing.T) {
	isolate(t)
	require.NoError(t, SaveCredentials(&Credentials{Server: "http://x", Token: "t"}))
	require.NoError(t, ClearCredentials())
	require.NoError(t, ClearCredentials())

	creds, err := LoadCredentials()
	require.NoError(t, err)
	assert.Empty(t, creds.Token)
}
