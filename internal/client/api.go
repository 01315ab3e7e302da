package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/huangang/cocode/internal/models"
	"github.com/huangang/cocode/pkg/response"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
	Fields  []response.FieldError
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Message)
	}
	return fmt.Sprintf("%d: %s (%s)", e.Status, e.Message, strings.Join(parts, "; "))
}

// API talks to the cocode HTTP surface.
type API struct {
	baseURL string
	http    *http.Client
	token   string
}

func NewAPI(baseURL string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 3 * time.Minute},
	}
}

func (a *API) SetToken(token string) { a.token = token }
func (a *API) Token() string         { return a.token }
func (a *API) BaseURL() string       { return a.baseURL }

// Auth is the reply of register and login.
type Auth struct {
	User         models.User `json:"user"`
	Token        string      `json:"token"`
	RefreshToken string      `json:"refresh_token,omitempty"`
}

// Register creates an account and keeps its token.
func (a *API) Register(ctx context.Context, email, password string) (*Auth, error) {
	var out Auth
	if err := a.do(ctx, http.MethodPost, "/users/register", map[string]string{"email": email, "password": password}, &out); err != nil {
		return nil, err
	}
	a.token = out.Token
	return &out, nil
}

// Login signs in and keeps the access token.
func (a *API) Login(ctx context.Context, email, password string) (*Auth, error) {
	var out Auth
	if err := a.do(ctx, http.MethodPost, "/users/login", map[string]string{"email": email, "password": password}, &out); err != nil {
		return nil, err
	}
	a.token = out.Token
	return &out, nil
}

func (a *API) Profile(ctx context.Context) (*models.User, error) {
	var out struct {
		User models.User `json:"user"`
	}
	if err := a.do(ctx, http.MethodGet, "/users/profile", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Users lists everyone except the caller.
func (a *API) Users(ctx context.Context) ([]models.User, error) {
	var out struct {
		Users []models.User `json:"users"`
	}
	if err := a.do(ctx, http.MethodGet, "/users/all", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

type projectEnvelope struct {
	Project models.Project `json:"project"`
}

func (a *API) CreateProject(ctx context.Context, name string) (*models.Project, error) {
	var out projectEnvelope
	if err := a.do(ctx, http.MethodPost, "/projects/create", map[string]string{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out.Project, nil
}

func (a *API) Projects(ctx context.Context) ([]models.Project, error) {
	var out struct {
		Projects []models.Project `json:"projects"`
	}
	if err := a.do(ctx, http.MethodGet, "/projects/all", nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

func (a *API) AddUsers(ctx context.Context, projectID string, userIDs []string) (*models.Project, error) {
	var out projectEnvelope
	body := map[string]interface{}{"projectId": projectID, "users": userIDs}
	if err := a.do(ctx, http.MethodPut, "/projects/add-user", body, &out); err != nil {
		return nil, err
	}
	return &out.Project, nil
}

func (a *API) Project(ctx context.Context, projectID string) (*models.Project, error) {
	var out projectEnvelope
	if err := a.do(ctx, http.MethodGet, "/projects/get-project/"+url.PathEscape(projectID), nil, &out); err != nil {
		return nil, err
	}
	return &out.Project, nil
}

func (a *API) UpdateFileTree(ctx context.Context, projectID string, tree models.FileTree) (*models.Project, error) {
	var out projectEnvelope
	body := map[string]interface{}{"projectId": projectID, "fileTree": tree}
	if err := a.do(ctx, http.MethodPut, "/projects/update-file-tree", body, &out); err != nil {
		return nil, err
	}
	return &out.Project, nil
}

// Generate returns the model's raw reply for prompt.
func (a *API) Generate(ctx context.Context, prompt string) (string, error) {
	req, err := a.newRequest(ctx, http.MethodGet, "/ai/get-result?prompt="+url.QueryEscape(prompt), nil)
	if err != nil {
		return "", err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}
	b, err := io.ReadAll(resp.Body)
	return string(b), err
}

func (a *API) do(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := a.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	envelope := response.Response{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (a *API) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	return req, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var envelope response.Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Message != "" {
		apiErr.Message = envelope.Message
		apiErr.Fields = envelope.Errors
	}
	return apiErr
}
