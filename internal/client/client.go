package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/benedict2310/sitedrop/internal/transport"
	"github.com/benedict2310/sitedrop/pkg/model"
)

// requests are built against a placeholder host; the transport supplies the
// real server.
const defaultBaseURL = "http://sitedropd"

var (
	ErrUnauthorized = errors.New("not logged in or session expired")
	ErrNotFound     = errors.New("not found")
)

type APIClient struct {
	transport transport.Transport
	baseURL   string
	token     string
}

func New(tr transport.Transport) *APIClient {
	return &APIClient{
		transport: tr,
		baseURL:   defaultBaseURL,
	}
}

// NewWithAuth returns a client that sends token as a bearer credential.
func NewWithAuth(tr transport.Transport, token string) *APIClient {
	c := New(tr)
	c.token = strings.TrimSpace(token)
	return c
}

func (c *APIClient) Register(ctx context.Context, email, name, password string) (Session, error) {
	var out Session
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":    strings.TrimSpace(email),
		"name":     strings.TrimSpace(name),
		"password": password,
	}, &out)
	return out, err
}

func (c *APIClient) Login(ctx context.Context, email, password string) (Session, error) {
	var out Session
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    strings.TrimSpace(email),
		"password": password,
	}, &out)
	return out, err
}

func (c *APIClient) CurrentUser(ctx context.Context) (model.User, error) {
	var out UserResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/user", nil, &out); err != nil {
		return model.User{}, err
	}
	return out.User, nil
}

// UpdateProfile changes the display name and, when password is non-empty,
// the password.
func (c *APIClient) UpdateProfile(ctx context.Context, name, password string) (model.User, error) {
	body := map[string]string{"name": strings.TrimSpace(name)}
	if password != "" {
		body["password"] = password
	}
	var out UserResponse
	if err := c.doJSON(ctx, http.MethodPut, "/api/v1/user", body, &out); err != nil {
		return model.User{}, err
	}
	return out.User, nil
}

func (c *APIClient) Deploy(ctx context.Context, req DeployRequest) (DeploymentResponse, error) {
	var out DeploymentResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/deploy", req, &out)
	return out, err
}

func (c *APIClient) ListSites(ctx context.Context) (SitesResponse, error) {
	var out SitesResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/sites", nil, &out)
	return out, err
}

func (c *APIClient) GetSite(ctx context.Context, id string) (DeploymentResponse, error) {
	var out DeploymentResponse
	err := c.doJSON(ctx, http.MethodGet, sitePath(id), nil, &out)
	return out, err
}

func (c *APIClient) UpdateSite(ctx context.Context, id string, req DeployRequest) (DeploymentResponse, error) {
	var out DeploymentResponse
	err := c.doJSON(ctx, http.MethodPut, sitePath(id), req, &out)
	return out, err
}

func (c *APIClient) DeleteSite(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, sitePath(id), nil, nil)
}

// PublicSite fetches a deployment by subdomain the way a visitor does, which
// counts a visit.
func (c *APIClient) PublicSite(ctx context.Context, subdomain string) (model.Deployment, error) {
	var out model.Deployment
	path := "/api/v1/site/" + url.PathEscape(strings.TrimSpace(subdomain))
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *APIClient) Activity(ctx context.Context, q ActivityQuery) (ActivityResponse, error) {
	query := url.Values{}
	if id := strings.TrimSpace(q.DeploymentID); id != "" {
		query.Set("deployment", id)
	}
	if op := strings.TrimSpace(q.Operation); op != "" {
		query.Set("operation", op)
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		query.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Since != nil {
		query.Set("since", q.Since.UTC().Format(time.RFC3339))
	}
	path := "/api/v1/activity"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out ActivityResponse
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *APIClient) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.doJSON(ctx, http.MethodGet, "/healthz", nil, &out)
	return out, err
}

func (c *APIClient) Version(ctx context.Context) (VersionResponse, error) {
	var out VersionResponse
	err := c.doJSON(ctx, http.MethodGet, "/version", nil, &out)
	return out, err
}

func sitePath(id string) string {
	return "/api/v1/sites/" + url.PathEscape(strings.TrimSpace(id))
}

func (c *APIClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s %s payload: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *APIClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *APIClient) do(req *http.Request, out any) error {
	resp, err := c.transport.Do(req.Context(), req)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return mapAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode api response: %w", err)
	}
	return nil
}

type apiErrorPayload struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}

func mapAPIError(resp *http.Response) error {
	payload := apiErrorPayload{}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if len(body) > 0 {
		_ = json.Unmarshal(body, &payload)
	}
	msg := strings.TrimSpace(payload.Error)
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = "request failed"
	}
	if len(payload.Details) > 0 {
		msg = msg + ": " + strings.Join(payload.Details, "; ")
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("invalid request: %s", msg)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s (run sitedrop login)", ErrUnauthorized, msg)
	case http.StatusForbidden:
		return fmt.Errorf("forbidden: %s (the site belongs to another account)", msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s (check the site id and --context)", ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("conflict: %s", msg)
	case http.StatusRequestEntityTooLarge:
		return fmt.Errorf("request too large: %s", msg)
	case http.StatusTooManyRequests:
		if reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			return fmt.Errorf("rate limited: %s (window resets at %s)", msg, time.Unix(reset, 0).Format(time.RFC3339))
		}
		return fmt.Errorf("rate limited: %s", msg)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("server unavailable: %s", msg)
	default:
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error (%d): %s (check sitedropd logs)", resp.StatusCode, msg)
		}
		return fmt.Errorf("request failed (%d): %s", resp.StatusCode, msg)
	}
}

func mapTransportError(err error) error {
	switch {
	case errors.Is(err, transport.ErrUnreachable):
		return fmt.Errorf("cannot reach server (is sitedropd running?): %w", err)
	case errors.Is(err, transport.ErrTimeout):
		return fmt.Errorf("server did not respond in time: %w", err)
	case errors.Is(err, transport.ErrTLS):
		return fmt.Errorf("tls verification failed: %w", err)
	default:
		return err
	}
}
