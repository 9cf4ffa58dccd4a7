// Package client is a thin REST client for the admin API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Model identifies one registered model.
type Model struct {
	App               string `json:"app"`
	Model             string `json:"model"`
	VerboseName       string `json:"verboseName"`
	VerboseNamePlural string `json:"verboseNamePlural"`
	PK                string `json:"pk"`
}

// Filter describes one list filter.
type Filter struct {
	Path      string   `json:"path"`
	Label     string   `json:"label"`
	Kind      string   `json:"kind"`
	Class     string   `json:"class"`
	Operators []string `json:"operators"`
}

// Filters is the filter bar of a model.
type Filters struct {
	Filters   []Filter `json:"filters"`
	Search    []string `json:"search"`
	Orderable []string `json:"orderable"`
}

// Schema is a rendered form description.
type Schema struct {
	Schema     map[string]any `json:"schema"`
	StartValue map[string]any `json:"startValue"`
	Required   []string       `json:"required"`
	Fields     []string       `json:"fields"`
}

// Action is one action a user may run.
type Action struct {
	Name         string            `json:"name"`
	Label        string            `json:"label"`
	Description  string            `json:"description,omitempty"`
	Danger       bool              `json:"danger"`
	Scopes       []string          `json:"scopes"`
	Params       map[string]string `json:"params,omitempty"`
	RequiredPerm string            `json:"requiredPerm,omitempty"`
}

// Scope selects rows by ids or by filters plus search.
type Scope struct {
	IDs     []any          `json:"ids,omitempty"`
	Filters map[string]any `json:"filters,omitempty"`
	Search  string         `json:"search,omitempty"`
	Order   []string       `json:"order,omitempty"`
}

// RunRequest is the body of an action run. Exactly one of IDs, Scope or
// ScopeToken should be set.
type RunRequest struct {
	IDs        []any          `json:"ids,omitempty"`
	Scope      *Scope         `json:"scope,omitempty"`
	ScopeToken string         `json:"scopeToken,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
}

// RowError reports one failed row.
type RowError struct {
	PK      any    `json:"pk"`
	Message string `json:"message"`
}

// Result summarizes a finished run.
type Result struct {
	OK       bool           `json:"ok"`
	Affected int            `json:"affected"`
	Skipped  int            `json:"skipped"`
	Errors   []RowError     `json:"errors"`
	Report   map[string]any `json:"report,omitempty"`
}

// Outcome is returned by Run. Background runs carry a JobID.
type Outcome struct {
	Background bool    `json:"background"`
	JobID      string  `json:"jobId,omitempty"`
	Total      int     `json:"total"`
	Result     *Result `json:"result,omitempty"`
}

// Page is one page of a list view.
type Page struct {
	Items  []map[string]any `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
	Order  []string         `json:"order,omitempty"`
}

// ScopeToken is a signed scope.
type ScopeToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// VerifiedScope is the content of a valid scope token.
type VerifiedScope struct {
	Model struct {
		App   string `json:"app"`
		Model string `json:"model"`
	} `json:"model"`
	Scope Scope `json:"scope"`
}

// Error is a non-2xx API response.
type Error struct {
	Status int
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Title)
}

// Client talks to one admin API.
type Client struct {
	base string
	http *resty.Client
}

type Option func(*Client)

// WithToken sets the bearer token.
func WithToken(tok string) Option {
	return func(c *Client) { c.http.SetAuthToken(tok) }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithInsecure disables TLS verification.
func WithInsecure() Option {
	return func(c *Client) { c.http.SetTLSClientConfig(insecureTLS()) }
}

// New returns a Client for base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) *Client {
	c := &Client{base: strings.TrimSuffix(base, "/"), http: resty.New().SetTimeout(30 * time.Second)}
	for _, o := range opts {
		o(c)
	}
	return c
}

func modelPath(app, model string) string {
	return "/v1/admin/" + url.PathEscape(app) + "/" + url.PathEscape(model)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, c.base+path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return restyErr(resp)
	}
	return nil
}

func restyErr(resp *resty.Response) error {
	e := &Error{Status: resp.StatusCode(), Title: resp.Status()}
	_ = json.Unmarshal(resp.Body(), e)
	return e
}

// Models lists registered models.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	var out struct {
		Models []Model `json:"models"`
	}
	err := c.do(ctx, resty.MethodGet, "/v1/admin/models", nil, nil, &out)
	return out.Models, err
}

// Schema renders the add form, or the edit form when id is non-empty.
func (c *Client) Schema(ctx context.Context, app, model, id string) (*Schema, error) {
	q := url.Values{"mode": {"add"}}
	if id != "" {
		q = url.Values{"mode": {"edit"}, "id": {id}}
	}
	var out Schema
	if err := c.do(ctx, resty.MethodGet, modelPath(app, model)+"/schema", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Filters returns the declared list filters.
func (c *Client) Filters(ctx context.Context, app, model string) (*Filters, error) {
	var out Filters
	if err := c.do(ctx, resty.MethodGet, modelPath(app, model)+"/filters", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List fetches one page. query carries f_-prefixed filters plus q, o, limit
// and offset.
func (c *Client) List(ctx context.Context, app, model string, query url.Values) (*Page, error) {
	var out Page
	if err := c.do(ctx, resty.MethodGet, modelPath(app, model)+"/objects", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one row.
func (c *Client) Get(ctx context.Context, app, model, id string) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, resty.MethodGet, modelPath(app, model)+"/objects/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// Create inserts a row and returns it as stored.
func (c *Client) Create(ctx context.Context, app, model string, values map[string]any) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, resty.MethodPost, modelPath(app, model)+"/objects", nil, values, &out)
	return out, err
}

// Update writes values to an existing row.
func (c *Client) Update(ctx context.Context, app, model, id string, values map[string]any) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, resty.MethodPut, modelPath(app, model)+"/objects/"+url.PathEscape(id), nil, values, &out)
	return out, err
}

// Actions lists the actions the caller may run.
func (c *Client) Actions(ctx context.Context, app, model string) ([]Action, error) {
	var out struct {
		Actions []Action `json:"actions"`
	}
	err := c.do(ctx, resty.MethodGet, modelPath(app, model)+"/actions", nil, nil, &out)
	return out.Actions, err
}

// Run performs an action.
func (c *Client) Run(ctx context.Context, app, model, name string, req RunRequest) (*Outcome, error) {
	var out Outcome
	if err := c.do(ctx, resty.MethodPost, modelPath(app, model)+"/actions/"+url.PathEscape(name), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignScope returns a token for sc. A zero ttl uses the server default.
func (c *Client) SignScope(ctx context.Context, app, model string, sc Scope, ttl time.Duration) (*ScopeToken, error) {
	body := map[string]any{"scope": sc}
	if ttl > 0 {
		body["ttlSeconds"] = int(ttl.Seconds())
	}
	var out ScopeToken
	if err := c.do(ctx, resty.MethodPost, modelPath(app, model)+"/scope-tokens", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyScope checks a scope token.
func (c *Client) VerifyScope(ctx context.Context, token string) (*VerifiedScope, error) {
	var out VerifiedScope
	if err := c.do(ctx, resty.MethodPost, "/v1/admin/scope-tokens/verify", nil, map[string]string{"token": token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges the current token for a new one.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(ctx, resty.MethodPost, "/v1/auth/refresh", nil, nil, &out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}
