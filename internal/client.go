package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ExecuteRequest is sent to the command execution service
type ExecuteRequest struct {
	Command         string           `json:"command"`
	RepositoryState *RepositoryState `json:"repositoryState"`
}

// ExecuteResult is the service's answer for one command
type ExecuteResult struct {
	Success         bool             `json:"success"`
	Output          string           `json:"output"`
	RepositoryState *RepositoryState `json:"repositoryState"`
}

// CommandService interprets one command against a state
type CommandService interface {
	ExecuteCommand(ctx context.Context, req ExecuteRequest) (ExecuteResult, error)
}

// RemoteTier is the server-canonical, versioned state store
type RemoteTier interface {
	FetchState(ctx context.Context) (*RepositoryState, error)
	FetchVersioned(ctx context.Context, sessionID string) (VersionedState, error)
	Upsert(ctx context.Context, sessionID string, state *RepositoryState, version int64) (int64, error)
	Remove(ctx context.Context, sessionID string) error
}

// APIClient talks to the practice backend over HTTP. It serves as both the
// CommandService and the RemoteTier.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewAPIClient creates a client for baseURL
func NewAPIClient(baseURL, token string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ExecuteCommand runs one command on the execution service
func (c *APIClient) ExecuteCommand(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	var res ExecuteResult
	if _, err := c.do(ctx, "execute", "", http.MethodPost, "/api/v1/git/execute", req, &res); err != nil {
		return ExecuteResult{}, err
	}
	return res, nil
}

// FetchState returns the anonymous session's server state
func (c *APIClient) FetchState(ctx context.Context) (*RepositoryState, error) {
	var state *RepositoryState
	if _, err := c.do(ctx, "fetch-state", "", http.MethodGet, "/api/v1/git/state", nil, &state); err != nil {
		return nil, err
	}
	return state, nil
}

// FetchVersioned returns a practice session's canonical state. A missing
// record is reported as a null state at version 0.
func (c *APIClient) FetchVersioned(ctx context.Context, sessionID string) (VersionedState, error) {
	if sessionID == "" {
		return VersionedState{}, ErrNoSessionID
	}
	var vs VersionedState
	status, err := c.do(ctx, "fetch-versioned", sessionID, http.MethodGet, practiceStatePath(sessionID), nil, &vs)
	if status == http.StatusNotFound {
		return VersionedState{}, nil
	}
	if err != nil {
		return VersionedState{}, err
	}
	return vs, nil
}

// Upsert stores state for sessionID and returns the canonical version
func (c *APIClient) Upsert(ctx context.Context, sessionID string, state *RepositoryState, version int64) (int64, error) {
	if sessionID == "" {
		return 0, ErrNoSessionID
	}
	body := VersionedState{State: state, Version: version}
	var res struct {
		Version int64 `json:"version"`
	}
	if _, err := c.do(ctx, "upsert", sessionID, http.MethodPut, practiceStatePath(sessionID), body, &res); err != nil {
		return 0, err
	}
	return res.Version, nil
}

// Remove deletes a practice session's server state
func (c *APIClient) Remove(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNoSessionID
	}
	status, err := c.do(ctx, "remove", sessionID, http.MethodDelete, practiceStatePath(sessionID), nil, nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

func practiceStatePath(sessionID string) string {
	return "/api/v1/practices/" + url.PathEscape(sessionID) + "/repository-state"
}

func (c *APIClient) do(ctx context.Context, op, sessionID, method, path string, in, out interface{}) (int, error) {
	ctx, span := tracer().Start(ctx, "remote."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("practice.session_id", sessionID),
	)

	fail := func(status int, err error) (int, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return status, &RemoteError{Op: op, SessionID: sessionID, StatusCode: status, Err: err}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fail(0, fmt.Errorf("failed to marshal request: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fail(0, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(resp.StatusCode, errors.New(responseMessage(data, resp.Status)))
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fail(resp.StatusCode, fmt.Errorf("failed to unmarshal response: %w", err))
		}
	}

	return resp.StatusCode, nil
}

// responseMessage pulls a message out of an error body, falling back to
// the status line
func responseMessage(data []byte, status string) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return status
}
