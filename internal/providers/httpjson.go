package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ChamsBouzaiene/chatbridge/internal/engine"
)

// maxErrorBody bounds how much of a failed response body is kept in errors.
const maxErrorBody = 512

// jsonResponse is the raw outcome of doJSON.
type jsonResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// doJSON sends body (if non-nil) as JSON and reads the whole response.
// Transport failures are wrapped as classified backend errors; HTTP status
// handling is left to the caller.
func doJSON(ctx context.Context, client *http.Client, backend, method, url string, headers map[string]string, body any) (*jsonResponse, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, engine.WrapLLMError(backend, err, 0)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, engine.WrapLLMError(backend, fmt.Errorf("failed to read response: %w", err), resp.StatusCode)
	}

	return &jsonResponse{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// statusError builds a classified error for a non-2xx response.
func statusError(backend string, r *jsonResponse) error {
	body := r.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return engine.WrapLLMError(backend, fmt.Errorf("unexpected status %d: %s", r.Status, bytes.TrimSpace(body)), r.Status)
}

func (r *jsonResponse) ok() bool {
	return r.Status >= 200 && r.Status < 300
}

func (r *jsonResponse) decode(backend string, v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return engine.NewBackendError(backend, fmt.Errorf("failed to decode response: %w", err), engine.FailureUpstream)
	}
	return nil
}
