package mixer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxResponseBytes caps how much of a provider response body is read.
const maxResponseBytes = 16 << 20

// Options are free-form fields merged into the request body next to model
// and prompt. Values must be JSON-encodable. A key named "model" or "prompt"
// overrides the base field.
type Options map[string]any

// Caller performs exactly one attempt against one provider. Implementations
// must honour ctx cancellation and must not retry.
type Caller interface {
	Call(ctx context.Context, p Provider, prompt string, opts Options) (json.RawMessage, error)
}

// HTTPCaller is the default [Caller]. It POSTs {model, prompt, ...opts} as
// JSON to the provider endpoint and returns the JSON response body verbatim.
//
// HTTPCaller is safe for concurrent use.
type HTTPCaller struct {
	client *http.Client
}

var _ Caller = (*HTTPCaller)(nil)

// NewHTTPCaller returns an [HTTPCaller] using client, or
// [http.DefaultClient] when client is nil. Deadlines come from the
// per-provider timeout, so client.Timeout should normally be zero.
func NewHTTPCaller(client *http.Client) *HTTPCaller {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPCaller{client: client}
}

// Call implements [Caller]. Every failure is returned as a [*ProviderError].
func (c *HTTPCaller) Call(ctx context.Context, p Provider, prompt string, opts Options) (json.RawMessage, error) {
	fail := func(err error) (json.RawMessage, error) {
		return nil, &ProviderError{ProviderID: p.ID, ProviderName: p.Name, Err: err}
	}

	body := make(map[string]any, len(opts)+2)
	body["model"] = p.Model
	body["prompt"] = prompt
	for k, v := range opts {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fail(fmt.Errorf("marshal request: %w", err))
	}

	timeout := p.TimeoutDuration()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fail(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ProviderError{
				ProviderID:   p.ID,
				ProviderName: p.Name,
				Timeout:      true,
				Err:          fmt.Errorf("request timed out after %s: %w", timeout, context.DeadlineExceeded),
			}
		}
		return fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, &ProviderError{
			ProviderID:   p.ID,
			ProviderName: p.Name,
			StatusCode:   resp.StatusCode,
			Err:          fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ProviderError{
				ProviderID:   p.ID,
				ProviderName: p.Name,
				Timeout:      true,
				Err:          fmt.Errorf("response timed out after %s: %w", timeout, context.DeadlineExceeded),
			}
		}
		return fail(fmt.Errorf("read response: %w", err))
	}
	if !json.Valid(data) {
		return fail(errors.New("response body is not valid JSON"))
	}
	return json.RawMessage(data), nil
}
