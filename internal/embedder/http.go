// Package embedder provides implementations of the rag.Embedder interface
// used to turn menu text and customer questions into vectors. Gemini is
// reached through the google.golang.org/genai SDK; OpenAI, Azure OpenAI and
// Ollama are reached over plain HTTP.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// postJSON marshals body, POSTs it to url with headers and decodes the JSON
// response into out. Non-2xx statuses are returned as errors carrying msgFn's
// view of the decoded error payload when it has one.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any, msgFn func() string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	decodeErr := json.Unmarshal(raw, out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if decodeErr == nil {
			if m := msgFn(); m != "" {
				msg = m
			}
		}
		return errors.New(msg)
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	return nil
}
