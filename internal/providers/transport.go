package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBytes = 4 << 20

// Attempt performs one upstream call. retry reports whether a failure is worth repeating.
type Attempt func(ctx context.Context) (text string, retry bool, err error)

// Retry runs call once plus up to maxRetries more times, doubling the pause from base.
func Retry(ctx context.Context, maxRetries int, base time.Duration, call Attempt) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		text, retry, err := call(ctx)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retry || attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(base * (1 << attempt)):
		}
	}
	return "", lastErr
}

// PostJSON sends payload as JSON and returns the body of a 2xx answer. Other statuses
// become a *StatusError.
func PostJSON(ctx context.Context, client *http.Client, endpoint string, header http.Header, payload any) (body []byte, retry bool, err error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false, err
		}
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, false, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := NewStatusError(resp.StatusCode, body)
		return nil, se.Temporary(), se
	}
	return body, false, nil
}
