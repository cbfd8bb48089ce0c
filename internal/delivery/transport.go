package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/settld/core/pkg/canonicaljson"
)

// Transport sends one delivery attempt to its destination and reports
// whether the destination accepted it.
type Transport interface {
	Send(ctx context.Context, dest Destination, body any) (ok bool, statusOrErr string, err error)
}

// HTTPWebhookTransport POSTs the signed body to a webhook destination.
// Grounded on net/http.Client usage throughout the pack (no third-party HTTP
// client is wired anywhere in the retrieved examples for outbound calls);
// stdlib net/http is the correct choice here.
type HTTPWebhookTransport struct {
	Client *http.Client
	Safety SafetyOptions
	Clock  func() time.Time
}

func (t *HTTPWebhookTransport) now() time.Time {
	if t.Clock != nil {
		return t.Clock()
	}

	return time.Now().UTC()
}

func (t *HTTPWebhookTransport) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}

	return &http.Client{Timeout: 10 * time.Second}
}

// Send signs body and POSTs it to dest.URL, first running the URL through
// CheckURLSafety.
func (t *HTTPWebhookTransport) Send(ctx context.Context, dest Destination, body any) (bool, string, error) {
	if err := CheckURLSafety(ctx, dest.URL, t.Safety); err != nil {
		return false, "", err
	}

	canon, err := marshalBody(body)
	if err != nil {
		return false, "", err
	}

	ts := t.now().Format(time.RFC3339)

	sig, err := Sign(dest.Secret, ts, body)
	if err != nil {
		return false, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest.URL, bytes.NewReader(canon))
	if err != nil {
		return false, "", fmt.Errorf("delivery: build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Settld-Timestamp", ts)
	req.Header.Set("X-Settld-Signature", sig)

	resp, err := t.client().Do(req)
	if err != nil {
		return false, "", fmt.Errorf("delivery: webhook post: %w", err)
	}

	defer resp.Body.Close()

	io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for keep-alive reuse, not a result we need

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	return ok, fmt.Sprintf("%d", resp.StatusCode), nil
}

// S3PresignedTransport performs an S3-style presigned PUT. The actual
// presigning scheme is intentionally a pluggable interface (Non-goal: a
// concrete object-store integration) — Signer stands in for a cloud SDK's
// presign call.
type S3PresignedTransport struct {
	Client *http.Client
	Signer func(dest Destination, body []byte) (putURL string, err error)
}

func (t *S3PresignedTransport) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}

	return &http.Client{Timeout: 30 * time.Second}
}

// Send uploads body to the presigned URL Signer returns.
func (t *S3PresignedTransport) Send(ctx context.Context, dest Destination, body any) (bool, string, error) {
	canon, err := marshalBody(body)
	if err != nil {
		return false, "", err
	}

	putURL, err := t.Signer(dest, canon)
	if err != nil {
		return false, "", fmt.Errorf("delivery: presign s3 put: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, putURL, bytes.NewReader(canon))
	if err != nil {
		return false, "", fmt.Errorf("delivery: build s3 put request: %w", err)
	}

	resp, err := t.client().Do(req)
	if err != nil {
		return false, "", fmt.Errorf("delivery: s3 put: %w", err)
	}

	defer resp.Body.Close()

	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	return ok, fmt.Sprintf("%d", resp.StatusCode), nil
}

func marshalBody(body any) ([]byte, error) {
	if b, ok := body.([]byte); ok {
		return b, nil
	}

	return canonicaljson.Marshal(body)
}
