// Package sources holds the HTTP plumbing shared by the provider clients.
package sources

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cod-reconciliation-service/pkg/errors"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
	defaultHTTPTimeout    = 20 * time.Second
	maxErrorBodyBytes     = 512
)

// RetryPolicy controls how often throttled or failing requests are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    defaultMaxAttempts,
		InitialBackoff: defaultInitialBackoff,
		MaximumBackoff: defaultMaximumBackoff,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaximumBackoff <= 0 {
		p.MaximumBackoff = defaultMaximumBackoff
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = p.InitialBackoff
	}
	return p
}

// NewHTTPClient returns an http.Client with the default per-request timeout
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do sends the request built by newRequest, retrying on transport errors,
// 429 and 5xx responses. newRequest is called once per attempt so bodies can
// be replayed. Any other status is returned to the caller unchanged.
func Do(ctx context.Context, client *http.Client, policy RetryPolicy, newRequest func(ctx context.Context) (*http.Request, error)) (*Response, error) {
	policy = policy.normalized()
	backoff := policy.InitialBackoff
	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := newRequest(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		var out *Response
		if err == nil {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				err = readErr
			} else {
				out = &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
			}
		}

		attempts++
		if err == nil && !retryableStatus(out.StatusCode) {
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if attempts >= policy.MaxAttempts {
			if err != nil {
				return nil, err
			}
			return out, nil
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		backoff = minDuration(backoff*2, policy.MaximumBackoff)
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// IsSuccess reports a 2xx status
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusError classifies a non-2xx response: 401 and 403 are credential
// problems, everything else means the provider is unavailable.
func StatusError(source string, resp *Response) *errors.ReconcilerError {
	err := fmt.Errorf("%s api error %d: %s", source, resp.StatusCode, snippet(resp.Body))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.AuthError(errors.CodeInvalidCredentials, source, err).
			WithContext("status", resp.StatusCode)
	default:
		return errors.SourceError(errors.CodeSourceUnavailable, source, err).
			WithContext("status", resp.StatusCode)
	}
}

// TransportError classifies a failure to get any response at all
func TransportError(source string, err error) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.SourceError(errors.CodeSourceUnavailable, source, err)
}

// MalformedError reports a response body that could not be decoded
func MalformedError(source string, err error) *errors.ReconcilerError {
	return errors.SourceError(errors.CodeMalformedResponse, source, err)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodyBytes {
		s = s[:maxErrorBodyBytes] + "..."
	}
	return s
}
