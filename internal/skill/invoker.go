package skill

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/toolforge/agentgraph/internal/apperr"
)

// RetryPolicy mirrors the teacher's graph.RetryPolicy (graph/policy.go),
// narrowed to the one retryable-failure classifier skills actually need:
// transport failure, timeout, or a 429 response. Every other HTTP error
// status, 5xx included, fails the call without a retry.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy applies to every Skill node; Non-goals explicitly
// exclude per-skill policy overrides (spec.md §4.2: at most 2 attempts,
// base 200ms, factor 2, ±20% jitter).
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 2,
	BaseDelay:   200 * time.Millisecond,
	MaxDelay:    8 * time.Second,
}

// Invoker calls a Skill's HTTP endpoint, handling auth header composition,
// deadline propagation, and bounded retry with exponential backoff and
// jitter. It generalizes the teacher's HTTPTool (graph/tool/http.go) from a
// single ad hoc GET/POST passthrough into a registry-driven client whose
// auth_kind and credential_ref come from stored Skill metadata.
type Invoker struct {
	client  *http.Client
	secrets SecretStore
	retry   RetryPolicy
	rng     *rand.Rand
}

func NewInvoker(secrets SecretStore) *Invoker {
	return &Invoker{
		client:  &http.Client{},
		secrets: secrets,
		retry:   DefaultRetryPolicy,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Invoke calls s's endpoint with the given JSON-serializable input and
// returns the decoded JSON output. Errors are classified per spec.md §7:
// SkillTimeout, SkillHttpError, SkillTransportError, SkillAuthError, and
// SkillRateLimited (mapped here onto apperr.Kind + a Code carrying the
// finer-grained skill error name).
func (inv *Invoker) Invoke(ctx context.Context, s Skill, input map[string]interface{}) (map[string]interface{}, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var lastErr error
	var retryAfter time.Duration
	for attempt := 0; attempt < inv.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryAfter
			if delay <= 0 {
				delay = computeBackoff(attempt-1, inv.retry.BaseDelay, inv.retry.MaxDelay, inv.rng)
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, apperr.Wrap(apperr.KindExecution, "skill invocation cancelled", ctx.Err()).WithCode("SkillTimeout")
			}
		}
		retryAfter = 0

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		out, err := inv.call(callCtx, s, input)
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
		var rle *rateLimitError
		if errors.As(err, &rle) {
			retryAfter = rle.retryAfter
		}
	}
	return nil, lastErr
}

// rateLimitError carries the skill endpoint's Retry-After hint (spec.md
// §4.2: "429 with Retry-After respected"), threaded through apperr's Cause
// so the retry loop can honor it instead of the computed backoff.
type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.retryAfter)
}

// parseRetryAfter reads RFC 7231's Retry-After header: either an integer
// number of seconds or an HTTP-date. Returns 0 (no override) if absent or
// unparseable.
func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(v); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

func (inv *Invoker) call(ctx context.Context, s Skill, input map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "marshal skill input", err)
	}

	method := s.HTTPMethod
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, s.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, "build skill request", err).WithCode("SkillTransportError")
	}
	req.Header.Set("Content-Type", "application/json")

	if err := inv.applyAuth(ctx, s, req); err != nil {
		return nil, err
	}

	resp, err := inv.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.KindExecution, "skill call timed out", err).WithCode("SkillTimeout")
		}
		return nil, apperr.Wrap(apperr.KindExecution, "skill call failed", err).WithCode("SkillTransportError")
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, "read skill response", err).WithCode("SkillTransportError")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		rle := &rateLimitError{retryAfter: parseRetryAfter(resp.Header)}
		return nil, apperr.Wrap(apperr.KindExecution, fmt.Sprintf("skill %q rate limited", s.Name), rle).WithCode("SkillRateLimited")
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, apperr.New(apperr.KindExecution, fmt.Sprintf("skill %q rejected credentials", s.Name)).WithCode("SkillAuthError")
	}
	if resp.StatusCode >= 400 {
		return nil, apperr.New(apperr.KindExecution, fmt.Sprintf("skill %q returned HTTP %d", s.Name, resp.StatusCode)).WithCode("SkillHttpError")
	}

	var out map[string]interface{}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, apperr.Wrap(apperr.KindExecution, "skill response was not valid JSON", err).WithCode("SkillOutputMismatch")
		}
	}
	return out, nil
}

func (inv *Invoker) applyAuth(ctx context.Context, s Skill, req *http.Request) error {
	switch s.AuthKind {
	case AuthNone, "":
		return nil
	case AuthBearer:
		token, err := inv.secrets.Resolve(ctx, s.CredentialRef)
		if err != nil {
			return apperr.Wrap(apperr.KindExecution, "resolve skill credential", err).WithCode("SkillAuthError")
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	case AuthAPIKeyHeader:
		key, err := inv.secrets.Resolve(ctx, s.CredentialRef)
		if err != nil {
			return apperr.Wrap(apperr.KindExecution, "resolve skill credential", err).WithCode("SkillAuthError")
		}
		req.Header.Set("X-API-Key", key)
		return nil
	case AuthAPIKeyQuery:
		key, err := inv.secrets.Resolve(ctx, s.CredentialRef)
		if err != nil {
			return apperr.Wrap(apperr.KindExecution, "resolve skill credential", err).WithCode("SkillAuthError")
		}
		q := req.URL.Query()
		q.Set("api_key", key)
		req.URL.RawQuery = q.Encode()
		return nil
	case AuthBasic:
		cred, err := inv.secrets.Resolve(ctx, s.CredentialRef)
		if err != nil {
			return apperr.Wrap(apperr.KindExecution, "resolve skill credential", err).WithCode("SkillAuthError")
		}
		user, pass, ok := strings.Cut(cred, ":")
		if !ok {
			return apperr.New(apperr.KindExecution, fmt.Sprintf("skill %q basic auth credential must be \"user:pass\"", s.Name)).WithCode("SkillAuthError")
		}
		req.SetBasicAuth(user, pass)
		return nil
	default:
		return apperr.New(apperr.KindValidation, fmt.Sprintf("skill %q has unknown auth_kind %q", s.Name, s.AuthKind))
	}
}

func isRetryable(err error) bool {
	e, ok := err.(*apperr.Error)
	if !ok {
		return false
	}
	switch e.Code {
	case "SkillTimeout", "SkillTransportError", "SkillRateLimited":
		return true
	default:
		return false
	}
}

// computeBackoff mirrors the teacher's graph.computeBackoff (graph/
// policy.go): exponential growth (factor 2) capped at maxDelay, plus ±20%
// jitter on the computed delay to avoid synchronized retries across
// concurrent skill calls (spec.md §4.2).
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	delay := base * (1 << attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	jitterSpan := float64(delay) * 0.4
	jitter := rng.Float64()*jitterSpan - jitterSpan/2
	delay += time.Duration(jitter)
	if delay < 0 {
		delay = 0
	}
	return delay
}
