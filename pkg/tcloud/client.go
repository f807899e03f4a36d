// Package tcloud implements the client for the TCloud permissions API.
//
// The API is the authority on which customers (clouds) a user may access
// and which roles and permissions the user holds. Its /customer endpoint
// has two historical response shapes — a bare array of customer objects
// and an envelope object — and field names vary between deployments
// (cloud_id, cloudId, id). The client normalizes all of them into a
// single [UserPermissions] value so the rest of the plugin never sees
// the differences.
package tcloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tcloud-dev/tcloud-mcp-platform/pkg/config"
	pluginerr "github.com/tcloud-dev/tcloud-mcp-platform/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/tcloud-dev/tcloud-mcp-platform/pkg/tcloud"

// DefaultTimeout bounds a single API call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// maxResponseSize limits API response bodies to 4 MB.
const maxResponseSize = 4 << 20

// maxErrorBodyLen limits how much of an error response body is carried
// into error messages and logs.
const maxErrorBodyLen = 256

// HTTPDoer is the subset of [*http.Client] the client needs, for test
// substitution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the TCloud API client configuration.
type Config struct {
	// BaseURL is the API base URL, e.g. "https://api.tcloud.example.com".
	BaseURL string

	// APIKey is sent as the x-api-key header on every request.
	APIKey config.Secret

	// Timeout bounds each API call. Zero falls back to [DefaultTimeout].
	Timeout time.Duration

	// DefaultReadPermissions are granted implicitly to any user with at
	// least one customer, in addition to whatever the API returns.
	DefaultReadPermissions []string
}

// Client calls the TCloud permissions API.
//
// A Client is safe for concurrent use by multiple goroutines.
type Client struct {
	cfg        Config
	httpClient HTTPDoer
	tracer     trace.Tracer
}

// NewClient creates a TCloud API client. A nil httpClient falls back to a
// dedicated [*http.Client] with the configured timeout.
//
// Returns CONFIG_ERROR if the base URL is empty or unparseable, or the
// API key is empty.
func NewClient(cfg Config, httpClient HTTPDoer) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, pluginerr.New(pluginerr.CodeConfig,
			"tcloud: base URL must not be empty")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, pluginerr.Newf(pluginerr.CodeConfig,
			"tcloud: invalid base URL %q", cfg.BaseURL)
	}
	if cfg.APIKey.Value() == "" {
		return nil, pluginerr.New(pluginerr.CodeConfig,
			"tcloud: API key must not be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// GetUserPermissions fetches and normalizes the user's customer access
// from GET /customer. The caller's bearer token is forwarded so the API
// can scope the response to the authenticated user.
//
// Outcomes:
//
//   - 200: normalized [UserPermissions]
//   - 403: a valid, empty [UserPermissions] — authenticated but no access
//   - 401 and any other non-2xx: TCLOUD_API_ERROR with the status attached
//   - timeout: TCLOUD_API_TIMEOUT
//   - transport failure: TCLOUD_API_ERROR
func (c *Client) GetUserPermissions(ctx context.Context, email, bearerToken string) (*UserPermissions, error) {
	ctx, span := c.tracer.Start(ctx, "tcloud.get_user_permissions",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()
	span.SetAttributes(attribute.String("tcloud.user_email", email))

	resp, body, err := c.get(ctx, "/customer", bearerToken)
	if err != nil {
		return nil, c.fail(span, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, c.fail(span, pluginerr.Wrap(err, pluginerr.CodeDownstreamAPI,
				"tcloud: failed to parse /customer response"))
		}
		perms := c.normalize(email, data)
		span.SetAttributes(attribute.Int("tcloud.customer_count", len(perms.Customers)))
		span.SetStatus(codes.Ok, "")
		return perms, nil

	case resp.StatusCode == http.StatusForbidden:
		// Authenticated but no customer access. This is a valid answer,
		// not an error: the identity resolves with empty permissions.
		span.SetAttributes(attribute.Int("tcloud.customer_count", 0))
		span.SetStatus(codes.Ok, "no customer access")
		return &UserPermissions{
			Email:       email,
			Customers:   []string{},
			Roles:       []string{},
			Permissions: []string{},
			FetchedAt:   time.Now().UTC(),
		}, nil

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, c.fail(span, pluginerr.DownstreamAPI(
			"tcloud: unauthorized access to permissions API", http.StatusUnauthorized))

	default:
		return nil, c.fail(span, pluginerr.DownstreamAPI(
			fmt.Sprintf("tcloud: permissions API returned status %d: %s",
				resp.StatusCode, truncateBody(body)), resp.StatusCode))
	}
}

// GetUserProfile fetches the user's profile from GET /user/profile.
// Profile data is cosmetic, so every failure — 404, other statuses,
// transport errors — degrades to a minimal profile with the name set to
// the email. GetUserProfile never returns an error.
func (c *Client) GetUserProfile(ctx context.Context, email, bearerToken string) *UserProfile {
	ctx, span := c.tracer.Start(ctx, "tcloud.get_user_profile",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()
	span.SetAttributes(attribute.String("tcloud.user_email", email))

	fallback := &UserProfile{Email: email, Name: email}

	resp, body, err := c.get(ctx, "/user/profile", bearerToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fallback
	}
	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Ok, fmt.Sprintf("degraded: status %d", resp.StatusCode))
		return fallback
	}

	var profile UserProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fallback
	}
	if profile.Email == "" {
		profile.Email = email
	}
	if profile.Name == "" {
		profile.Name = profile.Email
	}
	span.SetStatus(codes.Ok, "")
	return &profile
}

// get performs a GET request against the API with the standard headers.
// The response body is fully read and returned so callers never deal
// with body lifecycles.
func (c *Client) get(ctx context.Context, path, bearerToken string) (*http.Response, []byte, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, nil, pluginerr.Wrap(err, pluginerr.CodeDownstreamAPI,
			"tcloud: failed to create request")
	}
	req.Header.Set("x-api-key", c.cfg.APIKey.Value())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, nil, pluginerr.Wrap(err, pluginerr.CodeDownstreamTimeout,
				"tcloud: permissions API timed out")
		}
		return nil, nil, pluginerr.Wrap(err, pluginerr.CodeDownstreamAPI,
			"tcloud: permissions API request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if isTimeout(err) {
			return nil, nil, pluginerr.Wrap(err, pluginerr.CodeDownstreamTimeout,
				"tcloud: permissions API timed out reading response")
		}
		return nil, nil, pluginerr.Wrap(err, pluginerr.CodeDownstreamAPI,
			"tcloud: failed to read response body")
	}
	return resp, body, nil
}

// normalize converts either /customer response shape into UserPermissions.
func (c *Client) normalize(email string, data any) *UserPermissions {
	customers := extractCustomers(data)
	permissions := extractPermissions(data)

	// Any customer access implies the baseline read permissions.
	if len(customers) > 0 {
		permissions = unionSorted(permissions, c.cfg.DefaultReadPermissions)
	}

	return &UserPermissions{
		Email:       email,
		Customers:   customers,
		Roles:       extractRoles(data),
		Permissions: permissions,
		FetchedAt:   time.Now().UTC(),
	}
}

// extractCustomers pulls customer ids out of either response shape. For
// the array shape each element is a customer object; for the envelope
// shape the objects live under "customers" or "data". The id field may
// be cloud_id, cloudId, or id, checked in that order.
func extractCustomers(data any) []string {
	var items []any
	switch v := data.(type) {
	case []any:
		items = v
	case map[string]any:
		if list, ok := v["customers"].([]any); ok {
			items = list
		} else if list, ok := v["data"].([]any); ok {
			items = list
		}
	}

	customers := make([]string, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id := firstString(obj, "cloud_id", "cloudId", "id"); id != "" {
			customers = append(customers, id)
		}
	}
	return customers
}

// extractRoles pulls roles out of either response shape. The array shape
// carries a role (or legacy permission_level) per customer object; the
// envelope shape carries a top-level "roles" list. Duplicates collapse.
func extractRoles(data any) []string {
	set := map[string]struct{}{}
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if role := firstString(obj, "role", "permission_level"); role != "" {
				set[role] = struct{}{}
			}
		}
	case map[string]any:
		if list, ok := v["roles"].([]any); ok {
			for _, r := range list {
				if s := stringify(r); s != "" {
					set[s] = struct{}{}
				}
			}
		}
	}
	return sortedKeys(set)
}

// extractPermissions pulls explicit permission strings from either
// response shape: the envelope's top-level "permissions" list, or a
// per-entry "permissions" list in the array shape, unioned across
// entries.
func extractPermissions(data any) []string {
	set := map[string]struct{}{}
	addAll := func(list []any) {
		for _, p := range list {
			if s := stringify(p); s != "" {
				set[s] = struct{}{}
			}
		}
	}

	switch v := data.(type) {
	case []any:
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				if list, ok := obj["permissions"].([]any); ok {
					addAll(list)
				}
			}
		}
	case map[string]any:
		if list, ok := v["permissions"].([]any); ok {
			addAll(list)
		}
	}
	return sortedKeys(set)
}

// firstString returns the first non-empty stringified value among the
// given keys.
func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringify(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

// stringify renders scalar JSON values the way the API's consumers expect:
// strings verbatim, numbers without a trailing ".0" when integral.
func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return ""
	}
}

// unionSorted merges two permission lists, dropping duplicates and
// returning a sorted result.
func unionSorted(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// sortedKeys returns the set's keys sorted, as a non-nil slice.
func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// isTimeout reports whether err is a deadline or network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// truncateBody shortens a response body for inclusion in error messages.
func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodyLen {
		return s[:maxErrorBodyLen] + "..."
	}
	return s
}

// fail records err on the span and returns it.
func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
