// Package client is the outbound OCPI HTTP collaborator. It owns timeouts,
// the retry policy for reads, and the translation of transport failures into
// domain error codes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	credmodels "voltgrid/internal/credentials/models"
	"voltgrid/internal/ocpi/wire"
	vermodels "voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
	"voltgrid/pkg/platform/middleware/auth"
	"voltgrid/pkg/requestcontext"
)

const maxErrorBody = 4 << 10

// Client talks to counterparty OCPI platforms.
type Client struct {
	http          *http.Client
	maxGetTries   uint64
	retryInterval time.Duration
	// discovery is the version whose token encoding is used before one is negotiated.
	discovery domain.VersionNumber
	logger    *slog.Logger
	tracer    trace.Tracer
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTracer sets the tracer that opens one client span per HTTP attempt.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithHTTPClient replaces the underlying client; its Timeout is kept as is.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithGetRetry bounds read retries: at most tries attempts, starting at interval.
func WithGetRetry(tries uint64, interval time.Duration) Option {
	return func(c *Client) {
		if tries > 0 {
			c.maxGetTries = tries
		}
		if interval > 0 {
			c.retryInterval = interval
		}
	}
}

// WithDiscoveryVersion sets the token encoding used for the versions list call.
func WithDiscoveryVersion(v domain.VersionNumber) Option {
	return func(c *Client) {
		c.discovery = v
	}
}

// New creates a client whose every request is bounded by timeout.
func New(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		http:          &http.Client{Timeout: timeout},
		maxGetTries:   3,
		retryInterval: 200 * time.Millisecond,
		discovery:     domain.Version22,
		logger:        slog.New(slog.DiscardHandler),
		tracer:        otel.Tracer("voltgrid/ocpi-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchVersions reads a counterparty's version list. A 2.1.1 peer rejects the
// base64 token encoding, so a 401 is retried once with the raw token.
func (c *Client) FetchVersions(ctx context.Context, versionsURL, token string) ([]vermodels.VersionInfo, error) {
	versions, err := getWithRetry[[]vermodels.VersionInfo](ctx, c, versionsURL, auth.FormatAuthorization(token, c.discovery))
	if dErrors.HasCode(err, dErrors.CodeInvalidToken) && c.discovery.IsAtLeast(domain.Version22) {
		c.logger.InfoContext(ctx, "versions call rejected encoded token, retrying raw",
			"url", versionsURL,
			"request_id", requestcontext.RequestID(ctx),
		)
		return getWithRetry[[]vermodels.VersionInfo](ctx, c, versionsURL, auth.FormatAuthorization(token, domain.Version211))
	}
	return versions, err
}

// FetchVersionDetails reads the endpoint list for one version.
func (c *Client) FetchVersionDetails(ctx context.Context, detailsURL, token string, version domain.VersionNumber) (*vermodels.VersionDetails, error) {
	details, err := getWithRetry[vermodels.VersionDetails](ctx, c, detailsURL, auth.FormatAuthorization(token, version))
	if err != nil {
		return nil, err
	}
	return &details, nil
}

// PostCredentials registers with a counterparty. It is never retried.
func (c *Client) PostCredentials(ctx context.Context, credentialsURL, token string, version domain.VersionNumber, offered credmodels.Credentials) (*credmodels.Credentials, error) {
	return c.sendCredentials(ctx, http.MethodPost, credentialsURL, token, version, offered)
}

// PutCredentials rotates credentials with an already registered counterparty. It is never retried.
func (c *Client) PutCredentials(ctx context.Context, credentialsURL, token string, version domain.VersionNumber, offered credmodels.Credentials) (*credmodels.Credentials, error) {
	return c.sendCredentials(ctx, http.MethodPut, credentialsURL, token, version, offered)
}

func (c *Client) sendCredentials(ctx context.Context, method, url, token string, version domain.VersionNumber, offered credmodels.Credentials) (*credmodels.Credentials, error) {
	body, err := json.Marshal(offered.ForVersion(version))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode credentials")
	}
	creds, err := do[credmodels.Credentials](ctx, c, method, url, auth.FormatAuthorization(token, version), body)
	if err != nil {
		c.logger.WarnContext(ctx, "credentials exchange call failed",
			"method", method,
			"url", url,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, unwrapPermanent(err)
	}
	return &creds, nil
}

func getWithRetry[T any](ctx context.Context, c *Client, url, authorization string) (T, error) {
	var out T
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retryInterval
	exp.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, c.maxGetTries-1), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		v, err := do[T](ctx, c, http.MethodGet, url, authorization, nil)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, policy, func(err error, wait time.Duration) {
		c.logger.InfoContext(ctx, "retrying OCPI read",
			"url", url,
			"attempt", attempt,
			"wait", wait,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	})
	if err != nil {
		var zero T
		err = unwrapPermanent(err)
		var de *dErrors.Error
		if !errors.As(err, &de) {
			err = dErrors.Wrap(err, dErrors.CodeNetwork, "request aborted")
		}
		return zero, err
	}
	return out, nil
}

// do performs one request. Errors that must not be retried come back wrapped
// in backoff.Permanent.
func do[T any](ctx context.Context, c *Client, method, url, authorization string, body []byte) (_ T, err error) {
	ctx, span := c.tracer.Start(ctx, "ocpi.client "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var zero T
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return zero, backoff.Permanent(dErrors.Wrap(err, dErrors.CodeNetwork, "invalid counterparty URL"))
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := requestcontext.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return zero, backoff.Permanent(dErrors.Wrap(err, dErrors.CodeNetwork, "request cancelled"))
		}
		return zero, dErrors.Wrap(err, dErrors.CodeNetwork, fmt.Sprintf("%s %s failed", method, url))
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		drain(resp.Body)
		return zero, backoff.Permanent(dErrors.New(dErrors.CodeInvalidToken, fmt.Sprintf("counterparty rejected token (%d)", resp.StatusCode)))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		drain(resp.Body)
		return zero, dErrors.New(dErrors.CodeNetwork, fmt.Sprintf("counterparty returned %d", resp.StatusCode))
	case resp.StatusCode >= 300:
		drain(resp.Body)
		return zero, backoff.Permanent(dErrors.New(dErrors.CodeNetwork, fmt.Sprintf("counterparty returned %d", resp.StatusCode)))
	}

	data, err := wire.Decode[T](resp.Body)
	if err != nil {
		var se *wire.StatusError
		if errors.As(err, &se) {
			return zero, backoff.Permanent(mapStatus(se))
		}
		return zero, backoff.Permanent(dErrors.Wrap(err, dErrors.CodeNegotiationFailed, "malformed counterparty response"))
	}
	return data, nil
}

// mapStatus translates a counterparty's OCPI status code into our taxonomy.
func mapStatus(se *wire.StatusError) error {
	switch {
	case se.StatusCode == wire.StatusUnsupportedVersion:
		return dErrors.Wrap(se, dErrors.CodeNoCommonVersion, "counterparty does not support the version")
	case se.StatusCode == wire.StatusNoMatchingEndpoints:
		return dErrors.Wrap(se, dErrors.CodeNegotiationFailed, "counterparty found no matching endpoints")
	case se.StatusCode >= 3000:
		return dErrors.Wrap(se, dErrors.CodeNetwork, "counterparty server error")
	default:
		return dErrors.Wrap(se, dErrors.CodeNegotiationFailed, "counterparty rejected the request")
	}
}

func unwrapPermanent(err error) error {
	var p *backoff.PermanentError
	if errors.As(err, &p) {
		return p.Err
	}
	return err
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, maxErrorBody))
}
