// Package profile performs the remote group-membership and connection-list
// lookups for one identifier.
package profile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"mutuals/internal/platform/httpclient"
	"mutuals/internal/poller/models"
	"mutuals/pkg/domain"
	dErrors "mutuals/pkg/domain-errors"
	"mutuals/pkg/platform/circuit"
)

const (
	DefaultTimeout             = 15 * time.Second
	DefaultTransportRetries    = 2
	DefaultTransportRetryDelay = time.Second

	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes = 4 << 20
)

// Client is an HTTP ProfileClient. It never returns a Go error from Lookup;
// transport failures are reported in RawLookupResult.Err after the configured
// transport retries are spent.
type Client struct {
	httpClient *http.Client
	baseURL    string
	credential string
	userAgent  string
	referer    string
	retries    int
	pacer      *rate.Limiter
	breaker    *circuit.Breaker
	logger     *slog.Logger
	tracer     trace.Tracer
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

func WithReferer(referer string) Option {
	return func(c *Client) {
		c.referer = referer
	}
}

// WithTransportRetries sets how many extra tries a failed request gets and the
// minimum spacing between tries.
func WithTransportRetries(retries int, delay time.Duration) Option {
	return func(c *Client) {
		if retries >= 0 {
			c.retries = retries
		}
		if delay > 0 {
			c.pacer = rate.NewLimiter(rate.Every(delay), 1)
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

func New(baseURL, credential string, opts ...Option) (*Client, error) {
	if credential == "" {
		return nil, dErrors.New(dErrors.CodeCredentialNotFound, "credential is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid api base url %q", baseURL))
	}

	c := &Client{
		baseURL:    baseURL,
		credential: credential,
		retries:    DefaultTransportRetries,
		pacer:      rate.NewLimiter(rate.Every(DefaultTransportRetryDelay), 1),
		breaker:    circuit.New("profile-api"),
		logger:     slog.New(slog.DiscardHandler),
		tracer:     otel.Tracer("mutuals.profile"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient, err = httpclient.New(DefaultTimeout)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build http client")
		}
	}
	return c, nil
}

// Lookup performs one lookup of kind for id.
func (c *Client) Lookup(ctx context.Context, kind models.LookupKind, id domain.UserID) models.RawLookupResult {
	ctx, span := c.tracer.Start(ctx, "profile.Lookup",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("identifier", id.String()),
			attribute.String("lookup", kind.String()),
		),
	)
	defer span.End()

	result := models.RawLookupResult{Kind: kind, Identifier: id}

	target, err := c.endpoint(kind, id)
	if err != nil {
		result.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "bad endpoint")
		return result
	}

	tries := 1 + c.retries
	for try := 1; try <= tries; try++ {
		if err := ctx.Err(); err != nil {
			result.Err = err
			break
		}
		if try == 1 {
			// First tries never block; they only take a token so the
			// following retry is spaced from them.
			c.pacer.Allow()
		} else {
			if c.breaker.IsOpen() {
				c.logger.DebugContext(ctx, "breaker open, not retrying", "breaker", c.breaker.Name(), "identifier", id.String())
				break
			}
			if err := c.pacer.Wait(ctx); err != nil {
				result.Err = err
				break
			}
		}

		status, body, err := c.do(ctx, target)
		result.StatusCode, result.Body, result.Err = status, body, err

		if !retryable(status, err) {
			c.recordSuccess(ctx)
			break
		}
		c.recordFailure(ctx)
		c.logger.DebugContext(ctx, "lookup transport failure",
			"identifier", id.String(),
			"lookup", kind.String(),
			"status", status,
			"try", try,
			"error", err,
		)
		if ctx.Err() != nil {
			break
		}
	}

	span.SetAttributes(attribute.Int("http.status_code", result.StatusCode))
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
	}
	return result
}

func (c *Client) endpoint(kind models.LookupKind, id domain.UserID) (string, error) {
	switch kind {
	case models.LookupGroups:
		p, err := url.JoinPath(c.baseURL, "users", id.String(), "profile")
		if err != nil {
			return "", err
		}
		return p + "?with_mutual_guilds=true", nil
	case models.LookupConnections:
		return url.JoinPath(c.baseURL, "users", id.String(), "relationships")
	default:
		return "", fmt.Errorf("unknown lookup kind %q", kind)
	}
}

func (c *Client) do(ctx context.Context, target string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", c.credential)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// retryable reports transport failures and server errors. Rate-limit and
// client-error responses carry a body the classifier understands.
func retryable(status int, err error) bool {
	return err != nil || status >= http.StatusInternalServerError
}

func (c *Client) recordFailure(ctx context.Context) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "profile api circuit opened", "breaker", c.breaker.Name())
	}
}

func (c *Client) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "profile api circuit closed", "breaker", c.breaker.Name())
	}
}
