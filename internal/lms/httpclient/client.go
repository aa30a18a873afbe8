// Package httpclient issues requests against the learning platform on behalf of an existing
// browser session, retrying unsuccessful responses with exponential backoff.
package httpclient

import (
	"context"
	"coursepilot/internal/components/assert"
	"coursepilot/internal/components/chrono"
	"coursepilot/internal/components/telemetry"
	"coursepilot/internal/lms"
	"coursepilot/internal/lms/session"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("coursepilot.lms.httpclient")

const (
	report_client_request       = "client.request"
	report_client_mark_complete = "client.mark-complete"
)

// DefaultMaxRetries yields the backoff sequence 1s, 2s, 4s.
const DefaultMaxRetries = 3

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// DefaultHeaders are the browser identity headers sent with every request, headers given to a
// specific request take precedence over these.
func DefaultHeaders(userAgent string) map[string]string {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return map[string]string{
		"User-Agent":                userAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "same-origin",
	}
}

// NetworkError is returned when a request could not be completed at the connection level, even
// after exhausting every retry.
type NetworkError struct {
	Method string
	Url    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.Url, e.Err.Error())
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusError is returned by helpers that require a successful response.
type StatusError struct {
	Url    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Url, e.Status)
}

type Options struct {
	// BaseUrl is the origin relative paths are resolved against, defaults to lms.DefaultBaseUrl.
	BaseUrl string
	Session session.Session
	// MaxRetries of 0 means DefaultMaxRetries, a negative value disables retrying.
	MaxRetries int
	// Timeout applies to a single attempt, defaults to 30 seconds.
	Timeout time.Duration
	// RequestsPerSecond of 0 means unlimited.
	RequestsPerSecond float64
	CloudflareBypass  bool
	UserAgent         string
	// DumpDir, when set, receives a file for every request/response exchange.
	DumpDir string

	Time      chrono.TimeAPI
	Telemetry telemetry.API
}

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	maxRetries int
	time       chrono.TimeAPI
	tel        telemetry.API
}

func NewClient(opts Options) (*Client, error) {
	assert.NotNil(opts.Time)
	assert.NotNil(opts.Telemetry)

	tel := telemetry.NewScopedAPI("http_client", opts.Telemetry)

	if opts.BaseUrl == "" {
		opts.BaseUrl = lms.DefaultBaseUrl
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	if !baseUrl.IsAbs() || baseUrl.Hostname() == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", opts.BaseUrl)
	}

	maxRetries := opts.MaxRetries
	switch {
	case maxRetries == 0:
		maxRetries = DefaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second * 30
	}

	client := resty.New()
	client.SetBaseURL(baseUrl.String())
	jar, err := opts.Session.Jar(baseUrl)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	client.SetHeaders(DefaultHeaders(opts.UserAgent))
	client.SetRedirectPolicy(
		resty.FlexibleRedirectPolicy(10),
		resty.DomainCheckRedirectPolicy(baseUrl.Hostname()),
	)
	client.SetTimeout(timeout)

	if opts.RequestsPerSecond > 0 {
		burst := int(math.Max(1, math.Ceil(opts.RequestsPerSecond)))
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	var dump telemetry.HttpDump
	if opts.DumpDir != "" {
		dirDump, err := telemetry.NewDirDump(opts.DumpDir, tel)
		if err != nil {
			return nil, fmt.Errorf("create dump dir: %w", err)
		}
		dump = dirDump
	}
	telemetry.InstrumentResty(client, "coursepilot.lms.http", tel, dump)

	tel.ReportDebug("client created", baseUrl.String(), opts.Session.String(), maxRetries)

	return &Client{
		BaseUrl:    baseUrl,
		Http:       client,
		maxRetries: maxRetries,
		time:       opts.Time,
		tel:        tel,
	}, nil
}

func (c *Client) MaxRetries() int {
	return c.maxRetries
}

// Resolve turns a path into an absolute url on the base origin, absolute urls are returned
// unchanged.
func (c *Client) Resolve(target string) (string, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return target, nil
	}
	return c.BaseUrl.ResolveReference(ref).String(), nil
}

// Backoff is the delay before the retry made when `retriesLeft` retries remain:
// 2^(maxRetries - retriesLeft) seconds.
func Backoff(maxRetries, retriesLeft int) time.Duration {
	exponent := maxRetries - retriesLeft
	if exponent < 0 {
		exponent = 0
	}
	return time.Duration(1<<exponent) * time.Second
}

// RequestOptions describe a single request, the zero value is a plain GET.
type RequestOptions struct {
	Method  string
	Headers map[string]string
	// Form is sent url-encoded.
	Form map[string]string
	// Multipart is sent as multipart/form-data, it takes precedence over Form.
	Multipart map[string]string
}

func (o RequestOptions) method() string {
	if o.Method == "" {
		return http.MethodGet
	}
	return o.Method
}

func (c *Client) send(ctx context.Context, target string, opts RequestOptions) (*resty.Response, error) {
	req := c.Http.R().SetContext(ctx)
	if len(opts.Headers) > 0 {
		req.SetHeaders(opts.Headers)
	}
	switch {
	case opts.Multipart != nil:
		req.SetMultipartFormData(opts.Multipart)
	case opts.Form != nil:
		req.SetFormData(opts.Form)
	}
	return req.Execute(opts.method(), target)
}

// Request sends a request to `target` (a path on the base origin or an absolute url), following
// redirects.
//
// A response with a non-2xx status is retried while retriesLeft > 0, waiting Backoff between
// attempts; once retries are exhausted the last response is returned as-is without an error. A
// connection level failure is retried the same way and is returned as a *NetworkError once
// retries are exhausted. Cancellation of ctx is never retried.
func (c *Client) Request(ctx context.Context, target string, opts RequestOptions, retriesLeft int) (*resty.Response, error) {
	ctx, span := tracer.Start(ctx, "client:Request")
	defer span.End()

	fullUrl, err := c.Resolve(target)
	if err != nil {
		span.SetStatus(codes.Error, "failed to resolve url")
		return nil, fmt.Errorf("resolve %q: %w", target, err)
	}
	method := opts.method()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.full", fullUrl),
	)

	for attempt := 1; ; attempt++ {
		res, err := c.send(ctx, fullUrl, opts)
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.SetStatus(codes.Error, "context done")
			return nil, fmt.Errorf("%s %s: %w", method, fullUrl, ctxErr)
		}
		if err == nil && IsOk(res) {
			span.SetAttributes(attribute.Int("attempts", attempt))
			return res, nil
		}

		if retriesLeft <= 0 {
			span.SetAttributes(attribute.Int("attempts", attempt))
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "network failure")
				c.tel.ReportWarning(
					report_client_request,
					fmt.Errorf("fetch: %w", err),
					method,
					fullUrl,
				)
				return nil, &NetworkError{Method: method, Url: fullUrl, Err: err}
			}
			span.SetStatus(codes.Error, res.Status())
			c.tel.ReportWarning(
				report_client_request,
				fmt.Errorf("retries exhausted with status %d", res.StatusCode()),
				method,
				fullUrl,
			)
			return res, nil
		}

		delay := Backoff(c.maxRetries, retriesLeft)
		if err != nil {
			c.tel.ReportDebug("retrying after network failure", method, fullUrl, err, delay.String())
		} else {
			c.tel.ReportDebug("retrying after status", method, fullUrl, res.StatusCode(), delay.String())
		}
		err = c.time.Sleep(ctx, delay)
		if err != nil {
			span.SetStatus(codes.Error, "context done")
			return nil, fmt.Errorf("%s %s: %w", method, fullUrl, err)
		}
		retriesLeft--
	}
}

// Do is Request with the client's full retry budget.
func (c *Client) Do(ctx context.Context, target string, opts RequestOptions) (*resty.Response, error) {
	return c.Request(ctx, target, opts, c.maxRetries)
}

func (c *Client) Get(ctx context.Context, target string) (*resty.Response, error) {
	return c.Do(ctx, target, RequestOptions{})
}

// PostForm posts an url-encoded form.
func (c *Client) PostForm(ctx context.Context, target string, form map[string]string) (*resty.Response, error) {
	return c.Do(ctx, target, RequestOptions{Method: http.MethodPost, Form: form})
}

// PostMultipart posts a multipart/form-data body.
func (c *Client) PostMultipart(ctx context.Context, target string, fields map[string]string) (*resty.Response, error) {
	return c.Do(ctx, target, RequestOptions{Method: http.MethodPost, Multipart: fields})
}

// MarkComplete visits a simple resource page, which the platform records as viewed.
func (c *Client) MarkComplete(ctx context.Context, pageId string) error {
	ctx, span := tracer.Start(ctx, "client:MarkComplete")
	defer span.End()
	span.SetAttributes(attribute.String("page_id", pageId))

	endpoint := lms.ResourceView(pageId)
	res, err := c.Get(ctx, endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch resource")
		c.tel.ReportWarning(report_client_mark_complete, err, pageId)
		return err
	}
	if !IsOk(res) {
		err := &StatusError{Url: FinalUrl(res), Status: res.StatusCode()}
		span.SetStatus(codes.Error, err.Error())
		c.tel.ReportWarning(report_client_mark_complete, err, pageId)
		return err
	}
	return nil
}

// IsOk reports whether the response has a 2xx status.
func IsOk(res *resty.Response) bool {
	return res != nil && res.IsSuccess()
}

// FinalUrl is the url of the last request made after following redirects.
func FinalUrl(res *resty.Response) string {
	if res == nil {
		return ""
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil && res.RawResponse.Request.URL != nil {
		return res.RawResponse.Request.URL.String()
	}
	if res.Request != nil {
		return res.Request.URL
	}
	return ""
}

// IsNetworkError reports whether err carries a *NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
