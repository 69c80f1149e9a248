// Package registry implements clients for the external customer registry and
// product catalog services. Both speak XML over HTTP.
package registry

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/xenking/cashflow-pos/internal/registry"

// maxResponseSize bounds the body read from upstream services.
const maxResponseSize = 16 << 20

// ErrUnavailable is matched by UnavailableError.
var ErrUnavailable = errors.New("registry unavailable")

// errNotFound marks a 404 from upstream; clients translate it to their
// domain's not-found error.
var errNotFound = errors.New("not found")

// UnavailableError reports a transient failure talking to an upstream
// service: a transport error or an unexpected status.
type UnavailableError struct {
	Service string
	Status  int
	Err     error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s unavailable: status %d", e.Service, e.Status)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is reports whether target is ErrUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Options configures the HTTP clients.
type Options struct {
	// Timeout bounds a single request. Defaults to 5s.
	Timeout time.Duration
	// Transport is the underlying round tripper. Defaults to
	// http.DefaultTransport.
	Transport      http.RoundTripper
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.Timeout == 0 {
		o.Timeout = 5 * time.Second
	}
	if o.Transport == nil {
		o.Transport = http.DefaultTransport
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = otel.GetMeterProvider()
	}
}

// client performs GET requests against one upstream service.
type client struct {
	service string
	base    *url.URL
	http    *http.Client
	tracer  trace.Tracer
}

func newClient(service, baseURL string, opts Options) (*client, error) {
	opts.setDefaults()

	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s url", service)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("%s url %q must be absolute", service, baseURL)
	}

	return &client{
		service: service,
		base:    base,
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: otelhttp.NewTransport(opts.Transport,
				otelhttp.WithTracerProvider(opts.TracerProvider),
				otelhttp.WithMeterProvider(opts.MeterProvider),
			),
		},
		tracer: opts.TracerProvider.Tracer(instrumentationName),
	}, nil
}

// getXML fetches base+path and decodes the XML body into out. A 404 yields
// errNotFound, transport failures and other error statuses yield an
// UnavailableError.
func (c *client) getXML(ctx context.Context, path string, out any) (rerr error) {
	ctx, span := c.tracer.Start(ctx, c.service+".get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("pos.registry.path", path)),
	)
	defer func() {
		if rerr != nil && !errors.Is(rerr, errNotFound) {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String()+path, http.NoBody)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return &UnavailableError{Service: c.service, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode >= http.StatusBadRequest:
		return &UnavailableError{Service: c.service, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &UnavailableError{Service: c.service, Err: err}
	}
	if err := xml.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "decode %s response", c.service)
	}
	return nil
}

// ping reports whether the service answers at all. Any status below 500
// counts as reachable.
func (c *client) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String(), http.NoBody)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &UnavailableError{Service: c.service, Err: err}
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return &UnavailableError{Service: c.service, Status: resp.StatusCode}
	}
	return nil
}
