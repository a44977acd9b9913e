package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailvault/mailvault/interfaces"
	"github.com/mailvault/mailvault/internal/logger"
	"github.com/mailvault/mailvault/internal/tracing"
)

const defaultTimeout = 30 * time.Second

// Client is the HTTP implementation of the remote mail API. Cancellation is
// reported as the context error so callers can tell aborts from failures.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	log        logger.Logger
}

func NewClient(baseURL, apiToken string, log logger.Logger) interfaces.RemoteClient {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		log: log,
	}
}

func (c *Client) Request(ctx context.Context, resource string, params map[string]string, opts *interfaces.RequestOptions) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "remote.Client.Request")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("resource", resource)

	method := http.MethodGet
	path := "/v1/" + resource
	if opts != nil {
		if opts.Method != "" {
			method = opts.Method
		}
		if opts.Path != "" {
			path = opts.Path
		}
	}
	span.SetTag("http.method", method)

	reqURL := c.baseURL + path
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		reqURL += "?" + values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Surface aborts as the plain context error, never as a transport
		// failure, so the error taxonomy upstream stays intact.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "requesting %s", resource)
	}
	defer resp.Body.Close()

	span.SetTag("http.status_code", resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "reading response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("remote API returned %d for %s", resp.StatusCode, resource)
		tracing.TraceErr(span, err)
		return nil, err
	}

	return body, nil
}
