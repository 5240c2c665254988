package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// RequestTemplate describes the request every task of the http workload sends.
type RequestTemplate struct {
	Method   string
	Target   string
	Headers  map[string]string
	Body     string
	BodyFile string
}

type RequestBuilder struct {
	method  string
	target  string
	headers http.Header
	body    Body
}

func NewRequestBuilder(tmpl RequestTemplate) (*RequestBuilder, error) {
	target := strings.TrimSpace(tmpl.Target)
	if target == "" {
		return nil, errors.New("target URL is required")
	}

	method := strings.TrimSpace(tmpl.Method)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	body, err := NewBody(tmpl.Body, tmpl.BodyFile)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	for key, value := range tmpl.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}

	return &RequestBuilder{
		method:  method,
		target:  target,
		headers: headers,
		body:    body,
	}, nil
}

// Target returns the URL requests are sent to.
func (b *RequestBuilder) Target() string {
	return b.target
}

// Build creates a request bound to ctx. GetBody is set, so the request can be
// cloned and resent.
func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, b.method, b.target, nil)
	if err != nil {
		return nil, err
	}
	req.Header = b.headers.Clone()
	if b.body.Empty() {
		return req, nil
	}

	reader, err := b.body.Open()
	if err != nil {
		return nil, err
	}
	req.Body = reader
	req.ContentLength = b.body.Len()
	req.GetBody = b.body.Open
	return req, nil
}

func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Drain reads at most limit bytes of body, discards the rest and closes it.
func Drain(body io.ReadCloser, limit int64) []byte {
	defer body.Close()
	data, err := io.ReadAll(io.LimitReader(body, limit))
	if err != nil {
		data = nil
	}
	_, _ = io.Copy(io.Discard, body)
	return data
}
