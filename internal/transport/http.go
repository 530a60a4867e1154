package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const DefaultTimeout = 30 * time.Second

// HTTPConfig configures an HTTPTransport.
type HTTPConfig struct {
	ServerURL string
	Timeout   time.Duration
	// Client overrides the underlying client. Timeout is ignored when set.
	Client *http.Client
}

// HTTPTransport sends requests to one server base URL. Request URLs only
// contribute path and query; scheme and host always come from the base.
type HTTPTransport struct {
	base *url.URL
	http *http.Client

	closeOnce sync.Once
}

// ParseServerURL parses an absolute http(s) server URL without query or
// fragment. A path prefix is kept so servers behind a reverse proxy work.
func ParseServerURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse server URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL scheme %q: expected http or https", u.Scheme)
	}
	if strings.TrimSpace(u.Hostname()) == "" {
		return nil, fmt.Errorf("server URL %q must include host", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("server URL %q must not include query or fragment", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u, nil
}

// NewHTTPTransport builds a transport for cfg.ServerURL.
func NewHTTPTransport(cfg HTTPConfig) (*HTTPTransport, error) {
	base, err := ParseServerURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPTransport{base: base, http: client}, nil
}

// BaseURL returns the server URL requests are sent to.
func (t *HTTPTransport) BaseURL() string {
	return t.base.String()
}

func (t *HTTPTransport) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if req.URL == nil {
		return nil, fmt.Errorf("request URL is required")
	}

	outReq := req.Clone(ctx)
	urlCopy := *outReq.URL
	urlCopy.Scheme = t.base.Scheme
	urlCopy.Host = t.base.Host
	urlCopy.User = t.base.User
	urlCopy.Path = t.base.Path + "/" + strings.TrimLeft(urlCopy.Path, "/")
	urlCopy.RawPath = ""
	outReq.URL = &urlCopy
	outReq.RequestURI = ""
	outReq.Host = urlCopy.Host

	resp, err := t.http.Do(outReq)
	if err != nil {
		return nil, classifyRequestError(err)
	}
	return resp, nil
}

func (t *HTTPTransport) Close() error {
	t.closeOnce.Do(func() {
		t.http.CloseIdleConnections()
	})
	return nil
}

func classifyRequestError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var certErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) {
		return fmt.Errorf("%w: %v", ErrTLS, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrRequest, err)
}
