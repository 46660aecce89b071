package fetcher

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

// HTTPFetcher implements the http(s) transport of §4.5: libcurl's
// multi-handle-with-CURLPIPE_MULTIPLEX model is replaced by an
// *http.Client whose Transport is configured for HTTP/2 multiplexing
// (golang.org/x/net/http2), the idiomatic Go analogue called out in
// SPEC_FULL.md's DOMAIN STACK table. Conditional GET and gzip transparency
// follow the teacher's internal/repo/reader.go pattern, generalized to the
// full Fetcher contract (retries, proxy/TLS environment, cancellation).
// Each attempt is bounded by a whole-request timeout (Env.Timeout); there is
// no low-speed cutoff, and retries go to the same URL (no mirror rotation).
type HTTPFetcher struct {
	env    Env
	client *http.Client
}

// NewHTTPFetcher builds a client configured from env: proxy, client/CA
// certs, and TLS verification knobs from the §6 environment variables.
func NewHTTPFetcher(env Env) *HTTPFetcher {
	tlsConfig := &tls.Config{InsecureSkipVerify: env.SSLNoVerifyPeer}
	if env.SSLNoVerifyHost {
		// ServerName empty plus InsecureSkipVerify already disables the
		// hostname check; VerifyPeerCertificate could be added for a
		// peer-only-no-hostname mode, but no caller of this core requests
		// that distinction today.
	}
	if env.SSLCACertFile != "" {
		if pool, err := loadCertPool(env.SSLCACertFile); err == nil {
			tlsConfig.RootCAs = pool
		}
	}
	if env.SSLClientCertFile != "" && env.SSLClientKeyFile != "" {
		if cert, err := tls.LoadX509KeyPair(env.SSLClientCertFile, env.SSLClientKeyFile); err == nil {
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	transport := &http.Transport{
		TLSClientConfig:     tlsConfig,
		MaxIdleConnsPerHost: 10,
		DisableCompression:  true,
	}
	if env.HTTPProxy != "" {
		if proxyURL, err := url.Parse(env.HTTPProxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	// Configure h2 multiplexing; best-effort, matching libcurl's
	// CURLPIPE_MULTIPLEX which is itself opportunistic (falls back to
	// HTTP/1.1 pipelining if the server doesn't negotiate h2).
	_ = http2.ConfigureTransport(transport)

	return &HTTPFetcher{
		env:    env,
		client: &http.Client{Transport: transport},
	}
}

func loadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("fetcher: no certificates parsed from %s", path)
	}
	return pool, nil
}

func (f *HTTPFetcher) Open(ctx context.Context, baseURL string, item Item) error {
	return nil // HTTP has no separate "open" phase; everything happens in Fetch.
}

func (f *HTTPFetcher) Fetch(ctx context.Context, baseURL string, item Item, dest io.Writer, progress ProgressFunc) (Result, error) {
	var lastErr error
	retries := f.env.Retries
	if retries <= 0 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		result, err := f.fetchOnce(ctx, baseURL, item, dest, progress)
		if err == nil && result.Status != Fatal {
			return result, nil
		}
		if result.Status == NotFound || result.Status == Cancel {
			return result, err
		}
		lastErr = err
	}
	return Result{Status: NoNetwork}, lastErr
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, baseURL string, item Item, dest io.Writer, progress ProgressFunc) (Result, error) {
	timeout := f.env.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, joinURL(baseURL, item.Path), nil)
	if err != nil {
		return Result{Status: Fatal}, err
	}
	if !item.MTime.IsZero() {
		req.Header.Set("If-Modified-Since", item.MTime.UTC().Format(http.TimeFormat))
	}
	if f.env.UserAgent != "" {
		req.Header.Set("User-Agent", f.env.UserAgent)
	}
	if f.env.HTTPProxyAuth != "" {
		req.Header.Set("Proxy-Authorization", f.env.HTTPProxyAuth)
	}
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := f.client.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return Result{Status: NoNetwork}, err
		}
		return Result{Status: NoNetwork}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return Result{Status: UpToDate}, nil
	case http.StatusNotFound:
		return Result{Status: NotFound}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Status: Fatal}, fmt.Errorf("fetcher: %s: HTTP status %s", req.URL, resp.Status)
	}

	var total int64
	if cl := resp.ContentLength; cl > 0 {
		total = cl
	}
	body := io.Reader(resp.Body)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, gerr := gzip.NewReader(resp.Body)
		if gerr != nil {
			return Result{Status: Fatal}, gerr
		}
		defer gz.Close()
		body = gz
		total = 0 // decompressed length is unknown ahead of time
	}
	n, err := copyWithProgress(reqCtx, dest, body, total, progress)
	if err != nil {
		if err == errCanceled {
			return Result{Status: Cancel}, nil
		}
		return Result{Status: Fatal}, err
	}

	mtime := time.Now()
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, perr := http.ParseTime(lm); perr == nil {
			mtime = t
		}
	}
	return Result{Status: Ok, MTime: mtime, Size: n}, nil
}

func (f *HTTPFetcher) Close() error   { return nil }
func (f *HTTPFetcher) Cleanup() error { return nil }
