package fetcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TCPFetcher implements the raw "tcp" transport of §4.5: the same
// get/ok/ko/quit line protocol as SSHFetcher, but over a plain TCP
// connection (AF_UNSPEC dial, SO_KEEPALIVE) instead of an ssh subprocess —
// used by custom, non-SSH repository daemons.
type TCPFetcher struct {
	env Env

	mu   sync.Mutex
	conn net.Conn
	outR *bufio.Reader
}

func NewTCPFetcher(env Env) *TCPFetcher {
	return &TCPFetcher{env: env}
}

func (f *TCPFetcher) Open(ctx context.Context, baseURL string, item Item) error {
	return f.ensureConnected(ctx, baseURL)
}

func (f *TCPFetcher) ensureConnected(ctx context.Context, baseURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		return nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("fetcher: tcp: invalid repo URL %q: %w", baseURL, err)
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return fmt.Errorf("fetcher: tcp: dial %s: %w", u.Host, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetKeepAlive(true)
	}
	f.conn = conn
	f.outR = bufio.NewReader(conn)
	return nil
}

func (f *TCPFetcher) Fetch(ctx context.Context, baseURL string, item Item, dest io.Writer, progress ProgressFunc) (Result, error) {
	if err := f.ensureConnected(ctx, baseURL); err != nil {
		return Result{Status: NoNetwork}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	ims := int64(0)
	if !item.MTime.IsZero() {
		ims = item.MTime.Unix()
	}
	if _, err := fmt.Fprintf(f.conn, "get %s %d\n", item.Path, ims); err != nil {
		return Result{Status: NoNetwork}, err
	}

	line, err := readLineWithTimeout(f.outR, f.timeout())
	if err != nil {
		return Result{Status: NoNetwork}, err
	}
	line = strings.TrimSpace(line)
	switch {
	case line == "ko:":
		return Result{Status: Fatal}, fmt.Errorf("fetcher: tcp: remote reported an error for %s", item.Path)
	case strings.HasPrefix(line, "ok:"):
		sizeStr := strings.TrimSpace(strings.TrimPrefix(line, "ok:"))
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			return Result{Status: Fatal}, fmt.Errorf("fetcher: tcp: malformed size in %q: %w", line, err)
		}
		if size == 0 {
			return Result{Status: UpToDate}, nil
		}
		n, err := copyWithProgress(ctx, dest, io.LimitReader(f.outR, size), size, progress)
		if err != nil {
			if err == errCanceled {
				return Result{Status: Cancel}, nil
			}
			return Result{Status: Fatal}, err
		}
		return Result{Status: Ok, MTime: time.Now(), Size: n}, nil
	default:
		return Result{Status: Fatal}, fmt.Errorf("fetcher: tcp: unexpected reply %q", line)
	}
}

func (f *TCPFetcher) timeout() time.Duration {
	if f.env.Timeout > 0 {
		return f.env.Timeout
	}
	return 30 * time.Second
}

func (f *TCPFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	fmt.Fprintf(f.conn, "quit\n")
	err := f.conn.Close()
	f.conn = nil
	return err
}

func (f *TCPFetcher) Cleanup() error { return f.Close() }
