package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNewDispatchesByScheme(t *testing.T) {
	tests := []struct {
		url      string
		wantType string
		wantSRV  bool
	}{
		{"file:///tmp/repo", "*fetcher.FileFetcher", false},
		{"http://example.com/repo", "*fetcher.HTTPFetcher", false},
		{"pkg+http://example.com/repo", "*fetcher.HTTPFetcher", true},
		{"ssh://example.com/repo", "*fetcher.SSHFetcher", false},
		{"tcp://example.com:8888/repo", "*fetcher.TCPFetcher", false},
	}
	for _, tt := range tests {
		f, srv, err := New(tt.url, Env{})
		if err != nil {
			t.Errorf("New(%q): %v", tt.url, err)
			continue
		}
		if got := fmt.Sprintf("%T", f); got != tt.wantType {
			t.Errorf("New(%q) = %s, want %s", tt.url, got, tt.wantType)
		}
		if srv != tt.wantSRV {
			t.Errorf("New(%q) needsSRV = %v, want %v", tt.url, srv, tt.wantSRV)
		}
	}
}

func TestFileFetcherFetch(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pkg.txz"), []byte("package-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	f := &FileFetcher{}
	var buf bytes.Buffer
	res, err := f.Fetch(context.Background(), "file://"+dir, Item{Path: "pkg.txz"}, &buf, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Status != Ok {
		t.Fatalf("Status = %v, want Ok", res.Status)
	}
	if buf.String() != "package-bytes" {
		t.Fatalf("body = %q", buf.String())
	}
}

func TestFileFetcherNotFound(t *testing.T) {
	dir := t.TempDir()
	f := &FileFetcher{}
	var buf bytes.Buffer
	res, err := f.Fetch(context.Background(), "file://"+dir, Item{Path: "missing.txz"}, &buf, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Status != NotFound {
		t.Fatalf("Status = %v, want NotFound", res.Status)
	}
}

func TestFileFetcherUpToDate(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "pkg.txz")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	st, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	f := &FileFetcher{}
	var buf bytes.Buffer
	res, err := f.Fetch(context.Background(), "file://"+dir, Item{Path: "pkg.txz", MTime: st.ModTime().Add(time.Second)}, &buf, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Status != UpToDate {
		t.Fatalf("Status = %v, want UpToDate", res.Status)
	}
}

func TestHTTPFetcherFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repo/pkg.txz" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("http-bytes"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(Env{Retries: 1, Timeout: 5 * time.Second})
	var buf bytes.Buffer
	res, err := f.Fetch(context.Background(), srv.URL+"/repo", Item{Path: "pkg.txz"}, &buf, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Status != Ok {
		t.Fatalf("Status = %v, want Ok", res.Status)
	}
	if buf.String() != "http-bytes" {
		t.Fatalf("body = %q", buf.String())
	}
}

func TestHTTPFetcherNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-Modified-Since") != "" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Write([]byte("body"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(Env{Retries: 1, Timeout: 5 * time.Second})
	var buf bytes.Buffer
	res, err := f.Fetch(context.Background(), srv.URL, Item{Path: "pkg.txz", MTime: time.Now()}, &buf, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Status != UpToDate {
		t.Fatalf("Status = %v, want UpToDate", res.Status)
	}
}

func TestHTTPFetcherGzipTransparent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Write([]byte("decompressed-payload"))
		gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	f := NewHTTPFetcher(Env{Retries: 1, Timeout: 5 * time.Second})
	var out bytes.Buffer
	res, err := f.Fetch(context.Background(), srv.URL, Item{Path: "pkg.txz"}, &out, nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Status != Ok {
		t.Fatalf("Status = %v, want Ok", res.Status)
	}
	if out.String() != "decompressed-payload" {
		t.Fatalf("body = %q, want decompressed", out.String())
	}
}

func TestHTTPFetcherProgressCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("a"), 1<<20))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(Env{Retries: 1, Timeout: 5 * time.Second})
	var out bytes.Buffer
	res, _ := f.Fetch(context.Background(), srv.URL, Item{Path: "pkg.txz"}, &out, func(done, total int64) bool {
		return true
	})
	if res.Status != Cancel {
		t.Fatalf("Status = %v, want Cancel", res.Status)
	}
}

func TestParseMirrorLines(t *testing.T) {
	body := "URL: http://mirror1.example.com/repo\n# comment\nURL: http://mirror2.example.com/repo\n"
	got, err := parseMirrorLines(bytes.NewBufferString(body))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"http://mirror1.example.com/repo", "http://mirror2.example.com/repo"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("parseMirrorLines mismatch (-want +got):\n%s", diff)
	}
}

func TestJoinURL(t *testing.T) {
	tests := []struct{ base, rel, want string }{
		{"http://example.com/repo", "pkg.txz", "http://example.com/repo/pkg.txz"},
		{"http://example.com/repo/", "/pkg.txz", "http://example.com/repo/pkg.txz"},
	}
	for _, tt := range tests {
		if got := joinURL(tt.base, tt.rel); got != tt.want {
			t.Errorf("joinURL(%q, %q) = %q, want %q", tt.base, tt.rel, got, tt.want)
		}
	}
}
