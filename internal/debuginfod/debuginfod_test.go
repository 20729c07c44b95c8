package debuginfod

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger { return zerolog.New(os.Stderr).Level(zerolog.Disabled) }

func TestProbeFirstServerSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New([]string{srv.URL}, 2*time.Second, 1<<20, testLogger())
	url, ok := c.Probe(context.Background(), "abcdef")
	if !ok {
		t.Fatal("expected a successful probe")
	}
	want := srv.URL + "/buildid/abcdef/debuginfo"
	if url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
}

// TestProbeSkipsNotFoundThenSucceeds covers §4.6's "404 means try the next
// server" rule.
func TestProbeSkipsNotFoundThenSucceeds(t *testing.T) {
	miss := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer miss.Close()
	hit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer hit.Close()

	c := New([]string{miss.URL, hit.URL}, 2*time.Second, 1<<20, testLogger())
	url, ok := c.Probe(context.Background(), "abcdef")
	if !ok {
		t.Fatal("expected the second server to succeed")
	}
	if url != hit.URL+"/buildid/abcdef/debuginfo" {
		t.Errorf("url = %q, want the hit server's URL", url)
	}
}

// TestProbeSkipsServerErrorThenSucceeds covers the "5xx is logged and
// skipped" rule.
func TestProbeSkipsServerErrorThenSucceeds(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	hit := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer hit.Close()

	c := New([]string{bad.URL, hit.URL}, 2*time.Second, 1<<20, testLogger())
	if _, ok := c.Probe(context.Background(), "abcdef"); !ok {
		t.Fatal("expected the second server to succeed after the first returned 5xx")
	}
}

func TestProbeAllMiss(t *testing.T) {
	miss := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer miss.Close()

	c := New([]string{miss.URL}, 2*time.Second, 1<<20, testLogger())
	if _, ok := c.Probe(context.Background(), "abcdef"); ok {
		t.Fatal("expected no server to report success")
	}
}

func TestDownloadWritesFileAtomically(t *testing.T) {
	const body = "debuginfo payload bytes"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := New([]string{srv.URL}, 2*time.Second, 1<<20, testLogger())
	path, err := c.Download(context.Background(), srv.URL+"/buildid/abcdef/debuginfo", dir, "hello")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != body {
		t.Errorf("downloaded content = %q, want %q", data, body)
	}
}

func TestDownloadRejectsOversizedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := New([]string{srv.URL}, 2*time.Second, 16, testLogger())
	if _, err := c.Download(context.Background(), srv.URL, dir, "hello"); err == nil {
		t.Fatal("expected an error for a payload exceeding the byte cap")
	}
}

func TestResolveServerListPrecedence(t *testing.T) {
	if got := ResolveServerList("https://a.example,https://b.example", "https://env.example"); len(got) != 2 || got[0] != "https://a.example" {
		t.Errorf("flag value should take precedence, got %v", got)
	}
	if got := ResolveServerList("", "https://env1.example https://env2.example"); len(got) != 2 {
		t.Errorf("env value should be split on whitespace, got %v", got)
	}
	if got := ResolveServerList("", ""); len(got) == 0 {
		t.Error("expected the built-in default list when neither flag nor env is set")
	}
}
