// ABOUTME: Tests for the artwork cache
// ABOUTME: Tests HTTP download, caching, size limits and error handling
package artwork

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"
)

func newTestDownloader(t *testing.T) *Downloader {
	t.Helper()
	dl, err := NewDownloader(WithDir(t.TempDir()), WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("failed to create downloader: %v", err)
	}
	return dl
}

func imageServer(t *testing.T, body string, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			requests.Add(1)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewDownloaderDefaultDir(t *testing.T) {
	dl, err := NewDownloader()
	if err != nil {
		t.Fatalf("failed to create downloader: %v", err)
	}

	if !strings.HasPrefix(dl.Dir(), os.TempDir()) {
		t.Errorf("cache directory %s should be in temp dir", dl.Dir())
	}
	if filepath.Base(dl.Dir()) != "sendspin-artwork" {
		t.Errorf("unexpected cache directory %s", dl.Dir())
	}
	if _, err := os.Stat(dl.Dir()); err != nil {
		t.Errorf("cache directory was not created: %v", err)
	}
}

func TestDownloadSuccess(t *testing.T) {
	srv := imageServer(t, "fake image data", nil)
	dl := newTestDownloader(t)

	path, err := dl.Download(context.Background(), srv.URL+"/cover.png")
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}

	if filepath.Ext(path) != ".png" {
		t.Errorf("expected .png file, got %s", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read artwork file: %v", err)
	}
	if string(content) != "fake image data" {
		t.Errorf("expected content 'fake image data', got '%s'", string(content))
	}

	if dl.CurrentPath() != path {
		t.Errorf("expected CurrentPath to be %s, got %s", path, dl.CurrentPath())
	}
}

func TestDownloadCaching(t *testing.T) {
	var requests atomic.Int32
	srv := imageServer(t, "fake image data", &requests)
	dl := newTestDownloader(t)

	path1, err := dl.Download(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("first download failed: %v", err)
	}
	path2, err := dl.Download(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("second download failed: %v", err)
	}

	if requests.Load() != 1 {
		t.Errorf("expected cached download to not hit server, got %d requests", requests.Load())
	}
	if path1 != path2 {
		t.Errorf("expected same path for cached download, got %s and %s", path1, path2)
	}
}

func TestDownloadHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dl := newTestDownloader(t)

	if _, err := dl.Download(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404 response")
	}
	if dl.CurrentPath() != "" {
		t.Errorf("failed download should not set current path, got %s", dl.CurrentPath())
	}

	entries, _ := os.ReadDir(dl.Dir())
	if len(entries) != 0 {
		t.Errorf("expected empty cache after failure, found %d files", len(entries))
	}
}

func TestDownloadTooLarge(t *testing.T) {
	srv := imageServer(t, strings.Repeat("x", maxArtworkBytes+1), nil)
	dl := newTestDownloader(t)

	_, err := dl.Download(context.Background(), srv.URL)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	entries, _ := os.ReadDir(dl.Dir())
	if len(entries) != 0 {
		t.Errorf("expected no files left behind, found %d", len(entries))
	}
}

func TestDownloadEmptyURLClearsCurrent(t *testing.T) {
	srv := imageServer(t, "img", nil)
	dl := newTestDownloader(t)

	if _, err := dl.Download(context.Background(), srv.URL); err != nil {
		t.Fatalf("download failed: %v", err)
	}

	path, err := dl.Download(context.Background(), "")
	if err != nil {
		t.Errorf("expected no error for empty URL, got: %v", err)
	}
	if path != "" || dl.CurrentPath() != "" {
		t.Errorf("expected current artwork cleared, got %q / %q", path, dl.CurrentPath())
	}
}

func TestDownloadInvalidURL(t *testing.T) {
	dl := newTestDownloader(t)

	if _, err := dl.Download(context.Background(), "not-a-valid-url"); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestDownloadCancelled(t *testing.T) {
	srv := imageServer(t, "img", nil)
	dl := newTestDownloader(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := dl.Download(ctx, srv.URL); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestGetExtension(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"http://example.com/image.jpg", ".jpg"},
		{"http://example.com/image.PNG", ".png"},
		{"http://example.com/image.webp", ".webp"},
		{"http://example.com/image.jpg?size=large", ".jpg"},
		{"http://example.com/image", ".jpg"},
		{"http://example.com/path/to/image.jpeg", ".jpeg"},
	}

	for _, tt := range tests {
		result := getExtension(tt.url)
		if result != tt.expected {
			t.Errorf("getExtension(%q) = %q, expected %q", tt.url, result, tt.expected)
		}
	}
}

func TestDownloadMultipleURLs(t *testing.T) {
	srv1 := imageServer(t, "image 1", nil)
	srv2 := imageServer(t, "image 2", nil)
	dl := newTestDownloader(t)

	path1, err := dl.Download(context.Background(), srv1.URL)
	if err != nil {
		t.Fatalf("first download failed: %v", err)
	}
	path2, err := dl.Download(context.Background(), srv2.URL)
	if err != nil {
		t.Fatalf("second download failed: %v", err)
	}

	if path1 == path2 {
		t.Error("expected different paths for different URLs")
	}
	if dl.CurrentPath() != path2 {
		t.Errorf("expected CurrentPath to be %s, got %s", path2, dl.CurrentPath())
	}
}

func TestCleanup(t *testing.T) {
	dl := newTestDownloader(t)
	dir := dl.Dir()

	if err := dl.Cleanup(); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("cache directory still exists after cleanup")
	}
}
