// ABOUTME: Artwork cache for now-playing images
// ABOUTME: Downloads artwork URLs once into a local directory keyed by URL hash
package artwork

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	dirName         = "sendspin-artwork"
	defaultTimeout  = 10 * time.Second
	maxArtworkBytes = 10 << 20
)

// ErrTooLarge is returned when an image exceeds the size limit
var ErrTooLarge = errors.New("artwork too large")

// Option configures a Downloader
type Option func(*Downloader)

// WithDir stores artwork under dir instead of the temp directory
func WithDir(dir string) Option {
	return func(d *Downloader) {
		if dir != "" {
			d.cacheDir = dir
		}
	}
}

// WithHTTPClient sets the client used for downloads
func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) {
		if client != nil {
			d.client = client
		}
	}
}

// WithLogger sets the downloader logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Downloader) {
		if logger != nil {
			d.log = logger
		}
	}
}

// Downloader manages artwork downloads
type Downloader struct {
	cacheDir string
	client   *http.Client
	log      *zap.Logger

	mu          sync.Mutex
	currentPath string
}

// NewDownloader creates the cache directory and returns a downloader for it
func NewDownloader(opts ...Option) (*Downloader, error) {
	d := &Downloader{
		cacheDir: filepath.Join(os.TempDir(), dirName),
		client:   &http.Client{Timeout: defaultTimeout},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := os.MkdirAll(d.cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return d, nil
}

// Dir returns the cache directory
func (d *Downloader) Dir() string {
	return d.cacheDir
}

// Download fetches artwork into the cache and returns its path. An empty URL
// clears the current artwork.
func (d *Downloader) Download(ctx context.Context, url string) (string, error) {
	if url == "" {
		d.setCurrent("")
		return "", nil
	}

	cachePath := d.pathFor(url)

	if _, err := os.Stat(cachePath); err == nil {
		d.log.Debug("artwork cache hit", zap.String("path", cachePath))
		d.setCurrent(cachePath)
		return cachePath, nil
	}

	d.log.Debug("downloading artwork", zap.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to download artwork: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download artwork: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("artwork download failed: HTTP %d", resp.StatusCode)
	}

	// Written under a temporary name so a partial file is never a cache hit
	tmp, err := os.CreateTemp(d.cacheDir, "partial-*")
	if err != nil {
		return "", fmt.Errorf("failed to create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxArtworkBytes+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to save artwork: %w", err)
	}
	if n > maxArtworkBytes {
		return "", fmt.Errorf("%w: over %d bytes", ErrTooLarge, maxArtworkBytes)
	}

	if err := os.Rename(tmp.Name(), cachePath); err != nil {
		return "", fmt.Errorf("failed to save artwork: %w", err)
	}

	d.log.Info("artwork saved", zap.String("path", cachePath), zap.Int64("bytes", n))
	d.setCurrent(cachePath)
	return cachePath, nil
}

// CurrentPath returns the path of the most recent artwork
func (d *Downloader) CurrentPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentPath
}

func (d *Downloader) setCurrent(path string) {
	d.mu.Lock()
	d.currentPath = path
	d.mu.Unlock()
}

func (d *Downloader) pathFor(url string) string {
	hash := sha256.Sum256([]byte(url))
	return filepath.Join(d.cacheDir, fmt.Sprintf("%x%s", hash[:8], getExtension(url)))
}

// getExtension extracts the file extension from a URL, defaulting to .jpg
func getExtension(url string) string {
	url, _, _ = strings.Cut(url, "?")

	ext := filepath.Ext(url)
	if ext == "" {
		ext = ".jpg"
	}
	return strings.ToLower(ext)
}

// Cleanup removes the cache directory
func (d *Downloader) Cleanup() error {
	d.setCurrent("")
	return os.RemoveAll(d.cacheDir)
}
