// Package hub fetches model artifacts from a Hugging Face compatible registry
// into a local cache directory.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Defaults for the registry client.
const (
	DefaultBaseURL     = "https://huggingface.co"
	DefaultRevision    = "main"
	DefaultNamespace   = "immich-app"
	defaultParallelism = 4
	defaultRetries     = 3
	defaultRetryDelay  = 2 * time.Second
	userAgent          = "inferd/1.0"
)

// Fetcher downloads every file of repo that passes f into dest.
type Fetcher interface {
	Fetch(ctx context.Context, repo, dest string, f Filter) error
}

// File is one entry of a repository listing.
type File struct {
	Name string `json:"rfilename"`
	Size int64  `json:"size"`
}

type modelInfo struct {
	ID       string `json:"id"`
	Siblings []File `json:"siblings"`
}

// Client talks to the registry HTTP API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	token       string
	revision    string
	parallelism int
	retries     int
	retryDelay  time.Duration
	log         zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a registry mirror.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithToken sets the bearer token used for gated repositories.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// WithRevision selects the repository revision.
func WithRevision(rev string) Option {
	return func(c *Client) {
		if rev != "" {
			c.revision = rev
		}
	}
}

// WithParallelism bounds concurrent file downloads.
func WithParallelism(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithRetry sets the per-file attempt count and the delay between attempts.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.retries = attempts
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option { return func(c *Client) { c.log = l } }

// NewClient constructs a registry client. Requests carry no client-level
// timeout; callers bound them with the context.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{},
		baseURL:     DefaultBaseURL,
		revision:    DefaultRevision,
		parallelism: defaultParallelism,
		retries:     defaultRetries,
		retryDelay:  defaultRetryDelay,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RepoName maps a model identity to a registry repository. Bare names live
// under the default namespace.
func RepoName(identity, namespace string) string {
	if strings.Contains(identity, "/") {
		return identity
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return namespace + "/" + identity
}

// ListFiles returns the files of repo at the configured revision.
func (c *Client) ListFiles(ctx context.Context, repo string) ([]File, error) {
	if err := validateRepo(repo); err != nil {
		return nil, fetchErr(KindInvalid, repo, "", err)
	}
	u := fmt.Sprintf("%s/api/models/%s/revision/%s", c.baseURL, repo, url.PathEscape(c.revision))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fetchErr(KindInvalid, repo, "", err)
	}
	c.setHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fetchErr(KindNetwork, repo, "", err)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp, repo, ""); err != nil {
		return nil, err
	}
	var info modelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fetchErr(KindInvalid, repo, "", fmt.Errorf("decode listing: %w", err))
	}
	return info.Siblings, nil
}

// Fetch downloads the filtered file set of repo into dest.
func (c *Client) Fetch(ctx context.Context, repo, dest string, f Filter) error {
	start := time.Now()
	files, err := c.ListFiles(ctx, repo)
	if err != nil {
		return err
	}
	var selected []File
	for _, file := range files {
		if f.Allows(file.Name) {
			selected = append(selected, file)
		}
	}
	if len(selected) == 0 {
		return fetchErr(KindNotFound, repo, "", errors.New("no files match the fetch filter"))
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fetchErr(KindDisk, repo, "", err)
	}
	c.log.Debug().Str("repo", repo).Int("files", len(selected)).Str("dest", dest).Msg("fetch start")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for _, file := range selected {
		file := file
		g.Go(func() error {
			return c.fetchFile(gctx, repo, file, dest)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.log.Info().Str("repo", repo).Int("files", len(selected)).Dur("dur", time.Since(start)).Msg("fetch done")
	return nil
}

func (c *Client) fetchFile(ctx context.Context, repo string, file File, dest string) error {
	target, err := safeJoin(dest, file.Name)
	if err != nil {
		return fetchErr(KindInvalid, repo, file.Name, err)
	}
	if fi, err := os.Stat(target); err == nil && file.Size > 0 && fi.Size() == file.Size {
		return nil
	}
	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fetchErr(KindNetwork, repo, file.Name, ctx.Err())
			case <-time.After(c.retryDelay):
			}
		}
		lastErr = c.download(ctx, repo, file.Name, target)
		if lastErr == nil {
			return nil
		}
		// only transient network failures are retried
		if KindOf(lastErr) != KindNetwork || ctx.Err() != nil {
			return lastErr
		}
		c.log.Warn().Str("repo", repo).Str("file", file.Name).Int("attempt", attempt+1).Err(lastErr).Msg("fetch retry")
	}
	return lastErr
}

func (c *Client) download(ctx context.Context, repo, name, target string) error {
	u := fmt.Sprintf("%s/%s/resolve/%s/%s", c.baseURL, repo, url.PathEscape(c.revision), name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fetchErr(KindInvalid, repo, name, err)
	}
	c.setHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fetchErr(KindNetwork, repo, name, err)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp, repo, name); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fetchErr(KindDisk, repo, name, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return fetchErr(KindDisk, repo, name, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		return fetchErr(copyErrKind(err), repo, name, err)
	}
	if err := tmp.Close(); err != nil {
		return fetchErr(KindDisk, repo, name, err)
	}
	tmp = nil
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fetchErr(KindDisk, repo, name, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func classifyStatus(resp *http.Response, repo, file string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fetchErr(KindNotFound, repo, file, nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fetchErr(KindUnauthorized, repo, file, nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fetchErr(KindNetwork, repo, file, fmt.Errorf("status %d", resp.StatusCode))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fetchErr(KindInvalid, repo, file, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
}

// copyErrKind separates local write failures (disk full, permissions) from
// a connection dropping mid-body.
func copyErrKind(err error) Kind {
	var pe *os.PathError
	if errors.As(err, &pe) || errors.Is(err, syscall.ENOSPC) {
		return KindDisk
	}
	return KindNetwork
}

func validateRepo(repo string) error {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid repository %q, expected 'owner/name'", repo)
	}
	return nil
}

// safeJoin joins a repository path onto dest, rejecting names that escape it.
func safeJoin(dest, name string) (string, error) {
	p := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("file %q escapes destination", name)
	}
	return p, nil
}
