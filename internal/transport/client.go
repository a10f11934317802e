// Package transport implements the conditional HTTP fetcher behind update
// checks: no-cache request semantics plus an "only if modified" precondition
// backed by a per-URL validator cache.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	updateagent "github.com/scriptward/UpdateAgent"
)

const defaultTimeout = 30 * time.Second

// maxBodySize bounds how much of a response is read; userscripts are text
// files, anything larger is treated as a transport failure.
const maxBodySize = 8 << 20

// StatusError reports a non-success HTTP response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.URL)
}

type validator struct {
	etag         string
	lastModified string
}

// Client fetches script descriptors and payloads. It remembers the ETag and
// Last-Modified validators of each URL it has successfully fetched, so a
// later fetch with OnlyIfModified set turns into a conditional request.
type Client struct {
	httpClient *http.Client

	mu         sync.Mutex
	validators map[string]validator
}

// NewClient builds a Client. A nil httpClient gets a default with a timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		httpClient: httpClient,
		validators: make(map[string]validator),
	}
}

// FetchIfNewer performs a GET for url. An empty body with a nil error means
// the precondition hit and the resource is unchanged. Non-2xx responses are
// returned as *StatusError carrying status and URL.
func (c *Client) FetchIfNewer(ctx context.Context, url string, opts updateagent.FetchOptions) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", errors.New("fetch url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "build fetch request")
	}
	if opts.Accept != "" {
		req.Header.Set("Accept", opts.Accept)
	}
	if opts.NoCache {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}
	if opts.OnlyIfModified {
		c.mu.Lock()
		known := c.validators[url]
		c.mu.Unlock()
		if known.etag != "" {
			req.Header.Set("If-None-Match", known.etag)
		}
		if known.lastModified != "" {
			req.Header.Set("If-Modified-Since", known.lastModified)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "fetch %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		log.Debug().Str("url", url).Msg("resource not modified")
		return "", nil
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &StatusError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return "", errors.Wrapf(err, "read response body of %s", url)
	}
	if len(body) > maxBodySize {
		return "", errors.Errorf("response body of %s exceeds %d bytes", url, maxBodySize)
	}

	c.remember(url, resp.Header)
	return string(body), nil
}

func (c *Client) remember(url string, header http.Header) {
	known := validator{
		etag:         strings.TrimSpace(header.Get("ETag")),
		lastModified: strings.TrimSpace(header.Get("Last-Modified")),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if known == (validator{}) {
		delete(c.validators, url)
		return
	}
	c.validators[url] = known
}
