// Package client reads the platform microservices the import wizard depends on.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config locates the microservices.
type Config struct {
	StudiesURL  string
	DatasetsURL string
	ImportURL   string
	// Token is forwarded as a bearer token when set.
	Token      string
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Client implements the study, center, examination, converter and image lookups.
type Client struct {
	studiesURL  string
	datasetsURL string
	importURL   string
	token       string
	http        *http.Client
	log         logrus.FieldLogger
}

// StatusError is returned for any non-2xx answer.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// New returns a client for cfg.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		studiesURL:  strings.TrimSuffix(cfg.StudiesURL, "/"),
		datasetsURL: strings.TrimSuffix(cfg.DatasetsURL, "/"),
		importURL:   strings.TrimSuffix(cfg.ImportURL, "/"),
		token:       cfg.Token,
		http:        httpClient,
		log:         log.WithField("module", "client"),
	}
}

func (c *Client) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// getJSON decodes the body of u into out. An empty answer leaves out untouched.
func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	c.log.WithField("url", u).Debug("backend lookup")
	resp, err := c.get(ctx, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s: %w", u, err)
	}
	return nil
}

func join(base string, elems ...string) string {
	escaped := make([]string, len(elems))
	for i, e := range elems {
		escaped[i] = url.PathEscape(e)
	}
	return base + "/" + strings.Join(escaped, "/")
}
