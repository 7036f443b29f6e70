// Package pond reads the "audio pond": a public S3-compatible bucket of
// shared samples.
package pond

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	ErrDisabled = errors.New("audio pond not configured")
	ErrNotFound = errors.New("pond object not found")
)

// maxObjectBytes caps a single fetched sample.
const maxObjectBytes = 64 << 20

var audioExt = regexp.MustCompile(`(?i)\.(wav|mp3|ogg|flac|aac)$`)

// Object is one listed sample.
type Object struct {
	Key          string    `json:"key"`
	Title        string    `json:"title"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Client lists and fetches pond samples anonymously over HTTP.
type Client struct {
	baseURL string
	prefix  string
	http    *http.Client

	mu    sync.RWMutex
	cache map[string][]byte
	group singleflight.Group
}

// NewClient creates a pond client for the bucket at baseURL. An empty
// baseURL yields a client whose calls return ErrDisabled.
func NewClient(baseURL, prefix string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  prefix,
		http:    &http.Client{Timeout: 30 * time.Second},
		cache:   make(map[string][]byte),
	}
}

// Enabled reports whether a bucket is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

type listResult struct {
	IsTruncated           bool   `xml:"IsTruncated"`
	NextContinuationToken string `xml:"NextContinuationToken"`
	Contents              []struct {
		Key          string    `xml:"Key"`
		LastModified time.Time `xml:"LastModified"`
		Size         int64     `xml:"Size"`
	} `xml:"Contents"`
}

// List returns every audio object under the prefix, newest first.
func (c *Client) List(ctx context.Context) ([]Object, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	var objects []Object
	token := ""
	for {
		q := url.Values{"list-type": {"2"}, "prefix": {c.prefix}}
		if token != "" {
			q.Set("continuation-token", token)
		}
		var page listResult
		if err := c.getXML(ctx, c.baseURL+"/?"+q.Encode(), &page); err != nil {
			return nil, fmt.Errorf("list pond: %w", err)
		}
		for _, o := range page.Contents {
			if !audioExt.MatchString(o.Key) {
				continue
			}
			objects = append(objects, Object{
				Key:          o.Key,
				Title:        DisplayTitle(o.Key),
				Size:         o.Size,
				LastModified: o.LastModified,
			})
		}
		if !page.IsTruncated || page.NextContinuationToken == "" {
			break
		}
		token = page.NextContinuationToken
	}

	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})
	return objects, nil
}

// Fetch downloads an object's bytes. Results are cached for the life of the
// client, and concurrent fetches of one key share a single request.
func (c *Client) Fetch(ctx context.Context, key string) ([]byte, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	c.mu.RLock()
	data, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return data, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		data, err := c.get(ctx, c.objectURL(key))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[key] = data
		c.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	return v.([]byte), nil
}

// Forget drops a key from the fetch cache.
func (c *Client) Forget(key string) {
	c.mu.Lock()
	delete(c.cache, key)
	c.mu.Unlock()
}

func (c *Client) objectURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return c.baseURL + "/" + path.Join(parts...)
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxObjectBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxObjectBytes {
		return nil, fmt.Errorf("object larger than %d bytes", maxObjectBytes)
	}
	return data, nil
}

func (c *Client) getXML(ctx context.Context, u string, v any) error {
	data, err := c.get(ctx, u)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode listing: %w", err)
	}
	return nil
}
