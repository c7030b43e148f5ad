package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const maxFeedBytes = 50 << 20 // 50 MiB

var (
	// ErrFeedUnavailable marks a feed that could not be fetched after all
	// retries. The aggregator treats it as an empty contribution.
	ErrFeedUnavailable = errors.New("feed unavailable")
	errMalformedFeed   = errors.New("malformed feed payload")
	errFeedTooLarge    = errors.New("feed exceeds maximum size")
)

// FeedPayload is one of ProtocolList, ThreeWayList or DirectoryList.
type FeedPayload interface {
	feedPayload()
}

// Protocol is a listed protocol; TVL is its relevance metric.
type Protocol struct {
	URL string  `json:"url"`
	TVL float64 `json:"tvl"`
}

// ProtocolList contributes protocol hostnames to the allow-list and the seeds.
type ProtocolList struct {
	Protocols []Protocol
}

// ThreeWayList is a crowd-maintained phishing configuration.
type ThreeWayList struct {
	Fuzzylist []string
	Whitelist []string
	Blacklist []string
}

// DirectoryList is a curated directory; only the whitelist is mandatory.
type DirectoryList struct {
	Version   int
	Whitelist []string
	Blacklist []string
	Fuzzylist []string
}

func (ProtocolList) feedPayload()  {}
func (ThreeWayList) feedPayload()  {}
func (DirectoryList) feedPayload() {}

// Feed is an external domain list source.
type Feed interface {
	Name() string
	Fetch(ctx context.Context) (FeedPayload, error)
}

// HTTPFeed fetches and decodes a JSON feed over HTTP.
type HTTPFeed struct {
	name   string
	url    string
	client *http.Client
	decode func(body io.Reader) (FeedPayload, error)
}

func (f *HTTPFeed) Name() string { return f.name }

func (f *HTTPFeed) Fetch(ctx context.Context) (FeedPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("HTTP %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	lr := &io.LimitedReader{R: resp.Body, N: maxFeedBytes + 1}
	payload, err := f.decode(lr)
	if lr.N == 0 {
		return nil, backoff.Permanent(errFeedTooLarge)
	}
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return payload, nil
}

func newHTTPFeed(name, url string, client *http.Client, decode func(io.Reader) (FeedPayload, error)) *HTTPFeed {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPFeed{name: name, url: url, client: client, decode: decode}
}

// NewProtocolsFeed reads a protocol directory of the form
// {"protocols":[{"url":"...","tvl":123}]}.
func NewProtocolsFeed(url string, client *http.Client) *HTTPFeed {
	return newHTTPFeed("protocols", url, client, decodeProtocols)
}

// NewPhishingConfigFeed reads a {fuzzylist, whitelist, blacklist} config.
func NewPhishingConfigFeed(url string, client *http.Client) *HTTPFeed {
	return newHTTPFeed("phishing-config", url, client, decodeThreeWay)
}

// NewDirectoryFeed reads a {version, whitelist, blacklist?, fuzzylist?} directory.
func NewDirectoryFeed(url string, client *http.Client) *HTTPFeed {
	return newHTTPFeed("directory", url, client, decodeDirectory)
}

func decodeProtocols(body io.Reader) (FeedPayload, error) {
	var raw struct {
		Protocols []Protocol `json:"protocols"`
	}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedFeed, err)
	}
	if raw.Protocols == nil {
		return nil, fmt.Errorf("%w: missing protocols", errMalformedFeed)
	}
	return ProtocolList{Protocols: raw.Protocols}, nil
}

func decodeThreeWay(body io.Reader) (FeedPayload, error) {
	var raw struct {
		Fuzzylist []string `json:"fuzzylist"`
		Whitelist []string `json:"whitelist"`
		Blacklist []string `json:"blacklist"`
	}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedFeed, err)
	}
	if raw.Fuzzylist == nil && raw.Whitelist == nil && raw.Blacklist == nil {
		return nil, fmt.Errorf("%w: no lists present", errMalformedFeed)
	}
	return ThreeWayList{Fuzzylist: raw.Fuzzylist, Whitelist: raw.Whitelist, Blacklist: raw.Blacklist}, nil
}

func decodeDirectory(body io.Reader) (FeedPayload, error) {
	var raw struct {
		Version   int      `json:"version"`
		Whitelist []string `json:"whitelist"`
		Blacklist []string `json:"blacklist"`
		Fuzzylist []string `json:"fuzzylist"`
	}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedFeed, err)
	}
	if raw.Whitelist == nil {
		return nil, fmt.Errorf("%w: missing whitelist", errMalformedFeed)
	}
	return DirectoryList{
		Version:   raw.Version,
		Whitelist: raw.Whitelist,
		Blacklist: raw.Blacklist,
		Fuzzylist: raw.Fuzzylist,
	}, nil
}
