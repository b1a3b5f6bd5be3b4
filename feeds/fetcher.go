// Package feeds retrieves a single source and normalizes it into a FeedRenderResult
package feeds

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"feedstrip/models"

	"github.com/mmcdole/gofeed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedstrip_fetch_total",
		Help: "The total number of source fetches by outcome",
	}, []string{"outcome"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedstrip_fetch_duration_seconds",
		Help:    "Duration of a single source fetch including parsing",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // Start at 50ms, double each bucket, 10 buckets
	})
)

const maxBodySize = 10 * 1024 * 1024 // 10MB

// Options configures a Fetcher
type Options struct {
	Timeout   time.Duration
	UserAgent string
	// RelayURL, when set, receives every request with the source passed in RelayParam
	RelayURL   string
	RelayParam string
	// MaxItems caps the number of entries kept per feed, 0 keeps all
	MaxItems int
	// Client overrides the default HTTP client
	Client *http.Client
}

type Fetcher struct {
	client     *http.Client
	sanitizer  *Sanitizer
	userAgent  string
	relay      *url.URL
	relayParam string
	maxItems   int
}

func NewFetcher(opts Options) (*Fetcher, error) {
	f := &Fetcher{
		client:     opts.Client,
		sanitizer:  NewSanitizer(),
		userAgent:  opts.UserAgent,
		relayParam: opts.RelayParam,
		maxItems:   opts.MaxItems,
	}

	if f.client == nil {
		f.client = newHTTPClient(opts.Timeout)
	}
	if f.relayParam == "" {
		f.relayParam = "url"
	}

	if opts.RelayURL != "" {
		relay, err := url.Parse(opts.RelayURL)
		if err != nil || !relay.IsAbs() {
			return nil, fmt.Errorf("invalid relay url %q", opts.RelayURL)
		}
		f.relay = relay
	}

	return f, nil
}

// Fetch retrieves and parses the source. It never returns an error: every
// failure is reported as a Failed result.
func (f *Fetcher) Fetch(ctx context.Context, identity string) models.FeedRenderResult {
	start := time.Now()
	result := f.fetch(ctx, identity)
	fetchDuration.Observe(time.Since(start).Seconds())

	outcome := "ok"
	if !result.OK() {
		outcome = string(result.Reason)
	}
	fetchTotal.WithLabelValues(outcome).Inc()

	return result
}

func (f *Fetcher) fetch(ctx context.Context, identity string) models.FeedRenderResult {
	body, err := f.retrieve(ctx, identity)
	if err != nil {
		return f.fail(identity, models.NetworkError, err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return f.fail(identity, models.ParseError, err)
	}

	title := f.sanitizer.Text(feed.Title)
	if title == "" {
		return f.fail(identity, models.MalformedFeed, errors.New("feed has no title"))
	}

	base, _ := url.Parse(identity)
	items := make([]models.FeedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		if f.maxItems > 0 && len(items) >= f.maxItems {
			break
		}
		items = append(items, f.extractItem(base, item))
	}

	log.WithFields(log.Fields{
		"source": identity,
		"title":  title,
		"items":  len(items),
	}).Debug("Fetched feed")

	return models.Ok(identity, title, items)
}

func (f *Fetcher) retrieve(ctx context.Context, identity string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.requestURL(identity), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}

// requestURL routes the source through the relay when one is configured
func (f *Fetcher) requestURL(identity string) string {
	if f.relay == nil {
		return identity
	}
	target := *f.relay
	query := target.Query()
	query.Set(f.relayParam, identity)
	target.RawQuery = query.Encode()
	return target.String()
}

func (f *Fetcher) fail(identity string, kind models.ErrorKind, err error) models.FeedRenderResult {
	log.WithFields(log.Fields{
		"source": identity,
		"reason": kind,
		"error":  err,
	}).Warn("Error fetching feed")
	return models.Failed(identity, kind)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
