package main

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

//TileFetcher single capability every basemap source provides
type TileFetcher interface {
	FetchTile(ctx context.Context, x, y, zoom int) (image.Image, error)
	TileSize() int
}

// defaults for the HTTP source; the tiles.* config keys override them
// when the source is built through tileFetcherFromConf.
const (
	defaultWorkers      = 4
	defaultMinInterval  = 100 * time.Millisecond
	defaultFetchRetries = 3
	defaultHTTPTimeout  = 30 * time.Second
)

//TileSource fetches XYZ raster tiles over HTTP from a {z}/{x}/{y}
//URL template. One instance may serve many renders; it keeps no tile
//state between calls, only its configuration and pacing gate.
type TileSource struct {
	urlTemplate string
	client      *http.Client
	minZoom     int
	maxZoom     int
	retries     int
	retryUnit   time.Duration

	sem chan struct{}

	// pacing gate: successive request dispatches across the whole
	// instance are spaced at least minInterval apart
	mu           sync.Mutex
	lastDispatch time.Time
	minInterval  time.Duration
}

//NewTileSource creates an HTTP tile source with the default politeness
//settings: 4 concurrent requests, 100ms between dispatch starts, 3
//attempts per tile, 30s request timeout
func NewTileSource(urlTemplate string) *TileSource {
	return &TileSource{
		urlTemplate: urlTemplate,
		client:      &http.Client{Timeout: defaultHTTPTimeout},
		minZoom:     ZoomMin,
		maxZoom:     ZoomMax,
		retries:     defaultFetchRetries,
		retryUnit:   time.Second,
		sem:         make(chan struct{}, defaultWorkers),
		minInterval: defaultMinInterval,
	}
}

//TileSize reports the edge length of tiles served by this source
func (s *TileSource) TileSize() int { return TileSize }

func (s *TileSource) tileURL(x, y, zoom int) string {
	url := strings.Replace(s.urlTemplate, "{x}", strconv.Itoa(x), -1)
	url = strings.Replace(url, "{y}", strconv.Itoa(y), -1)
	url = strings.Replace(url, "{z}", strconv.Itoa(zoom), -1)
	return url
}

// validateTile rejects indexes outside the pyramid before any network
// work happens.
func (s *TileSource) validateTile(x, y, zoom int) error {
	if zoom < s.minZoom || zoom > s.maxZoom {
		return &RangeError{What: "zoom", Value: zoom, Min: s.minZoom, Max: s.maxZoom}
	}
	maxIdx := 1<<uint(zoom) - 1
	if x < 0 || x > maxIdx {
		return &RangeError{What: "tile x", Value: x, Min: 0, Max: maxIdx}
	}
	if y < 0 || y > maxIdx {
		return &RangeError{What: "tile y", Value: y, Min: 0, Max: maxIdx}
	}
	return nil
}

// pace blocks until this dispatch is at least minInterval after the
// previous one. The stamp is taken while holding the mutex, so sleeping
// dispatchers queue up behind each other and issuance stays spaced even
// though the requests themselves overlap.
func (s *TileSource) pace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wait := s.minInterval - time.Since(s.lastDispatch); wait > 0 {
		time.Sleep(wait)
	}
	s.lastDispatch = time.Now()
}

//FetchTile downloads and decodes one tile, retrying transient failures
//with exponential backoff. HTTP 429 honors the server's Retry-After
//seconds when present. Exhausted retries fail only this tile.
func (s *TileSource) FetchTile(ctx context.Context, x, y, zoom int) (image.Image, error) {
	if err := s.validateTile(x, y, zoom); err != nil {
		return nil, err
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	url := s.tileURL(x, y, zoom)
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.backoff(lastErr, attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		s.pace()

		img, err := s.fetchOnce(ctx, url)
		if err == nil {
			return img, nil
		}
		lastErr = err
		log.Debugf("tile %d/%d/%d attempt %d failed: %v", zoom, x, y, attempt+1, err)
	}
	return nil, lastErr
}

func (s *TileSource) fetchOnce(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := &NetworkError{URL: url, Status: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil {
				e.Err = &retryAfter{delay: time.Duration(secs) * s.retryUnit}
			}
		}
		return nil, e
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: errors.Wrap(err, "decode tile")}
	}
	return img, nil
}

// retryAfter carries a server-requested delay through the error chain.
type retryAfter struct {
	delay time.Duration
}

func (r *retryAfter) Error() string { return "retry after " + r.delay.String() }

// backoff picks the wait before the given (1-based) retry attempt: a
// Retry-After value when the server sent one, else 2^attempt units.
func (s *TileSource) backoff(lastErr error, attempt int) time.Duration {
	var ra *retryAfter
	if errors.As(lastErr, &ra) {
		return ra.delay
	}
	return time.Duration(1<<uint(attempt)) * s.retryUnit
}
