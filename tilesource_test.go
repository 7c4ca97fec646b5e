package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tilePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, TileSize, TileSize))
	gray := color.RGBA{R: 0x7F, G: 0x7F, B: 0x7F, A: 0xFF}
	draw.Draw(img, img.Bounds(), image.NewUniform(gray), image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fastSource strips the politeness delays so tests stay quick.
func fastSource(url string) *TileSource {
	s := NewTileSource(url)
	s.minInterval = 0
	s.retryUnit = time.Millisecond
	return s
}

func TestFetchTileRangeErrorBeforeNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	s := fastSource(srv.URL + "/{z}/{x}/{y}.png")
	_, err := s.FetchTile(context.Background(), 32, 32, 5)
	require.Error(t, err)
	var re *RangeError
	assert.True(t, errors.As(err, &re))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "no network call may happen")

	_, err = s.FetchTile(context.Background(), 0, 0, 25)
	assert.True(t, errors.As(err, &re))
}

func TestFetchTileSuccess(t *testing.T) {
	data := tilePNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/5/11/9.png", r.URL.Path)
		w.Write(data)
	}))
	defer srv.Close()

	s := fastSource(srv.URL + "/{z}/{x}/{y}.png")
	img, err := s.FetchTile(context.Background(), 11, 9, 5)
	require.NoError(t, err)
	assert.Equal(t, TileSize, img.Bounds().Dx())
}

func TestFetchTileRetriesTransientFailure(t *testing.T) {
	data := tilePNG(t)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	s := fastSource(srv.URL + "/{z}/{x}/{y}.png")
	img, err := s.FetchTile(context.Background(), 0, 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, img)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchTileHonorsRetryAfter(t *testing.T) {
	data := tilePNG(t)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	s := fastSource(srv.URL + "/{z}/{x}/{y}.png")
	_, err := s.FetchTile(context.Background(), 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchTileExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := fastSource(srv.URL + "/{z}/{x}/{y}.png")
	_, err := s.FetchTile(context.Background(), 0, 0, 0)
	require.Error(t, err)
	var ne *NetworkError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, http.StatusInternalServerError, ne.Status)
	assert.Equal(t, int32(defaultFetchRetries), atomic.LoadInt32(&calls))
}

func TestFetchTilePacesDispatches(t *testing.T) {
	data := tilePNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	s := fastSource(srv.URL + "/{z}/{x}/{y}.png")
	s.minInterval = 30 * time.Millisecond

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := s.FetchTile(context.Background(), i, 0, 2)
		require.NoError(t, err)
	}
	// three dispatches, so at least two full intervals
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestFetchTileBoundedConcurrency(t *testing.T) {
	data := tilePNG(t)
	var inflight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		w.Write(data)
	}))
	defer srv.Close()

	s := fastSource(srv.URL + "/{z}/{x}/{y}.png")
	s.sem = make(chan struct{}, 2)

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(x int) {
			_, err := s.FetchTile(context.Background(), x, 0, 4)
			done <- err
		}(i)
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}
