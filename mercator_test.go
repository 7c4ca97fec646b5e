package main

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoToWorldOrigin(t *testing.T) {
	x, y := geoToWorld(0, 0, 0)
	assert.InDelta(t, 128.0, x, 1e-9)
	assert.InDelta(t, 128.0, y, 1e-9)
}

func TestGeoToWorldZoomScales(t *testing.T) {
	x0, y0 := geoToWorld(12.5, 42.1, 3)
	x1, y1 := geoToWorld(12.5, 42.1, 4)
	assert.InDelta(t, x0*2, x1, 1e-6)
	assert.InDelta(t, y0*2, y1, 1e-6)
}

func TestGeoToWorldClampsLatitude(t *testing.T) {
	_, yPole := geoToWorld(0, 90, 5)
	_, yEdge := geoToWorld(0, MercatorLatMax, 5)
	require.False(t, math.IsInf(yPole, 0))
	assert.InDelta(t, yEdge, yPole, 1e-9)

	_, ySouth := geoToWorld(0, -90, 5)
	_, ySouthEdge := geoToWorld(0, -MercatorLatMax, 5)
	assert.InDelta(t, ySouthEdge, ySouth, 1e-9)
}

func TestDeriveTransformCentersBound(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{1, 1}}
	tp := deriveTransform(bound, 8, 512, 512)

	// the bound's center lands on the image center
	cx, cy := tp.geoToPixel(0, 0)
	assert.InDelta(t, 256.0, cx, 0.5)
	assert.InDelta(t, 256.0, cy, 0.5)
}

func TestDeriveTransformCornersInsideImage(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{8.1, 47.2}, Max: orb.Point{9.3, 48.0}}
	for _, zoom := range []int{4, 8, 12} {
		tp := deriveTransform(bound, zoom, 800, 600)
		for _, corner := range []orb.Point{
			bound.Min, bound.Max,
			{bound.Min[0], bound.Max[1]},
			{bound.Max[0], bound.Min[1]},
		} {
			px, py := tp.geoToPixel(corner[0], corner[1])
			assert.GreaterOrEqual(t, px, -0.5)
			assert.GreaterOrEqual(t, py, -0.5)
			assert.LessOrEqual(t, px, 800.5)
			assert.LessOrEqual(t, py, 600.5)
		}
	}
}

func TestDeriveTransformUniformScale(t *testing.T) {
	// a wide bound must not be stretched vertically
	bound := orb.Bound{Min: orb.Point{-10, -1}, Max: orb.Point{10, 1}}
	tp := deriveTransform(bound, 6, 400, 400)

	x0, _ := tp.geoToPixel(bound.Min[0], bound.Min[1])
	x1, _ := tp.geoToPixel(bound.Max[0], bound.Min[1])
	_, yTop := tp.geoToPixel(bound.Min[0], bound.Max[1])
	_, yBottom := tp.geoToPixel(bound.Min[0], bound.Min[1])

	width := x1 - x0
	height := yBottom - yTop
	require.Greater(t, width, height)
	assert.InDelta(t, 400.0, width, 0.5)
}

func TestWorldToPixelSharedTransform(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{1, 1}}
	tp := deriveTransform(bound, 10, 512, 512)

	// tile placement and feature placement agree on the same world point
	wx, wy := geoToWorld(0.5, 0.5, 10)
	px1, py1 := tp.worldToPixel(wx, wy)
	px2, py2 := tp.geoToPixel(0.5, 0.5)
	assert.Equal(t, px1, px2)
	assert.Equal(t, py1, py2)
}
