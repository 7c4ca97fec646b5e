package main

import (
	"math"

	"github.com/paulmach/orb"
)

//MercatorLatMax valid latitude range of the Web Mercator projection
const MercatorLatMax = 85.0511

// clampLat keeps latitude inside the Web Mercator domain so the
// projection never produces an infinity.
func clampLat(lat float64) float64 {
	if lat > MercatorLatMax {
		return MercatorLatMax
	}
	if lat < -MercatorLatMax {
		return -MercatorLatMax
	}
	return lat
}

// geoToWorld projects a lon/lat pair to world pixel space at the given
// zoom. World space spans 2^zoom * TileSize pixels on each axis, Y grows
// southward.
func geoToWorld(lon, lat float64, zoom int) (float64, float64) {
	worldSize := math.Exp2(float64(zoom)) * TileSize
	latRad := clampLat(lat) * math.Pi / 180.0
	x := (lon + 180.0) / 360.0 * worldSize
	y := (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * worldSize
	return x, y
}

//TransformParams maps world pixel space onto one target image.
//Derived once per render and shared by tile and feature placement so
//both land on identical pixels.
type TransformParams struct {
	Zoom    int
	MinX    float64
	MinY    float64
	Scale   float64
	OffsetX float64
	OffsetY float64
}

// deriveTransform fits the bound onto a width x height image. The
// geographic min-Y corner projects to the larger world Y, so the world
// extents are reordered before the scale is computed. A single uniform
// scale preserves aspect ratio; the leftover space centers the bound on
// both axes.
func deriveTransform(bound orb.Bound, zoom, width, height int) TransformParams {
	x0, y0 := geoToWorld(bound.Min[0], bound.Min[1], zoom)
	x1, y1 := geoToWorld(bound.Max[0], bound.Max[1], zoom)
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	if x1 < x0 {
		x0, x1 = x1, x0
	}

	// A degenerate bound (single point) still needs a finite scale.
	worldW := math.Max(x1-x0, 1e-9)
	worldH := math.Max(y1-y0, 1e-9)
	scale := math.Min(float64(width)/worldW, float64(height)/worldH)

	return TransformParams{
		Zoom:    zoom,
		MinX:    x0,
		MinY:    y0,
		Scale:   scale,
		OffsetX: (float64(width) - worldW*scale) / 2.0,
		OffsetY: (float64(height) - worldH*scale) / 2.0,
	}
}

// worldToPixel applies the transform to a world space coordinate.
func (t TransformParams) worldToPixel(wx, wy float64) (float64, float64) {
	return (wx-t.MinX)*t.Scale + t.OffsetX, (wy-t.MinY)*t.Scale + t.OffsetY
}

// geoToPixel is the composition used when drawing features.
func (t TransformParams) geoToPixel(lon, lat float64) (float64, float64) {
	wx, wy := geoToWorld(lon, lat, t.Zoom)
	return t.worldToPixel(wx, wy)
}
