package main

import (
	"math"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
)

//ZoomAuto sentinel for RenderOptions.Zoom, selects the level automatically
const ZoomAuto = -1

// small-area cutoffs, in degrees of the larger bbox dimension
const (
	zoomCutoffTiny   = 0.01
	zoomCutoffSmall  = 0.05
	zoomCutoffMedium = 0.2
)

// selectZoom picks the integer zoom that fits the bound into a width x
// height image. Tiny bounds short-circuit to fixed levels because the
// scan below is unstable on near-degenerate boxes. Otherwise the bound
// gets a 10% buffer for visual context and the scan returns the highest
// zoom at which the buffered bound occupies under half of each target
// dimension, so one step further in would still fit.
func selectZoom(bound orb.Bound, width, height int) int {
	maxDim := math.Max(bound.Max[0]-bound.Min[0], bound.Max[1]-bound.Min[1])

	switch {
	case maxDim < zoomCutoffTiny:
		return ZoomMax
	case maxDim < zoomCutoffSmall:
		return 17
	case maxDim < zoomCutoffMedium:
		return 16
	}

	buffered := bufferBound(bound, 10)
	for zoom := ZoomMax; zoom >= ZoomMin; zoom-- {
		x0, y0 := geoToWorld(buffered.Min[0], buffered.Max[1], zoom)
		x1, y1 := geoToWorld(buffered.Max[0], buffered.Min[1], zoom)
		ratio := math.Max((x1-x0)/float64(width), (y1-y0)/float64(height))
		if ratio < 0.5 {
			log.Debugf("zoom %d selected, fit ratio %.3f", zoom, ratio)
			return zoom
		}
	}
	return 10
}
