package main

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

//Feature one renderable vector feature
type Feature struct {
	ID         string
	Geometry   orb.Geometry
	Properties geojson.Properties
	Selected   bool
}

//FeaturesFromCollection wraps a decoded GeoJSON collection, keeping order
func FeaturesFromCollection(fc *geojson.FeatureCollection) []*Feature {
	features := make([]*Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		id := ""
		if f.ID != nil {
			id = fmt.Sprint(f.ID)
		}
		features = append(features, &Feature{
			ID:         id,
			Geometry:   f.Geometry,
			Properties: f.Properties,
		})
	}
	return features
}

//MarkSelected flags features whose id is listed or whose property named
//prop equals value; returns the number of selected features
func MarkSelected(features []*Feature, ids []string, prop, value string) int {
	idSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	count := 0
	for _, f := range features {
		if _, ok := idSet[f.ID]; ok {
			f.Selected = true
		} else if prop != "" && fmt.Sprint(f.Properties[prop]) == value {
			f.Selected = true
		}
		if f.Selected {
			count++
		}
	}
	return count
}

//FeatureBound unions the bounds of the selected features, or of all
//features when none is selected, then expands by bufferPct percent
func FeatureBound(features []*Feature, bufferPct float64) (orb.Bound, error) {
	bound := orb.Bound{}
	first := true
	any := func(selectedOnly bool) bool {
		found := false
		for _, f := range features {
			if selectedOnly && !f.Selected {
				continue
			}
			if f.Geometry == nil {
				continue
			}
			b := f.Geometry.Bound()
			if first {
				bound = b
				first = false
			} else {
				bound = bound.Union(b)
			}
			found = true
		}
		return found
	}
	if !any(true) && !any(false) {
		return bound, &ValidationError{Field: "features", Reason: "no feature has a geometry"}
	}
	bound = bufferBound(bound, bufferPct)
	if err := validBound(bound); err != nil {
		return bound, err
	}
	return bound, nil
}

// bufferBound grows a bound by pct percent of each dimension.
func bufferBound(bound orb.Bound, pct float64) orb.Bound {
	if pct <= 0 {
		return bound
	}
	dx := (bound.Max[0] - bound.Min[0]) * pct / 100.0
	dy := (bound.Max[1] - bound.Min[1]) * pct / 100.0
	return orb.Bound{
		Min: orb.Point{bound.Min[0] - dx, bound.Min[1] - dy},
		Max: orb.Point{bound.Max[0] + dx, bound.Max[1] + dy},
	}
}

func validBound(bound orb.Bound) error {
	vals := []float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: "bbox", Reason: "coordinates must be finite"}
		}
	}
	if bound.Max[0] < bound.Min[0] || bound.Max[1] < bound.Min[1] {
		return &ValidationError{Field: "bbox", Reason: "max must not be below min"}
	}
	return nil
}
