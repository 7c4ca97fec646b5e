package main

import (
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
)

func loadFeatureCollection(path string) ([]*Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, errors.Wrap(err, "read geojson")
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err == nil {
		return FeaturesFromCollection(fc), nil
	}

	f, ferr := geojson.UnmarshalFeature(data)
	if ferr == nil {
		return FeaturesFromCollection(&geojson.FeatureCollection{Features: []*geojson.Feature{f}}), nil
	}

	g, gerr := geojson.UnmarshalGeometry(data)
	if gerr == nil {
		return FeaturesFromCollection(&geojson.FeatureCollection{
			Features: []*geojson.Feature{geojson.NewFeature(g.Geometry())},
		}), nil
	}

	return nil, errors.Wrap(err, "unmarshal geojson")
}

// writeImage encodes the canvas into the configured format and persists
// it at path, creating parent directories as needed.
func writeImage(img image.Image, format string, quality int, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return errors.Wrap(err, "create output directory")
		}
	}
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create output file")
	}

	switch format {
	case JPG:
		if quality <= 0 || quality > 100 {
			quality = 90
		}
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: quality})
	default:
		err = png.Encode(out, img)
	}
	if err != nil {
		out.Close()
		return errors.Wrap(err, "encode image")
	}
	return out.Close()
}
