package main

import (
	"image"

	"github.com/paulmach/orb/maptile"
)

//TileSize raster tile edge length in pixels
const TileSize = 256

//ZoomMin lowest usable zoom level
const ZoomMin = 0

//ZoomMax highest usable zoom level
const ZoomMax = 19

//Tile one fetched basemap tile, decoded and ready to composite
type Tile struct {
	T   maptile.Tile
	Img image.Image
}

func (tile Tile) flipY() uint32 {
	return uint32(1)<<tile.T.Z - 1 - tile.T.Y
}

func maptileAt(x, y, zoom int) maptile.Tile {
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(zoom))
}

// Constants representing output image formats
const (
	PNG string = "png"
	JPG        = "jpg"
)
