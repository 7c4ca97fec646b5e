package main

import (
	"bytes"
	"context"
	"database/sql"
	"image"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/paulmach/orb/maptile"
	"github.com/pkg/errors"
)

//MBTilesSource serves basemap tiles from a local MBTiles file instead
//of the network. Read-only; the tiles table uses TMS row order, so Y is
//flipped on lookup.
type MBTilesSource struct {
	db      *sql.DB
	path    string
	minZoom int
	maxZoom int
}

//OpenMBTiles opens an existing MBTiles file as a tile source
func OpenMBTiles(path string) (*MBTilesSource, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &NotFoundError{Path: path}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open mbtiles")
	}
	return &MBTilesSource{db: db, path: path, minZoom: ZoomMin, maxZoom: ZoomMax}, nil
}

//TileSize reports the edge length of tiles served by this source
func (s *MBTilesSource) TileSize() int { return TileSize }

//Close releases the underlying database
func (s *MBTilesSource) Close() error { return s.db.Close() }

//FetchTile reads and decodes one tile; a missing row is a per-tile
//failure, never fatal for the render
func (s *MBTilesSource) FetchTile(ctx context.Context, x, y, zoom int) (image.Image, error) {
	if zoom < s.minZoom || zoom > s.maxZoom {
		return nil, &RangeError{What: "zoom", Value: zoom, Min: s.minZoom, Max: s.maxZoom}
	}
	maxIdx := 1<<uint(zoom) - 1
	if x < 0 || x > maxIdx {
		return nil, &RangeError{What: "tile x", Value: x, Min: 0, Max: maxIdx}
	}
	if y < 0 || y > maxIdx {
		return nil, &RangeError{What: "tile y", Value: y, Min: 0, Max: maxIdx}
	}

	row := Tile{T: maptile.New(uint32(x), uint32(y), maptile.Zoom(zoom))}.flipY()
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"select tile_data from tiles where zoom_level=? and tile_column=? and tile_row=?",
		zoom, x, row).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Path: s.path}
	}
	if err != nil {
		return nil, errors.Wrap(err, "query tile")
	}

	img, _, err := image.Decode(bytes.NewReader(blob))
	if err != nil {
		return nil, errors.Wrap(err, "decode tile")
	}
	return img, nil
}
