package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	log "github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	pb "gopkg.in/cheggaaa/pb.v1"
)

//RenderOptions immutable per-call rendering knobs
type RenderOptions struct {
	Width      int
	Height     int
	Format     string // PNG or JPG
	Quality    int    // JPEG only, 0-100
	Zoom       int    // ZoomAuto selects automatically
	Basemap    bool
	OutputPath string
	Progress   bool // progress bar over the tile fan-out
}

//Renderer rasterizes features over an optional tile basemap
type Renderer struct {
	tiles TileFetcher
}

//NewRenderer creates a renderer; tiles may be nil when no basemap is
//ever requested
func NewRenderer(tiles TileFetcher) *Renderer {
	return &Renderer{tiles: tiles}
}

//Render produces one image from the features and returns the output
//path. Tile and paint level failures are absorbed; only input
//validation aborts the render.
func (r *Renderer) Render(ctx context.Context, features []*Feature, bound orb.Bound, style *StyleConfig, opts RenderOptions) (string, error) {
	if err := validateInputs(features, bound, style, opts); err != nil {
		return "", err
	}

	id, _ := shortid.Generate()
	logger := log.WithField("render", id)
	start := time.Now()

	zoom := opts.Zoom
	if zoom == ZoomAuto {
		zoom = selectZoom(bound, opts.Width, opts.Height)
	}
	tp := deriveTransform(bound, zoom, opts.Width, opts.Height)

	canvas := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	dc := gg.NewContextForRGBA(canvas)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	fetched, missing := 0, 0
	if opts.Basemap && r.tiles != nil {
		fetched, missing = r.drawBasemap(ctx, canvas, tp, opts, logger)
	}

	// styles are immutable for the whole render, so each pass parses
	// its paint channels once
	defaultStyle := resolveStyle(&style.Default, logger)
	highlightStyle := resolveStyle(&style.Highlight, logger)
	label := labelDrawer(&style.Label, logger)

	unselected, selected := 0, 0
	for _, f := range features {
		if f.Selected {
			continue
		}
		r.drawFeature(dc, f, defaultStyle, tp)
		unselected++
	}
	for _, f := range features {
		if !f.Selected {
			continue
		}
		r.drawFeature(dc, f, highlightStyle, tp)
		if label != nil {
			label(dc, f, tp)
		}
		selected++
	}

	if err := writeImage(canvas, opts.Format, opts.Quality, opts.OutputPath); err != nil {
		return "", err
	}

	logger.WithFields(log.Fields{
		"zoom":       zoom,
		"tiles":      fetched,
		"holes":      missing,
		"default":    unselected,
		"highlight":  selected,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Infof("rendered %s", opts.OutputPath)
	return opts.OutputPath, nil
}

func validateInputs(features []*Feature, bound orb.Bound, style *StyleConfig, opts RenderOptions) error {
	if len(features) == 0 {
		return &ValidationError{Field: "features", Reason: "list is empty"}
	}
	if err := validBound(bound); err != nil {
		return err
	}
	if style == nil {
		return &ValidationError{Field: "style", Reason: "config is nil"}
	}
	if opts.OutputPath == "" {
		return &ValidationError{Field: "output", Reason: "path is empty"}
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return &ValidationError{Field: "size", Reason: "width and height must be positive"}
	}
	return nil
}

// drawBasemap mosaics the covering tiles onto the canvas. The covering
// index range is the viewport expanded by one tile on each side so a
// partly visible tile never leaves an edge gap. Fetches fan out
// concurrently; any per-tile failure is just a hole in the mosaic.
func (r *Renderer) drawBasemap(ctx context.Context, canvas *image.RGBA, tp TransformParams, opts RenderOptions, logger *log.Entry) (fetched, missing int) {
	tileSize := float64(r.tiles.TileSize())
	// world extent of the viewport: invert the transform at the two
	// image corners
	worldX0 := tp.MinX - tp.OffsetX/tp.Scale
	worldY0 := tp.MinY - tp.OffsetY/tp.Scale
	worldX1 := worldX0 + float64(opts.Width)/tp.Scale
	worldY1 := worldY0 + float64(opts.Height)/tp.Scale

	maxIndex := 1<<uint(tp.Zoom) - 1
	clampIdx := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > maxIndex {
			return maxIndex
		}
		return v
	}
	tx0 := clampIdx(int(math.Floor(worldX0/tileSize)) - 1)
	ty0 := clampIdx(int(math.Floor(worldY0/tileSize)) - 1)
	tx1 := clampIdx(int(math.Floor(worldX1/tileSize)) + 1)
	ty1 := clampIdx(int(math.Floor(worldY1/tileSize)) + 1)

	total := (tx1 - tx0 + 1) * (ty1 - ty0 + 1)
	var bar *pb.ProgressBar
	if opts.Progress {
		bar = pb.New(total).Prefix("Tiles : ")
		bar.Start()
	}

	results := make([]Tile, 0, total)
	resultc := make(chan Tile, total)
	var wg sync.WaitGroup
	for ty := ty0; ty <= ty1; ty++ {
		for tx := tx0; tx <= tx1; tx++ {
			wg.Add(1)
			go func(x, y int) {
				defer wg.Done()
				img, err := r.tiles.FetchTile(ctx, x, y, tp.Zoom)
				if bar != nil {
					bar.Increment()
				}
				if err != nil {
					logger.Warnf("tile %d/%d/%d skipped: %v", tp.Zoom, x, y, err)
					return
				}
				resultc <- Tile{T: maptileAt(x, y, tp.Zoom), Img: img}
			}(tx, ty)
		}
	}
	wg.Wait()
	close(resultc)
	if bar != nil {
		bar.Finish()
	}
	for t := range resultc {
		results = append(results, t)
	}

	// compositing is sequential against the single canvas
	for i := range results {
		t := &results[i]
		px, py := tp.worldToPixel(float64(t.T.X)*tileSize, float64(t.T.Y)*tileSize)
		dst := image.Rect(
			int(math.Round(px)), int(math.Round(py)),
			int(math.Round(px+tileSize*tp.Scale)), int(math.Round(py+tileSize*tp.Scale)),
		)
		draw.CatmullRom.Scale(canvas, dst, t.Img, t.Img.Bounds(), draw.Over, nil)
		t.Img = nil
		fetched++
	}
	missing = total - fetched
	return fetched, missing
}

// resolvedStyle holds the parsed paint channels for one pass; a nil
// channel means that paint operation is skipped.
type resolvedStyle struct {
	fill        color.Color
	stroke      color.Color
	strokeWidth float64
}

func resolveStyle(st *Style, logger *log.Entry) *resolvedStyle {
	rs := &resolvedStyle{strokeWidth: st.StrokeWidth}
	if st.FillColor != "" {
		if c, err := parseHexColor(st.FillColor); err == nil {
			rs.fill = c
		} else {
			logger.Warnf("fill skipped: %v", err)
		}
	}
	if st.StrokeColor != "" {
		if c, err := parseHexColor(st.StrokeColor); err == nil {
			rs.stroke = c
		} else {
			logger.Warnf("stroke skipped: %v", err)
		}
	}
	return rs
}

// point marker radii, zoom independent
const (
	pointFillRadius   = 4
	pointStrokeRadius = 5
)

// drawFeature dispatches on the geometry variant; multi geometries and
// collections recurse into the same visit with their members.
func (r *Renderer) drawFeature(dc *gg.Context, f *Feature, rs *resolvedStyle, tp TransformParams) {
	r.drawGeometry(dc, f.Geometry, rs, tp)
}

func (r *Renderer) drawGeometry(dc *gg.Context, g orb.Geometry, rs *resolvedStyle, tp TransformParams) {
	switch geom := g.(type) {
	case orb.Point:
		r.drawPoint(dc, geom, rs, tp)
	case orb.MultiPoint:
		for _, p := range geom {
			r.drawGeometry(dc, p, rs, tp)
		}
	case orb.LineString:
		r.drawLineString(dc, geom, rs, tp)
	case orb.MultiLineString:
		for _, ls := range geom {
			r.drawGeometry(dc, ls, rs, tp)
		}
	case orb.Ring:
		r.drawGeometry(dc, orb.Polygon{geom}, rs, tp)
	case orb.Polygon:
		r.drawPolygon(dc, geom, rs, tp)
	case orb.MultiPolygon:
		for _, p := range geom {
			r.drawGeometry(dc, p, rs, tp)
		}
	case orb.Collection:
		for _, member := range geom {
			r.drawGeometry(dc, member, rs, tp)
		}
	default:
		log.Warnf("geometry %T skipped", g)
	}
}

func (r *Renderer) drawPoint(dc *gg.Context, p orb.Point, rs *resolvedStyle, tp TransformParams) {
	px, py := tp.geoToPixel(p[0], p[1])
	if rs.fill != nil {
		dc.DrawCircle(px, py, pointFillRadius)
		dc.SetColor(rs.fill)
		dc.Fill()
	}
	if rs.stroke != nil {
		dc.DrawCircle(px, py, pointStrokeRadius)
		dc.SetColor(rs.stroke)
		dc.SetLineWidth(rs.strokeWidth)
		dc.Stroke()
	}
}

func (r *Renderer) drawLineString(dc *gg.Context, ls orb.LineString, rs *resolvedStyle, tp TransformParams) {
	if len(ls) < 2 {
		return
	}
	trace := func() {
		for i, p := range ls {
			px, py := tp.geoToPixel(p[0], p[1])
			if i == 0 {
				dc.MoveTo(px, py)
			} else {
				dc.LineTo(px, py)
			}
		}
	}
	if rs.fill != nil {
		trace()
		dc.SetColor(rs.fill)
		dc.Fill()
	}
	if rs.stroke != nil {
		trace()
		dc.SetColor(rs.stroke)
		dc.SetLineWidth(rs.strokeWidth)
		dc.Stroke()
	}
}

// drawPolygon appends the exterior ring and every hole as closed
// subpaths of a single path, so the even-odd fill rule cuts the holes
// out of the fill.
func (r *Renderer) drawPolygon(dc *gg.Context, poly orb.Polygon, rs *resolvedStyle, tp TransformParams) {
	trace := func() {
		for _, ring := range poly {
			if len(ring) == 0 {
				continue
			}
			dc.NewSubPath()
			for i, p := range ring {
				px, py := tp.geoToPixel(p[0], p[1])
				if i == 0 {
					dc.MoveTo(px, py)
				} else {
					dc.LineTo(px, py)
				}
			}
			dc.ClosePath()
		}
	}
	if rs.fill != nil {
		trace()
		dc.SetFillRule(gg.FillRuleEvenOdd)
		dc.SetColor(rs.fill)
		dc.Fill()
	}
	if rs.stroke != nil {
		trace()
		dc.SetColor(rs.stroke)
		dc.SetLineWidth(rs.strokeWidth)
		dc.Stroke()
	}
}

// labelDrawer prepares the label pass: parses colors, loads the face.
// Returns nil when labels are disabled or the config is unusable.
func labelDrawer(cfg *LabelConfig, logger *log.Entry) func(*gg.Context, *Feature, TransformParams) {
	if !cfg.Enabled || cfg.Property == "" {
		return nil
	}
	fontColor, err := parseHexColor(cfg.FontColor)
	if err != nil {
		logger.Warnf("labels skipped: %v", err)
		return nil
	}
	var haloColor color.Color
	if cfg.Halo {
		c, err := parseHexColor(cfg.HaloColor)
		if err != nil {
			logger.Warnf("label halo skipped: %v", err)
		} else {
			haloColor = c
		}
	}
	face, err := labelFace(cfg.FontSize)
	if err != nil {
		logger.Warnf("labels skipped: %v", err)
		return nil
	}

	return func(dc *gg.Context, f *Feature, tp TransformParams) {
		text := labelText(f, cfg.Property)
		if text == "" {
			return
		}
		centroid, _ := planar.CentroidArea(f.Geometry)
		px, py := tp.geoToPixel(centroid[0], centroid[1])

		dc.SetFontFace(face)
		if haloColor != nil {
			// stroked copy behind the fill: the glyphs redrawn at
			// offsets around the anchor
			dc.SetColor(haloColor)
			w := cfg.HaloWidth
			if w <= 0 {
				w = 1
			}
			for dx := -w; dx <= w; dx += w {
				for dy := -w; dy <= w; dy += w {
					if dx == 0 && dy == 0 {
						continue
					}
					dc.DrawStringAnchored(text, px+dx, py+dy, 0.5, 0.5)
				}
			}
		}
		dc.SetColor(fontColor)
		dc.DrawStringAnchored(text, px, py, 0.5, 0.5)
	}
}

func labelText(f *Feature, prop string) string {
	v, ok := f.Properties[prop]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func labelFace(size float64) (font.Face, error) {
	ft, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 12
	}
	return opentype.NewFace(ft, &opentype.FaceOptions{Size: size, DPI: 72})
}
