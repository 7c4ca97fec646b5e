package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/shiena/ansicolor"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// flag
var (
	hf bool
	cf string
)

func init() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.StringVar(&cf, "c", "conf.toml", "set config `file`")
	flag.Usage = usage
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	log.SetOutput(ansicolor.NewAnsiColorWriter(os.Stdout))
	log.SetLevel(log.DebugLevel)
}

func usage() {
	fmt.Fprintf(os.Stderr, `staticmap version: staticmap/v0.1.0
Usage: staticmap [-h] [-c filename] input.geojson
`)
	flag.PrintDefaults()
}

// initConf loads the config file and fills in every tunable default.
func initConf(cfgFile string) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Warnf("config file(%s) not exist", cfgFile)
	}
	viper.SetConfigType("toml")
	viper.SetConfigFile(cfgFile)
	viper.AutomaticEnv() // read in environment variables that match
	err := viper.ReadInConfig()
	if err != nil {
		log.Warnf("read config file(%s) error, details: %s", viper.ConfigFileUsed(), err)
	}
	viper.SetDefault("app.version", "v 0.1.0")
	viper.SetDefault("app.title", "Static Map")
	viper.SetDefault("render.width", 1024)
	viper.SetDefault("render.height", 768)
	viper.SetDefault("render.format", PNG)
	viper.SetDefault("render.quality", 90)
	viper.SetDefault("render.zoom", ZoomAuto)
	viper.SetDefault("render.buffer", 5.0)
	viper.SetDefault("render.output", "output/map.png")
	viper.SetDefault("render.progress", true)
	viper.SetDefault("tiles.enabled", true)
	viper.SetDefault("tiles.url", "http://tile.openstreetmap.org/{z}/{x}/{y}.png")
	viper.SetDefault("tiles.workers", defaultWorkers)
	viper.SetDefault("tiles.interval", defaultMinInterval)
	viper.SetDefault("tiles.retries", defaultFetchRetries)
	viper.SetDefault("tiles.timeout", defaultHTTPTimeout)
	viper.SetDefault("style.default.stroke", "#3388FF")
	viper.SetDefault("style.default.strokewidth", 2.0)
	viper.SetDefault("style.highlight.fill", "#FF000080")
	viper.SetDefault("style.highlight.stroke", "#FF0000")
	viper.SetDefault("style.highlight.strokewidth", 3.0)
	viper.SetDefault("label.enabled", false)
	viper.SetDefault("label.property", "name")
	viper.SetDefault("label.fontsize", 12.0)
	viper.SetDefault("label.fontcolor", "#000000")
	viper.SetDefault("label.halo", true)
	viper.SetDefault("label.halocolor", "#FFFFFF")
	viper.SetDefault("label.halowidth", 2.0)
}

func styleFromConf() *StyleConfig {
	return &StyleConfig{
		Default: Style{
			FillColor:   viper.GetString("style.default.fill"),
			StrokeColor: viper.GetString("style.default.stroke"),
			StrokeWidth: viper.GetFloat64("style.default.strokewidth"),
		},
		Highlight: Style{
			FillColor:   viper.GetString("style.highlight.fill"),
			StrokeColor: viper.GetString("style.highlight.stroke"),
			StrokeWidth: viper.GetFloat64("style.highlight.strokewidth"),
		},
		Label: LabelConfig{
			Enabled:   viper.GetBool("label.enabled"),
			Property:  viper.GetString("label.property"),
			FontSize:  viper.GetFloat64("label.fontsize"),
			FontColor: viper.GetString("label.fontcolor"),
			Halo:      viper.GetBool("label.halo"),
			HaloColor: viper.GetString("label.halocolor"),
			HaloWidth: viper.GetFloat64("label.halowidth"),
		},
	}
}

// tileFetcherFromConf picks the basemap source: a local .mbtiles path
// reads tiles from disk, anything else is an XYZ URL template with the
// politeness knobs taken from the tiles.* config keys.
func tileFetcherFromConf() (TileFetcher, func(), error) {
	url := viper.GetString("tiles.url")
	if strings.HasSuffix(url, ".mbtiles") {
		src, err := OpenMBTiles(url)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	}
	src := NewTileSource(url)
	if n := viper.GetInt("tiles.workers"); n > 0 {
		src.sem = make(chan struct{}, n)
	}
	if d := viper.GetDuration("tiles.interval"); d > 0 {
		src.minInterval = d
	}
	if n := viper.GetInt("tiles.retries"); n > 0 {
		src.retries = n
	}
	if d := viper.GetDuration("tiles.timeout"); d > 0 {
		src.client.Timeout = d
	}
	return src, func() {}, nil
}

func main() {
	flag.Parse()
	if hf || flag.NArg() < 1 {
		flag.Usage()
		return
	}

	if cf == "" {
		cf = "conf.toml"
	}
	initConf(cf)
	start := time.Now()

	features, err := loadFeatureCollection(flag.Arg(0))
	if err != nil {
		log.Fatalf("load features: %v", err)
	}
	n := MarkSelected(features,
		viper.GetStringSlice("select.ids"),
		viper.GetString("select.property"),
		viper.GetString("select.value"))
	log.Infof("loaded %d features, %d selected", len(features), n)

	bound, err := FeatureBound(features, viper.GetFloat64("render.buffer"))
	if err != nil {
		log.Fatalf("bbox: %v", err)
	}

	var tiles TileFetcher
	cleanup := func() {}
	if viper.GetBool("tiles.enabled") {
		tiles, cleanup, err = tileFetcherFromConf()
		if err != nil {
			log.Fatalf("tile source: %v", err)
		}
	}
	defer cleanup()

	opts := RenderOptions{
		Width:      viper.GetInt("render.width"),
		Height:     viper.GetInt("render.height"),
		Format:     viper.GetString("render.format"),
		Quality:    viper.GetInt("render.quality"),
		Zoom:       viper.GetInt("render.zoom"),
		Basemap:    viper.GetBool("tiles.enabled"),
		OutputPath: viper.GetString("render.output"),
		Progress:   viper.GetBool("render.progress"),
	}

	path, err := NewRenderer(tiles).Render(context.Background(), features, bound, styleFromConf(), opts)
	if err != nil {
		log.Fatalf("render: %v", err)
	}
	log.Printf("%s written, %.3fs finished...", path, time.Since(start).Seconds())
}
