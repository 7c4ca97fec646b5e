package main

import (
	"image/color"
	"strconv"
	"strings"
)

//Style flat per-feature paint attributes; empty color means that
//channel is not painted
type Style struct {
	FillColor   string
	StrokeColor string
	StrokeWidth float64
}

//LabelConfig label placement attributes for the highlight pass
type LabelConfig struct {
	Enabled   bool
	Property  string
	FontSize  float64
	FontColor string
	Halo      bool
	HaloColor string
	HaloWidth float64
}

//StyleConfig all styling supplied once per render
type StyleConfig struct {
	Highlight Style
	Default   Style
	Label     LabelConfig
}

// alphaFirstMax: for 8-digit hex, a leading byte below this value is
// read as alpha (AARRGGBB), otherwise the trailing byte is (RRGGBBAA).
// The threshold is a compatibility constant, do not tune it.
const alphaFirstMax = 0x32

// parseHexColor parses "#RGB", "#ARGB", "#RRGGBB" and the ambiguous
// 8-digit form. The leading '#' is optional.
func parseHexColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")

	expand := func(b []byte) []byte {
		out := make([]byte, 0, len(b)*2)
		for _, c := range b {
			out = append(out, c, c)
		}
		return out
	}

	alphaFirst := false
	switch len(hex) {
	case 3:
		hex = string(expand([]byte(hex)))
	case 4: // ARGB, alpha position is explicit
		alphaFirst = true
		hex = string(expand([]byte(hex)))
	case 6, 8:
	default:
		return color.NRGBA{}, &ParseError{Input: s, Reason: "hex color must have 3, 4, 6 or 8 digits"}
	}

	raw := make([]byte, len(hex)/2)
	for i := range raw {
		v, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return color.NRGBA{}, &ParseError{Input: s, Reason: "invalid hex digit"}
		}
		raw[i] = byte(v)
	}

	if len(raw) == 3 {
		return color.NRGBA{R: raw[0], G: raw[1], B: raw[2], A: 0xFF}, nil
	}
	// 4 bytes: alpha position is explicit for the ARGB short form,
	// heuristic for raw 8-digit input.
	if alphaFirst || raw[0] < alphaFirstMax {
		return color.NRGBA{A: raw[0], R: raw[1], G: raw[2], B: raw[3]}, nil
	}
	return color.NRGBA{R: raw[0], G: raw[1], B: raw[2], A: raw[3]}, nil
}
