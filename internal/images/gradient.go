// ABOUTME: Procedural 1920x1080 vertical gradient used when no photo is available
// ABOUTME: Colors come from the configured palette, picked by slide number

package images

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	gradientWidth   = 1920
	gradientHeight  = 1080
	gradientQuality = 90
)

type gradientColors struct {
	top, bottom color.RGBA
}

// ParseHexColor parses "#rrggbb" or "rrggbb".
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("color %q must have six hex digits", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

func parsePalette(pairs [][]string) ([]gradientColors, error) {
	if len(pairs) == 0 {
		pairs = [][]string{{"#667eea", "#764ba2"}}
	}
	palette := make([]gradientColors, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("palette entry %d must have two colors", i)
		}
		top, err := ParseHexColor(pair[0])
		if err != nil {
			return nil, fmt.Errorf("palette entry %d: %w", i, err)
		}
		bottom, err := ParseHexColor(pair[1])
		if err != nil {
			return nil, fmt.Errorf("palette entry %d: %w", i, err)
		}
		palette = append(palette, gradientColors{top: top, bottom: bottom})
	}
	return palette, nil
}

func lerp(a, b uint8, ratio float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*ratio)
}

// renderGradient draws a top-to-bottom linear gradient.
func renderGradient(colors gradientColors) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, gradientWidth, gradientHeight))
	for y := 0; y < gradientHeight; y++ {
		ratio := float64(y) / gradientHeight
		c := color.RGBA{
			R: lerp(colors.top.R, colors.bottom.R, ratio),
			G: lerp(colors.top.G, colors.bottom.G, ratio),
			B: lerp(colors.top.B, colors.bottom.B, ratio),
			A: 0xff,
		}
		row := img.Pix[y*img.Stride : y*img.Stride+gradientWidth*4]
		for x := 0; x < len(row); x += 4 {
			row[x], row[x+1], row[x+2], row[x+3] = c.R, c.G, c.B, c.A
		}
	}
	return img
}

func writeGradient(path string, colors gradientColors) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if err := jpeg.Encode(f, renderGradient(colors), &jpeg.Options{Quality: gradientQuality}); err != nil {
		f.Close()
		return fmt.Errorf("encoding jpeg: %w", err)
	}
	return f.Close()
}
