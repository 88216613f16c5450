package radar

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/nlweather/knmi-direct/internal/domain"
	"github.com/nlweather/knmi-direct/internal/geo"
)

// BBox is an EPSG:3857 bounding box in meters.
type BBox struct {
	XMin, YMin, XMax, YMax float64
}

// BackgroundBBox is the tile and background extent,
// (49.14, 0.0) - (54.68, 8.98) in EPSG:4326.
var BackgroundBBox = BBox{XMin: 0, YMin: 6300000, XMax: 1000000, YMax: 7300000}

// Param renders the box as a WMS BBOX parameter.
func (b BBox) Param() string {
	coords := []float64{b.XMin, b.YMin, b.XMax, b.YMax}
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = strconv.FormatFloat(c, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

const defaultBackgroundSize = 700

var markerColor = color.RGBA{R: 255, A: 255}

// LoadBackground reads the static map background. An empty path yields a
// plain light canvas so the service still works without a bundled map.
func LoadBackground(path string) (*image.RGBA, error) {
	if path == "" {
		img := image.NewRGBA(image.Rect(0, 0, defaultBackgroundSize, defaultBackgroundSize))
		draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 232, G: 232, B: 232, A: 255}), image.Point{}, draw.Src)
		return img, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open background: %w", err)
	}
	defer f.Close()

	decoded, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode background: %w", err)
	}
	img := image.NewRGBA(decoded.Bounds())
	draw.Draw(img, img.Bounds(), decoded, decoded.Bounds().Min, draw.Src)
	return img, nil
}

// DrawLocationMarkers draws a ring per configured location at its projected
// pixel position. Called once at startup on the shared background.
func DrawLocationMarkers(img *image.RGBA, bbox BBox, locations []domain.Location) {
	for _, loc := range locations {
		x, y := geo.WebMercator(loc.Longitude, loc.Latitude)
		px := float64(img.Bounds().Dx()) / (bbox.XMax - bbox.XMin) * (x - bbox.XMin)
		py := float64(img.Bounds().Dy()) / (bbox.YMax - bbox.YMin) * (y - bbox.YMin)
		// Image rows grow downward.
		py = float64(img.Bounds().Dy()) - py
		drawRing(img, int(px), int(py), 10, 2, markerColor)
	}
}

// drawRing draws a circle outline of the given radius and stroke width.
func drawRing(img *image.RGBA, cx, cy, radius, width int, c color.RGBA) {
	outer := float64(radius) + float64(width)/2
	inner := float64(radius) - float64(width)/2
	bounds := img.Bounds()
	for y := cy - radius - width; y <= cy+radius+width; y++ {
		for x := cx - radius - width; x <= cx+radius+width; x++ {
			if x < bounds.Min.X || x >= bounds.Max.X || y < bounds.Min.Y || y >= bounds.Max.Y {
				continue
			}
			d := math.Hypot(float64(x-cx), float64(y-cy))
			if d >= inner && d <= outer {
				img.SetRGBA(x, y, c)
			}
		}
	}
}
