// Package radar produces the animated precipitation loop: time-indexed tiles
// fetched concurrently, composited over a static map background, and encoded
// as a looping GIF.
package radar

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/png"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/errgroup"

	"github.com/nlweather/knmi-direct/internal/domain"
	"github.com/nlweather/knmi-direct/internal/observability"
)

// TileAPI is the slice of the WMS client the compositor consumes.
type TileAPI interface {
	RealTimeTile(ctx context.Context, at time.Time, width, height int, bbox, style string) ([]byte, error)
	ForecastTile(ctx context.Context, ref, at time.Time, width, height int, bbox, style string) ([]byte, error)
}

const (
	// TileStyle is the precipitation color ramp requested from the WMS.
	TileStyle = "rainrate-blue-to-purple/nearest"

	// Frame window: an hour of observed tiles before the reference time and
	// two hours of nowcast tiles from it, on 10-minute ticks.
	historyWindow  = 60 * time.Minute
	forecastWindow = 120 * time.Minute
	frameStep      = 10 * time.Minute

	// frameDelay is the GIF per-frame display time in 10ms units.
	frameDelay = 30
)

var (
	pastLabelColor   = color.RGBA{R: 48, G: 48, B: 48, A: 255}
	futureLabelColor = color.RGBA{R: 48, G: 48, B: 148, A: 255}
)

// Compositor caches one animated radar artifact and regenerates it when the
// upstream source version moves past the version it was built from. A
// condition variable implements single-flight: concurrent callers during a
// regeneration wait and share whatever artifact is current once it finishes.
type Compositor struct {
	tiles      TileAPI
	background *image.RGBA
	labelZone  *time.Location
	graceDelay time.Duration
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu      sync.Mutex
	cond    *sync.Cond
	loading bool

	lastImage        []byte
	lastImageVersion time.Time
	latestKnown      time.Time
}

// Options tune the compositor.
type Options struct {
	// LabelZone is the timezone for frame labels; nil means UTC.
	LabelZone *time.Location
	// GraceDelay is waited after a notification before the announced version
	// is considered queryable.
	GraceDelay time.Duration
}

// New creates a compositor over a prepared background image.
func New(tiles TileAPI, background *image.RGBA, opts Options, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Compositor {
	if opts.LabelZone == nil {
		opts.LabelZone = time.UTC
	}
	if opts.GraceDelay == 0 {
		opts.GraceDelay = 15 * time.Second
	}
	c := &Compositor{
		tiles:      tiles,
		background: background,
		labelZone:  opts.LabelZone,
		graceDelay: opts.GraceDelay,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// HandleNotification is the listener callback for the radar-forecast
// dataset. It records the announced source version after the grace delay.
func (c *Compositor) HandleNotification(ctx context.Context, n domain.Notification) {
	version, err := domain.RadarForecastFile.Parse(n.Filename)
	if err != nil {
		c.logger.Warn("unresolvable radar notification", "filename", n.Filename, "error", err)
		return
	}
	// Allow some time for the image to be available in the WMS.
	if !sleepWithContext(ctx, c.clock, c.graceDelay) {
		return
	}
	c.mu.Lock()
	c.latestKnown = version
	c.mu.Unlock()
	c.logger.Debug("radar source version advanced", "version", version)
}

// Image returns the current animated artifact, regenerating it first if the
// source version moved. Exactly one caller performs the regeneration;
// concurrent callers block until it commits and then receive the artifact
// current at that point.
func (c *Compositor) Image(ctx context.Context) ([]byte, error) {
	c.mu.Lock()

	if !c.needsRefreshLocked() {
		img := c.lastImage
		c.mu.Unlock()
		return img, nil
	}

	if c.latestKnown.IsZero() {
		// No notification yet. Build from the most recent 5-minute-aligned
		// timestamp at least 5 minutes in the past.
		now := c.clock.Now().UTC()
		c.latestKnown = now.Truncate(5 * time.Minute).Add(-5 * time.Minute)
	}
	ref := c.latestKnown

	if c.loading {
		c.logger.Debug("regeneration in progress, waiting")
		c.cond.Wait()
		img := c.lastImage
		c.mu.Unlock()
		return img, nil
	}

	// Mark loading while holding the lock so later callers wait.
	c.loading = true
	c.mu.Unlock()

	start := c.clock.Now()
	img, err := c.regenerate(ctx, ref)

	c.mu.Lock()
	c.loading = false
	if err == nil {
		c.lastImage = img
		c.lastImageVersion = ref
		c.metrics.RadarRegenerations.Inc()
		c.metrics.RadarRegenerationTime.Observe(c.clock.Since(start).Seconds())
	}
	c.cond.Broadcast()
	c.mu.Unlock()

	if err != nil {
		c.metrics.RadarTileErrors.Inc()
		return nil, fmt.Errorf("regenerate radar animation: %w", err)
	}
	return img, nil
}

func (c *Compositor) needsRefreshLocked() bool {
	if c.latestKnown.IsZero() || c.lastImageVersion.IsZero() {
		return true
	}
	return c.latestKnown.After(c.lastImageVersion)
}

// regenerate fetches all frames for the reference time and encodes the GIF.
// Any single tile failure aborts the whole batch; the previously cached
// artifact stays servable.
func (c *Compositor) regenerate(ctx context.Context, ref time.Time) ([]byte, error) {
	times := frameTimes(ref)
	width := c.background.Bounds().Dx()
	height := c.background.Bounds().Dy()
	bbox := BackgroundBBox.Param()

	frames := make([]*image.RGBA, len(times))
	g, gctx := errgroup.WithContext(ctx)
	for i, ft := range times {
		g.Go(func() error {
			var buf []byte
			var err error
			if ft.Before(ref) {
				buf, err = c.tiles.RealTimeTile(gctx, ft, width, height, bbox, TileStyle)
			} else {
				buf, err = c.tiles.ForecastTile(gctx, ref, ft, width, height, bbox, TileStyle)
			}
			if err != nil {
				return fmt.Errorf("tile %s: %w", ft.Format(time.RFC3339), err)
			}
			tile, err := png.Decode(bytes.NewReader(buf))
			if err != nil {
				return fmt.Errorf("decode tile %s: %w", ft.Format(time.RFC3339), err)
			}
			frames[i] = c.composite(tile, ft, ref)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.logger.Debug("retrieved radar tiles, encoding animation", "frames", len(frames))

	return encodeGIF(frames)
}

// frameTimes lists all frame timestamps in display order.
func frameTimes(ref time.Time) []time.Time {
	var times []time.Time
	for t := ref.Add(-historyWindow); t.Before(ref); t = t.Add(frameStep) {
		times = append(times, t)
	}
	for t := ref; !t.After(ref.Add(forecastWindow)); t = t.Add(frameStep) {
		times = append(times, t)
	}
	return times
}

// composite overlays one tile on the background and stamps its timestamp,
// grey for observed frames and blue for forecast frames.
func (c *Compositor) composite(tile image.Image, at, ref time.Time) *image.RGBA {
	bounds := c.background.Bounds()
	frame := image.NewRGBA(bounds)
	draw.Draw(frame, bounds, c.background, bounds.Min, draw.Src)
	draw.Draw(frame, bounds, tile, tile.Bounds().Min, draw.Over)

	label := at.In(c.labelZone).Format("Mon 15:04")
	labelColor := pastLabelColor
	if at.After(ref) {
		labelColor = futureLabelColor
	}
	d := font.Drawer{
		Dst:  frame,
		Src:  image.NewUniform(labelColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(28, 28+basicfont.Face7x13.Ascent),
	}
	d.DrawString(label)
	return frame
}

// encodeGIF palettizes the frames and assembles the looping animation.
func encodeGIF(frames []*image.RGBA) ([]byte, error) {
	anim := &gif.GIF{LoopCount: 0}
	for _, frame := range frames {
		paletted := image.NewPaletted(frame.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(paletted, frame.Bounds(), frame, frame.Bounds().Min)
		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, frameDelay)
		anim.Disposal = append(anim.Disposal, gif.DisposalBackground)
	}
	var out bytes.Buffer
	if err := gif.EncodeAll(&out, anim); err != nil {
		return nil, fmt.Errorf("encode gif: %w", err)
	}
	return out.Bytes(), nil
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
