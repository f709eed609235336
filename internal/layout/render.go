package layout

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"go.uber.org/zap"
	"golang.org/x/image/font"
)

var (
	// ErrFontUnavailable means the configured font could not be read or parsed.
	// Render returns the canvas untouched alongside it.
	ErrFontUnavailable = errors.New("font unavailable")
	ErrEmptyCanvas     = errors.New("canvas is empty")
)

type Engine struct {
	config Config
	logger *zap.SugaredLogger
}

func NewEngine(config Config, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{config: config, logger: logger}
}

func (engine *Engine) Config() Config { return engine.config }

// Render fits doc to canvas and draws it. On success the returned image is either canvas itself
// (drawn in place) or a taller copy when the text could not fit at the minimum font size.
// If the font cannot be loaded, canvas is returned unmodified with an ErrFontUnavailable error.
func (engine *Engine) Render(canvas *image.RGBA, doc Document) (*image.RGBA, Plan, error) {
	if canvas == nil || canvas.Bounds().Empty() {
		return canvas, Plan{}, ErrEmptyCanvas
	}

	ttf, err := LoadFont(engine.config.FontPath)
	if err != nil {
		engine.logger.Errorw("font unavailable, leaving canvas unannotated", "font", engine.config.FontPath, "error", err)
		return canvas, Plan{}, err
	}
	colors, err := engine.config.palette()
	if err != nil {
		engine.logger.Errorw("invalid layout colors, leaving canvas unannotated", "error", err)
		return canvas, Plan{}, err
	}

	bounds := canvas.Bounds()
	plan := Fit(engine.config, doc, bounds.Dx(), bounds.Dy(), NewFontMetrics(ttf, engine.config.referenceRune()))

	target := canvas
	if plan.Grown() {
		engine.logger.Warnw("text overflows at minimum font size, growing canvas",
			"shortfall", plan.Shortfall,
			"height", bounds.Dy(),
			"new_height", plan.CanvasHeight,
		)
		target = Grow(canvas, plan.CanvasHeight)
	}

	engine.draw(target, ttf, colors, arrange(engine.config, doc, plan, colors))
	engine.logger.Infow("text composed",
		"body_font_size", plan.BodyFontSize,
		"line_spacing", plan.LineSpacing,
		"paragraph_spacing", plan.ParagraphSpacing,
		"wrap_width", plan.WrapWidthChars,
		"text_height", plan.TextHeight,
		"available_height", plan.AvailableHeight,
	)
	return target, plan, nil
}

// LoadFont reads and parses a TrueType font file.
func LoadFont(path string) (*truetype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFontUnavailable, err)
	}
	parsed, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrFontUnavailable, path, err)
	}
	return parsed, nil
}

// Grow returns a copy of canvas with the given height. The width is preserved and the background
// is scaled and center-cropped to cover the new area.
func Grow(canvas image.Image, height int) *image.RGBA {
	width := canvas.Bounds().Dx()
	filled := imaging.Fill(canvas, width, height, imaging.Center, imaging.Lanczos)
	grown := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(grown, grown.Bounds(), filled, filled.Bounds().Min, draw.Src)
	return grown
}

// fontMetrics measures each point size once; Fit asks for the same sizes repeatedly.
type fontMetrics struct {
	font  *truetype.Font
	glyph rune

	mu    sync.Mutex
	sizes map[float64]sizeMetrics
}

type sizeMetrics struct {
	glyphWidth float64
	lineHeight float64
}

func NewFontMetrics(ttf *truetype.Font, glyph rune) Metrics {
	return &fontMetrics{font: ttf, glyph: glyph, sizes: map[float64]sizeMetrics{}}
}

func (metrics *fontMetrics) GlyphWidth(size float64) float64 {
	return metrics.measure(size).glyphWidth
}

func (metrics *fontMetrics) LineHeight(size float64) float64 {
	return metrics.measure(size).lineHeight
}

func (metrics *fontMetrics) measure(size float64) sizeMetrics {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if measured, ok := metrics.sizes[size]; ok {
		return measured
	}

	face := newFace(metrics.font, size)
	defer face.Close()
	var measured sizeMetrics
	if advance, ok := face.GlyphAdvance(metrics.glyph); ok {
		measured.glyphWidth = float64(advance) / 64
	}
	m := face.Metrics()
	measured.lineHeight = float64(m.Ascent+m.Descent) / 64
	metrics.sizes[size] = measured
	return measured
}

func newFace(ttf *truetype.Font, size float64) font.Face {
	return truetype.NewFace(ttf, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
}

// placement is one text element positioned on the canvas.
type placement struct {
	lines   []string
	top     int
	size    int
	spacing int
	color   color.Color
}

// cursor is the vertical pen position. It is a value: advancing returns a new cursor.
type cursor struct{ y int }

func (c cursor) advance(by int) cursor { return cursor{y: c.y + by} }

// arrange positions the header and body blocks top to bottom by folding a cursor over them.
func arrange(cfg Config, doc Document, plan Plan, colors palette) []placement {
	placements := make([]placement, 0, len(plan.Blocks)+3)
	pos := cursor{y: cfg.Margins.Top}

	placements = append(placements, placement{lines: []string{doc.Title}, top: pos.y, size: cfg.TitleFontSize, color: colors.text})
	pos = pos.advance(cfg.TitleFontSize + cfg.TitleGap)
	if doc.Subtitle != "" {
		placements = append(placements, placement{lines: []string{doc.Subtitle}, top: pos.y, size: cfg.SubtitleFontSize, color: colors.text})
		pos = pos.advance(cfg.SubtitleFontSize + cfg.SubtitleGap)
	}
	placements = append(placements, placement{lines: []string{doc.Date}, top: pos.y, size: cfg.DateFontSize, color: colors.text})
	pos = pos.advance(cfg.DateFontSize + cfg.DateGap)

	for i, lines := range plan.Blocks {
		fill := colors.text
		if i == 0 {
			fill = colors.refrain
		}
		placements = append(placements, placement{
			lines:   lines,
			top:     pos.y,
			size:    plan.BodyFontSize,
			spacing: plan.LineSpacing,
			color:   fill,
		})
		pos = pos.advance(blockHeight(len(lines), plan.LineHeight, plan.LineSpacing) + plan.ParagraphSpacing)
	}
	return placements
}

func (engine *Engine) draw(canvas *image.RGBA, ttf *truetype.Font, colors palette, placements []placement) {
	dc := gg.NewContextForRGBA(canvas)
	x := float64(engine.config.Margins.Left)
	stroke := engine.config.StrokeWidth

	for _, p := range placements {
		face := newFace(ttf, float64(p.size))
		dc.SetFontFace(face)
		m := face.Metrics()
		ascent := m.Ascent.Ceil()
		step := (m.Ascent + m.Descent).Ceil() + p.spacing
		for i, line := range p.lines {
			baseline := float64(p.top + i*step + ascent)
			drawOutlined(dc, line, x, baseline, stroke, colors.stroke, p.color)
		}
		face.Close()
	}
}

// drawOutlined draws the stroke by offsetting the text in every direction, then the fill on top.
func drawOutlined(dc *gg.Context, text string, x, y float64, width int, stroke, fill color.Color) {
	if width > 0 {
		dc.SetColor(stroke)
		for dy := -width; dy <= width; dy++ {
			for dx := -width; dx <= width; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				dc.DrawString(text, x+float64(dx), y+float64(dy))
			}
		}
	}
	dc.SetColor(fill)
	dc.DrawString(text, x, y)
}
