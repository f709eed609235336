package layout

import "math"

// Document is the text placed on a card. Paragraphs must already be free of blank entries.
type Document struct {
	Title      string
	Subtitle   string
	Date       string
	Refrain    string
	Paragraphs []string
}

// blocks returns the elastic body text in render order: refrain first, then paragraphs.
func (doc Document) blocks() []string {
	blocks := make([]string, 0, len(doc.Paragraphs)+1)
	blocks = append(blocks, doc.Refrain)
	return append(blocks, doc.Paragraphs...)
}

// Metrics measures a font at a given point size.
type Metrics interface {
	// GlyphWidth is the advance of the reference glyph, used as the average character width.
	GlyphWidth(size float64) float64
	LineHeight(size float64) float64
}

// Plan is the outcome of fitting a document to a canvas.
type Plan struct {
	BodyFontSize     int        `json:"body_font_size"`
	LineSpacing      int        `json:"line_spacing"`
	ParagraphSpacing int        `json:"paragraph_spacing"`
	WrapWidthChars   int        `json:"wrap_width_chars"`
	LineHeight       int        `json:"line_height"`
	TextHeight       int        `json:"text_height"`
	AvailableHeight  int        `json:"available_height"`
	CanvasHeight     int        `json:"canvas_height"`
	Shortfall        int        `json:"shortfall"`
	Blocks           [][]string `json:"blocks"`
}

// Grown reports whether the canvas must be taller than requested.
func (plan Plan) Grown() bool { return plan.Shortfall > 0 }

// Fit picks the largest body font size, starting at MaxBodyFontSize and stepping down, whose
// wrapped text fits between the vertical margins. When even MinBodyFontSize overflows, the plan
// grows the canvas by the shortfall instead of dropping text.
func Fit(cfg Config, doc Document, width, height int, metrics Metrics) Plan {
	textWidth := width - cfg.Margins.Left - cfg.Margins.Right
	available := height - cfg.Margins.Top - cfg.Margins.Bottom
	header := cfg.headerHeight(doc.Subtitle != "")
	blocks := doc.blocks()

	measure := func(size, lineSpacing, paragraphSpacing int) Plan {
		plan := Plan{
			BodyFontSize:     size,
			LineSpacing:      lineSpacing,
			ParagraphSpacing: paragraphSpacing,
			WrapWidthChars:   wrapWidth(textWidth, metrics.GlyphWidth(float64(size)), cfg.WrapFallback),
			LineHeight:       lineHeight(metrics, size),
			AvailableHeight:  available,
			CanvasHeight:     height,
			Blocks:           make([][]string, len(blocks)),
		}
		total := header
		for i, block := range blocks {
			lines := Wrap(block, plan.WrapWidthChars)
			plan.Blocks[i] = lines
			total += blockHeight(len(lines), plan.LineHeight, lineSpacing) + paragraphSpacing
		}
		plan.TextHeight = total
		return plan
	}

	lineSpacing := float64(cfg.MaxLineSpacing)
	paragraphSpacing := float64(cfg.MaxParagraphSpacing)
	for size := cfg.MaxBodyFontSize; size >= cfg.MinBodyFontSize; size -= cfg.FontStep {
		plan := measure(size, int(lineSpacing), int(paragraphSpacing))
		if plan.TextHeight <= available {
			return plan
		}
		lineSpacing = math.Max(lineSpacing*cfg.ShrinkFactor, float64(cfg.MinLineSpacing))
		paragraphSpacing = math.Max(paragraphSpacing*cfg.ShrinkFactor, float64(cfg.MinParagraphSpacing))
	}

	plan := measure(cfg.MinBodyFontSize, cfg.MinLineSpacing, cfg.MinParagraphSpacing)
	if shortfall := plan.TextHeight - available; shortfall > 0 {
		plan.Shortfall = shortfall
		plan.CanvasHeight = height + shortfall
	}
	return plan
}

func wrapWidth(textWidth int, glyphWidth float64, fallback int) int {
	if glyphWidth <= 0 || math.IsNaN(glyphWidth) || math.IsInf(glyphWidth, 0) {
		return fallback
	}
	chars := int(math.Floor(float64(textWidth) / glyphWidth))
	if chars < 1 {
		return 1
	}
	return chars
}

func lineHeight(metrics Metrics, size int) int {
	height := metrics.LineHeight(float64(size))
	if height <= 0 || math.IsNaN(height) || math.IsInf(height, 0) {
		return size
	}
	return int(math.Ceil(height))
}

func blockHeight(lines, lineHeight, lineSpacing int) int {
	if lines <= 0 {
		return 0
	}
	return lines*lineHeight + (lines-1)*lineSpacing
}
