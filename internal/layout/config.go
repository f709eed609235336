package layout

import (
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Margins are measured in pixels from each canvas edge.
type Margins struct {
	Top    int `yaml:"top" json:"top"`
	Right  int `yaml:"right" json:"right"`
	Bottom int `yaml:"bottom" json:"bottom"`
	Left   int `yaml:"left" json:"left"`
}

// Config is a layout preset. It is passed by value and never mutated by the engine.
type Config struct {
	FontPath       string `yaml:"font_path" json:"font_path"`
	ReferenceGlyph string `yaml:"reference_glyph" json:"reference_glyph"`

	TitleFontSize    int `yaml:"title_font_size" json:"title_font_size"`
	SubtitleFontSize int `yaml:"subtitle_font_size" json:"subtitle_font_size"`
	DateFontSize     int `yaml:"date_font_size" json:"date_font_size"`
	TitleGap         int `yaml:"title_gap" json:"title_gap"`
	SubtitleGap      int `yaml:"subtitle_gap" json:"subtitle_gap"`
	DateGap          int `yaml:"date_gap" json:"date_gap"`

	MaxBodyFontSize     int     `yaml:"max_body_font_size" json:"max_body_font_size"`
	MinBodyFontSize     int     `yaml:"min_body_font_size" json:"min_body_font_size"`
	FontStep            int     `yaml:"font_step" json:"font_step"`
	MaxLineSpacing      int     `yaml:"max_line_spacing" json:"max_line_spacing"`
	MinLineSpacing      int     `yaml:"min_line_spacing" json:"min_line_spacing"`
	MaxParagraphSpacing int     `yaml:"max_paragraph_spacing" json:"max_paragraph_spacing"`
	MinParagraphSpacing int     `yaml:"min_paragraph_spacing" json:"min_paragraph_spacing"`
	ShrinkFactor        float64 `yaml:"shrink_factor" json:"shrink_factor"`
	WrapFallback        int     `yaml:"wrap_fallback" json:"wrap_fallback"`

	Margins Margins `yaml:"margins" json:"margins"`

	StrokeWidth  int    `yaml:"stroke_width" json:"stroke_width"`
	TextColor    string `yaml:"text_color" json:"text_color"`
	StrokeColor  string `yaml:"stroke_color" json:"stroke_color"`
	RefrainColor string `yaml:"refrain_color" json:"refrain_color"`
}

func Defaults() Config {
	return Config{
		FontPath:       "Cookie-Regular.ttf",
		ReferenceGlyph: "a",

		TitleFontSize:    80,
		SubtitleFontSize: 48,
		DateFontSize:     40,
		TitleGap:         10,
		SubtitleGap:      10,
		DateGap:          60,

		MaxBodyFontSize:     50,
		MinBodyFontSize:     28,
		FontStep:            2,
		MaxLineSpacing:      15,
		MinLineSpacing:      8,
		MaxParagraphSpacing: 35,
		MinParagraphSpacing: 18,
		ShrinkFactor:        0.95,
		WrapFallback:        30,

		Margins: Margins{Top: 80, Right: 80, Bottom: 80, Left: 80},

		StrokeWidth:  2,
		TextColor:    "#FFFFFF",
		StrokeColor:  "#000000",
		RefrainColor: "#FFE9A8",
	}
}

// LoadPreset overlays the YAML file at path onto base. Keys absent from the file keep base values.
func LoadPreset(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read layout preset: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse layout preset %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("layout preset %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	switch {
	case cfg.MinBodyFontSize <= 0:
		return fmt.Errorf("min_body_font_size must be positive")
	case cfg.MaxBodyFontSize < cfg.MinBodyFontSize:
		return fmt.Errorf("max_body_font_size %d is below min_body_font_size %d", cfg.MaxBodyFontSize, cfg.MinBodyFontSize)
	case cfg.FontStep <= 0:
		return fmt.Errorf("font_step must be positive")
	case cfg.ShrinkFactor <= 0 || cfg.ShrinkFactor > 1:
		return fmt.Errorf("shrink_factor must be in (0, 1]")
	case cfg.MinLineSpacing < 0 || cfg.MinParagraphSpacing < 0:
		return fmt.Errorf("spacings must not be negative")
	case cfg.Margins.Top < 0 || cfg.Margins.Right < 0 || cfg.Margins.Bottom < 0 || cfg.Margins.Left < 0:
		return fmt.Errorf("margins must not be negative")
	}
	if _, err := cfg.palette(); err != nil {
		return err
	}
	return nil
}

// headerHeight is the fixed block above the body: title, optional subtitle, date and their gaps.
func (cfg Config) headerHeight(withSubtitle bool) int {
	height := cfg.TitleFontSize + cfg.TitleGap + cfg.DateFontSize + cfg.DateGap
	if withSubtitle {
		height += cfg.SubtitleFontSize + cfg.SubtitleGap
	}
	return height
}

func (cfg Config) referenceRune() rune {
	for _, r := range cfg.ReferenceGlyph {
		return r
	}
	return 'a'
}

type palette struct {
	text    color.Color
	stroke  color.Color
	refrain color.Color
}

func (cfg Config) palette() (palette, error) {
	text, err := ParseHexColor(cfg.TextColor)
	if err != nil {
		return palette{}, fmt.Errorf("text_color: %w", err)
	}
	stroke, err := ParseHexColor(cfg.StrokeColor)
	if err != nil {
		return palette{}, fmt.Errorf("stroke_color: %w", err)
	}
	refrain := text
	if cfg.RefrainColor != "" {
		refrain, err = ParseHexColor(cfg.RefrainColor)
		if err != nil {
			return palette{}, fmt.Errorf("refrain_color: %w", err)
		}
	}
	return palette{text: text, stroke: stroke, refrain: refrain}, nil
}

// ParseHexColor accepts #RGB, #RRGGBB and #RRGGBBAA.
func ParseHexColor(value string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", value)
	}
	parsed, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", value)
	}
	return color.NRGBA{
		R: uint8(parsed >> 24),
		G: uint8(parsed >> 16),
		B: uint8(parsed >> 8),
		A: uint8(parsed),
	}, nil
}
