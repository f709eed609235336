package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

var ErrFFmpegUnavailable = errors.New("ffmpeg not available")

var durationPattern = regexp.MustCompile(`Duration: (\d{2}):(\d{2}):(\d{2}\.\d+)`)

type Analysis struct {
	MeanVolume float64 `json:"mean_volume_db"`
	MaxVolume  float64 `json:"max_volume_db"`
	Duration   float64 `json:"duration_seconds"`
}

// Probe runs ffmpeg's volumedetect filter over the narration file.
func Probe(ctx context.Context, ffmpegPath, inputPath string) (Analysis, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	resolved, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrFFmpegUnavailable, err)
	}
	if err := ValidateAudioPath(inputPath); err != nil {
		return Analysis{}, err
	}

	cmd := exec.CommandContext(ctx, resolved, "-hide_banner", "-i", inputPath, "-filter:a", "volumedetect", "-f", "null", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Analysis{}, fmt.Errorf("volume analysis failed: %w", err)
	}
	return parseAnalysis(stderr.String()), nil
}

func parseAnalysis(output string) Analysis {
	return Analysis{
		MeanVolume: parseFFmpegValue(output, "mean_volume: ", " dB"),
		MaxVolume:  parseFFmpegValue(output, "max_volume: ", " dB"),
		Duration:   parseDurationFromLog(output),
	}
}

func parseFFmpegValue(output, prefix, suffix string) float64 {
	idx := strings.Index(output, prefix)
	if idx == -1 {
		return 0.0
	}
	rest := output[idx+len(prefix):]
	endIdx := strings.Index(rest, suffix)
	if endIdx == -1 {
		return 0.0
	}
	val, _ := strconv.ParseFloat(strings.TrimSpace(rest[:endIdx]), 64)
	return val
}

func parseDurationFromLog(output string) float64 {
	matches := durationPattern.FindStringSubmatch(output)
	if len(matches) != 4 {
		return 0.0
	}
	h, _ := strconv.ParseFloat(matches[1], 64)
	m, _ := strconv.ParseFloat(matches[2], 64)
	s, _ := strconv.ParseFloat(matches[3], 64)
	return h*3600 + m*60 + s
}
