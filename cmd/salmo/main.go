package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/salmodiario/internal/imagegen"
	"github.com/salmodiario/internal/jobs"
	"github.com/salmodiario/internal/layout"
	"github.com/salmodiario/internal/narration"
	"github.com/salmodiario/internal/psalm"
	"github.com/salmodiario/internal/publish"
	"github.com/salmodiario/internal/tui"
	"github.com/salmodiario/pkg/config"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("178"))
	urlStyle   = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("39"))
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

type options struct {
	interactive bool
	schedule    string
	dryRun      bool
	layoutPath  string
	date        string
	outputDir   string
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	var opts options
	flag.BoolVar(&opts.interactive, "tui", false, "review the prompt and follow progress in an interactive view")
	flag.StringVar(&opts.schedule, "schedule", cfg.Schedule, "cron expression; run on every tick instead of once")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "render and save locally without publishing")
	flag.StringVar(&opts.layoutPath, "layout", cfg.LayoutPreset, "YAML layout preset")
	flag.StringVar(&opts.date, "date", "", "card date as YYYY-MM-DD (default today)")
	flag.StringVar(&opts.outputDir, "out", cfg.OutputDir, "output directory")
	flag.Parse()
	cfg.OutputDir = opts.outputDir

	if err := run(cfg, opts); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("salmo: ")+err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Config, opts options) error {
	if err := cfg.Validate(opts.dryRun); err != nil {
		return err
	}

	logger, err := newLogger(cfg, opts.interactive)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	layoutConfig, err := loadLayout(cfg, opts.layoutPath)
	if err != nil {
		return err
	}

	date, err := parseDate(opts.date, cfg.Location())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := buildRunner(ctx, cfg, layoutConfig, sugar, opts.dryRun)
	if err != nil {
		return err
	}

	switch {
	case opts.interactive:
		program := tea.NewProgram(tui.NewModel(cfg, runner, date, opts.dryRun), tea.WithAltScreen())
		_, err := program.Run()
		return err
	case opts.schedule != "":
		return runScheduled(ctx, cfg, runner, opts, sugar)
	default:
		return runOnce(ctx, cfg, runner, date, opts.dryRun)
	}
}

func buildRunner(ctx context.Context, cfg config.Config, layoutConfig layout.Config, logger *zap.SugaredLogger, dryRun bool) (*jobs.Runner, error) {
	generator, err := imagegen.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("image backend: %w", err)
	}
	narrator, err := narration.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("narration backend: %w", err)
	}

	var publisher publish.Publisher
	if !dryRun {
		publisher, err = publish.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("publisher: %w", err)
		}
	}

	return &jobs.Runner{
		Psalms:        psalm.NewClient(cfg.PsalmAPIURL, cfg.HTTPTimeout),
		Generator:     generator,
		Layout:        layout.NewEngine(layoutConfig, logger),
		Narrator:      narrator,
		Publisher:     publisher,
		Heading:       cfg.Heading,
		AssetCategory: cfg.AssetCategory,
		Width:         cfg.CanvasWidth,
		Height:        cfg.CanvasHeight,
		Backend:       cfg.ImageBackend,
		FFmpegPath:    cfg.FFmpegPath,
		Logger:        logger,
	}, nil
}

func runOnce(ctx context.Context, cfg config.Config, runner *jobs.Runner, date time.Time, dryRun bool) error {
	result, err := runner.Run(ctx, jobs.Input{
		Date:      date,
		Prompt:    cfg.ImagePrompt,
		OutputDir: cfg.OutputDir,
		DryRun:    dryRun,
	}, nil)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

func runScheduled(ctx context.Context, cfg config.Config, runner *jobs.Runner, opts options, logger *zap.SugaredLogger) error {
	cronLogger := cronLog{logger: logger}
	scheduler := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	_, err := scheduler.AddFunc(opts.schedule, func() {
		date := time.Now().In(cfg.Location())
		if err := runOnce(ctx, cfg, runner, date, opts.dryRun); err != nil {
			logger.Errorw("scheduled run failed", "date", date.Format("2006-01-02"), "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", opts.schedule, err)
	}

	logger.Infow("scheduler started", "schedule", opts.schedule, "timezone", cfg.Location().String())
	scheduler.Start()
	<-ctx.Done()
	<-scheduler.Stop().Done()
	logger.Infow("scheduler stopped")
	return nil
}

func printResult(result jobs.Result) {
	fmt.Println(labelStyle.Render("Card:     ") + result.ImagePath)
	if result.ImageURL != "" {
		fmt.Println(labelStyle.Render("Image:    ") + urlStyle.Render(result.ImageURL))
	}
	if result.AudioURL != "" {
		fmt.Println(labelStyle.Render("Audio:    ") + urlStyle.Render(result.AudioURL))
	}
	if result.MetaPath != "" {
		fmt.Println(labelStyle.Render("Metadata: ") + result.MetaPath)
	}
}

func loadLayout(cfg config.Config, presetPath string) (layout.Config, error) {
	layoutConfig := layout.Defaults()
	layoutConfig.FontPath = cfg.FontPath
	if presetPath != "" {
		var err error
		layoutConfig, err = layout.LoadPreset(presetPath, layoutConfig)
		if err != nil {
			return layout.Config{}, err
		}
	}
	if err := layoutConfig.Validate(); err != nil {
		return layout.Config{}, fmt.Errorf("layout: %w", err)
	}
	return layoutConfig, nil
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Now().In(loc), nil
	}
	parsed, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -date %q: expected YYYY-MM-DD", value)
	}
	return parsed, nil
}

// newLogger writes to stderr, or to a file under the output directory while the
// interactive view owns the terminal.
func newLogger(cfg config.Config, interactive bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.Encoding = "console"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zapConfig.Sampling = nil
	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	if interactive {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return nil, err
		}
		logPath := filepath.Join(cfg.OutputDir, "salmo.log")
		zapConfig.OutputPaths = []string{logPath}
		zapConfig.ErrorOutputPaths = []string{logPath}
	}
	return zapConfig.Build()
}

type cronLog struct {
	logger *zap.SugaredLogger
}

func (log cronLog) Info(msg string, keysAndValues ...interface{}) {
	log.logger.Debugw(msg, keysAndValues...)
}

func (log cronLog) Error(err error, msg string, keysAndValues ...interface{}) {
	log.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
