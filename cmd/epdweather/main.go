package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"epdweather/internal/battery"
	"epdweather/internal/board"
	"epdweather/internal/config"
	"epdweather/internal/epd"
	"epdweather/internal/forecast"
	appLog "epdweather/internal/log"
	"epdweather/internal/pipeline"
	"epdweather/internal/scene"
	"epdweather/internal/state"
	"epdweather/internal/web"
)

// flagConfig holds CLI flag values; they override the config file.
type flagConfig struct {
	configPath string
	envFile    string
	listen     string
	once       bool
	renderOnly bool
	dumpDir    string
	debug      bool
}

func main() {
	appLog.Info("epdweather starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	if err := conf.LoadEnv(flags.envFile); err != nil {
		appLog.Error("failed to load environment", err, "env_file", flags.envFile)
		os.Exit(1)
	}

	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.dumpDir != "" {
		conf.DumpDir = flags.dumpDir
	}

	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		appLog.Warn("bad log_level, using info", "log_level", conf.LogLevel)
	}
	if flags.debug {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"refresh", conf.RefreshCron,
		"location", conf.Weather.Location,
		"day", conf.Weather.IsDay(),
		"assets", conf.Assets.Dir,
		"lut", conf.Panel.LUT,
		"once", flags.once,
		"render_only", flags.renderOnly,
		"dump_dir", conf.DumpDir,
	)

	if err := run(conf, flags); err != nil {
		appLog.Error("epdweather failed", err)
		os.Exit(1)
	}
	appLog.Info("epdweather exiting")
}

func run(conf *config.Config, flags flagConfig) error {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	renderer, err := scene.Load(conf.Assets.Dir)
	if err != nil {
		return err
	}

	client := forecast.NewClient(conf.Weather.APIKey, conf.Weather.Location, conf.Weather.IsDay())
	if conf.Weather.URL != "" {
		client.URL = conf.Weather.URL
	}
	client.CacheDir = conf.Weather.CacheDir
	client.HTTP.Timeout = conf.Weather.Timeout()

	var br battery.Reader = battery.None()
	if conf.Battery.Enabled {
		br = battery.NewI2CReader(conf.Battery.I2CBus, conf.Battery.I2CAddr)
	}

	lut, err := epd.ParseLUT(conf.Panel.LUT)
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{
		Fetcher:    client,
		Renderer:   renderer,
		Rotation:   renderer.Compositor(),
		Store:      state.Store{Path: conf.StatePath},
		Battery:    br,
		Retries:    conf.Weather.Retries,
		RetryDelay: conf.Weather.RetryDelay(),
		LUT:        lut,
		RenderOnly: flags.renderOnly,
		DumpDir:    conf.DumpDir,
	}

	if !flags.renderOnly {
		b, err := board.Open(conf.Panel)
		if err != nil {
			return err
		}
		defer func() {
			if err := b.Close(); err != nil {
				appLog.Error("board close failed", err)
			}
		}()
		p.Panel = b.Dev
		p.Reset = b
	}

	if err := p.Restore(); err != nil {
		appLog.Warn("state restore failed, starting fresh", "error", err.Error())
	}

	if flags.once {
		_, err := p.RunOnce(ctx)
		return err
	}

	// Startup cycle; failures are logged and the schedule carries on.
	if _, err := p.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("initial refresh failed", err)
	}

	sched := cron.New()
	if _, err := sched.AddFunc(conf.RefreshCron, func() {
		if _, err := p.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			appLog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		return err
	}
	sched.Start()
	appLog.Info("scheduler started", "refresh", conf.RefreshCron)

	var serveErr error
	if conf.Listen != "" {
		srv := web.NewServer(ctx, conf, p, br)
		serveErr = srv.ListenAndServe(ctx)
		if serveErr != nil {
			appLog.Error("HTTP server stopped", serveErr)
			stop()
		}
	} else {
		<-ctx.Done()
	}

	appLog.Info("shutting down")
	// Wait for a running refresh so the panel is asleep before Close.
	<-sched.Stop().Done()
	return serveErr
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/epdweather/config.yaml", "Path to config file")
	flag.StringVar(&cfg.envFile, "env", ".env", "Optional env file with secrets (EPDWEATHER_API_KEY, ...)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one fetch+render(+display) cycle and exit")
	flag.BoolVar(&cfg.renderOnly, "render-only", false, "Render only; do not touch display hardware")
	flag.StringVar(&cfg.dumpDir, "dump", "", "Write a PNG of every rendered frame to this directory")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
