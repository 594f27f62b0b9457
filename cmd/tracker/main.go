package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/video-system/go-slam-capture/pkg/api"
	"github.com/video-system/go-slam-capture/pkg/driver"
	"github.com/video-system/go-slam-capture/pkg/engine"
	"github.com/video-system/go-slam-capture/pkg/sink"
	"github.com/video-system/go-slam-capture/pkg/source"
)

const version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// options are the command-line values; only flags given explicitly
// override the config file.
type options struct {
	configPath  string
	settings    string
	vocab       string
	capture     string
	engine      string
	backend     string
	api         bool
	trajectory  string
	maxFrames   int64
	logLevel    string
	viewer      bool
	display     bool
	listDevices bool
	version     bool
}

func newFlagSet(opts *options, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("tracker", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringVar(&opts.configPath, "config", "", "Path to YAML config file")
	fs.StringVar(&opts.settings, "settings", "webcam.yaml", "Camera settings resource")
	fs.StringVar(&opts.settings, "s", "webcam.yaml", "Shorthand for --settings")
	fs.StringVar(&opts.vocab, "vocab", "ORBvoc.txt", "Feature vocabulary resource")
	fs.StringVar(&opts.vocab, "v", "ORBvoc.txt", "Shorthand for --vocab")
	fs.StringVar(&opts.capture, "cap", "0", "Capture device index or video path/URI")
	fs.StringVar(&opts.capture, "c", "0", "Shorthand for --cap")
	fs.StringVar(&opts.engine, "engine", "null", "Tracking engine ("+strings.Join(engine.Names(), ", ")+")")
	fs.StringVar(&opts.backend, "backend", "ffmpeg", "Capture backend ("+strings.Join(source.Names(), ", ")+")")
	fs.BoolVar(&opts.api, "api", false, "Serve the status/control API")
	fs.StringVar(&opts.trajectory, "trajectory", "", "Write camera trajectory to this file")
	fs.Int64Var(&opts.maxFrames, "max-frames", 0, "Stop after this many frames (0 = no limit)")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.BoolVar(&opts.viewer, "viewer", true, "Ask the engine to show its viewer")
	fs.BoolVar(&opts.display, "display", false, "Show captured frames; any key stops (opencv builds)")
	fs.BoolVar(&opts.listDevices, "list-devices", false, "List capture devices of the selected backend and exit")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: tracker [flags]\n\nFeeds a camera or video into a visual tracking engine.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	return fs
}

// loadConfig merges the config file with explicitly set flags
func loadConfig(fs *flag.FlagSet, opts *options) (*driver.Config, error) {
	cfg := driver.DefaultConfig()
	if opts.configPath != "" {
		var err error
		cfg, err = driver.LoadConfig(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", driver.ErrConfiguration, err)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "settings", "s":
			cfg.Engine.Settings = opts.settings
		case "vocab", "v":
			cfg.Engine.Vocabulary = opts.vocab
		case "cap", "c":
			// "" is a valid specifier and means device 0
			cfg.Capture.Spec = opts.capture
		case "engine":
			cfg.Engine.Kind = opts.engine
		case "backend":
			cfg.Capture.Backend = opts.backend
		case "api":
			cfg.API.Enabled = opts.api
		case "trajectory":
			cfg.Trajectory.Path = opts.trajectory
		case "max-frames":
			cfg.Loop.MaxFrames = opts.maxFrames
		case "log-level":
			cfg.Log.Level = opts.logLevel
		case "viewer":
			cfg.Engine.Viewer = opts.viewer
		case "display":
			cfg.Display.Enabled = opts.display
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg driver.LogConfig, out io.Writer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrConfiguration, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encoder := zapcore.NewJSONEncoder(encCfg)
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(out)), level)
	return zap.New(core, zap.AddCaller()), nil
}

func run(args []string, stderr io.Writer) int {
	var opts options
	fs := newFlagSet(&opts, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if opts.version {
		fmt.Fprintf(stderr, "tracker %s\n", version)
		return 0
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return 1
	}

	cfg, err := loadConfig(fs, &opts)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer logger.Sync()

	if opts.listDevices {
		return driver.ExitCode(listDevices(cfg, logger, stderr))
	}
	return driver.ExitCode(track(cfg, logger))
}

func newBackend(cfg *driver.Config, logger *zap.Logger) (source.Backend, error) {
	backend, err := source.Get(cfg.Capture.Backend, source.Options{
		Width:       cfg.Capture.Width,
		Height:      cfg.Capture.Height,
		Framerate:   cfg.Capture.Framerate,
		Format:      source.PixelFormat(cfg.Capture.Format),
		InputFormat: cfg.Capture.InputFormat,
		Logger:      logger.Named("capture"),
	})
	if err != nil {
		logger.Error("capture backend", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", driver.ErrConfiguration, err)
	}
	return backend, nil
}

// listDevices prints what the backend can enumerate and returns
func listDevices(cfg *driver.Config, logger *zap.Logger, out io.Writer) error {
	backend, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}
	lister, ok := backend.(source.DeviceLister)
	if !ok {
		logger.Error("device listing not supported", zap.String("backend", backend.Name()))
		return fmt.Errorf("%w: backend %s cannot list devices", driver.ErrConfiguration, backend.Name())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	devices, err := lister.ListDevices(ctx)
	if err != nil {
		logger.Error("list devices", zap.Error(err))
		return err
	}
	fmt.Fprint(out, devices)
	return nil
}

// track wires backend, sinks and API around one driver run
func track(cfg *driver.Config, logger *zap.Logger) error {
	backend, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}

	// The window's key handler needs the driver, which needs the sinks
	var d *driver.Driver
	var sinks sink.Multi
	if cfg.Trajectory.Path != "" {
		traj, err := sink.NewTrajectory(cfg.Trajectory.Path)
		if err != nil {
			logger.Error("trajectory", zap.Error(err))
			return err
		}
		sinks = append(sinks, traj)
	}
	if cfg.Display.Enabled {
		win, err := sink.NewWindow(cfg.Display.Title, func() { d.RequestStop("key") })
		if err != nil {
			logger.Warn("display disabled", zap.Error(err))
		} else {
			sinks = append(sinks, win)
		}
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Warn("close sinks", zap.Error(err))
		}
	}()

	d = driver.New(cfg, source.NewResolver(backend, logger.Named("resolver")),
		driver.WithLogger(logger),
		driver.WithSink(sinks),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal drains after the current frame, second one aborts
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("signal received, stopping", zap.Stringer("signal", sig))
			d.RequestStop(sig.String())
		case <-ctx.Done():
			return
		}
		select {
		case sig := <-sigChan:
			logger.Warn("second signal, aborting", zap.Stringer("signal", sig))
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.API.Enabled {
		apiServer := api.NewServer(api.ServerConfig{
			Host:    cfg.API.Host,
			Port:    cfg.API.Port,
			Tracker: d,
			Logger:  logger.Named("api"),
		})
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("API server error", zap.Error(err))
			}
		}()
		defer apiServer.Stop()
	}

	logger.Info("tracker starting",
		zap.String("version", version),
		zap.String("run_id", d.RunID()),
		zap.String("backend", backend.Name()))

	return d.Run(ctx)
}
