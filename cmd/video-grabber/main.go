package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alanbriolat/video-grabber"
	"github.com/alanbriolat/video-grabber/async"
)

func main() {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	config := zap.NewDevelopmentConfig()
	config.Level = level
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := config.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = video_grabber.WithLogger(ctx, logger)

	app := newApp(ctx, level)
	result := async.Run(func() error { return app.Run(os.Args) })

	select {
	case err = <-result:
	case <-ctx.Done():
		stop()
		err = <-result
	}
	if err != nil {
		logger.Fatal(err.Error())
	}
}

func newApp(ctx context.Context, level zap.AtomicLevel) *cli.App {
	return &cli.App{
		Name:  "video-grabber",
		Usage: "fetch video formats from an extraction backend and download one",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "backend",
				Value:   video_grabber.DefaultConfig.BackendURL,
				Usage:   "extraction backend base `URL`",
				EnvVars: []string{"VIDEO_GRABBER_BACKEND"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Value:   video_grabber.DefaultConfig.RequestTimeout,
				Usage:   "give up on a backend request after `DURATION` (0 for never)",
				EnvVars: []string{"VIDEO_GRABBER_TIMEOUT"},
			},
			&cli.StringFlag{
				Name:    "target",
				Value:   video_grabber.DefaultConfig.TargetDir,
				Usage:   "save downloaded videos to `DIR`",
				EnvVars: []string{"VIDEO_GRABBER_TARGET"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				level.SetLevel(zap.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "show the title and available formats of a video",
				ArgsUsage: "URL",
				Action: func(c *cli.Context) error {
					return runInfo(ctx, c)
				},
			},
			{
				Name:      "download",
				Usage:     "download one format of a video",
				ArgsUsage: "URL",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "quality",
						Usage: "download the format with quality `LABEL` (default: the first format)",
					},
					&cli.StringFlag{
						Name:  "itag",
						Usage: "download format `ID` without fetching the format list",
					},
					&cli.BoolFlag{
						Name:  "print-link",
						Usage: "print the download link instead of saving the file",
					},
				},
				Action: func(c *cli.Context) error {
					return runDownload(ctx, c)
				},
			},
			{
				Name:  "interactive",
				Usage: "paste links and pick formats from a prompt",
				Action: func(c *cli.Context) error {
					return runInteractive(ctx, c)
				},
			},
		},
		HideHelpCommand: true,
	}
}

func configFromContext(c *cli.Context) (video_grabber.Config, error) {
	config := video_grabber.Config{
		BackendURL:     c.String("backend"),
		RequestTimeout: c.Duration("timeout"),
		TargetDir:      c.String("target"),
	}
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// timeoutOrNone renders a timeout for log output.
func timeoutOrNone(d time.Duration) string {
	if d == 0 {
		return "none"
	}
	return d.String()
}
