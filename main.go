package main

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/camrelay/cmd"
	"github.com/smazurov/camrelay/internal/api"
	"github.com/smazurov/camrelay/internal/capture"
	"github.com/smazurov/camrelay/internal/config"
	"github.com/smazurov/camrelay/internal/events"
	"github.com/smazurov/camrelay/internal/logging"
	"github.com/smazurov/camrelay/internal/metrics/exporters"
	"github.com/smazurov/camrelay/internal/request"
	"github.com/smazurov/camrelay/internal/streaming"
	"github.com/smazurov/camrelay/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"camrelay.toml"`

	// Relay settings
	Host             string `help:"IPv4 address to bind the relay to (empty for all)" default:"" toml:"relay.host" env:"RELAY_HOST"`
	Port             int    `help:"Relay port" short:"p" default:"8080" toml:"relay.port" env:"RELAY_PORT"`
	DevicePrefix     string `help:"Capture device namespace prefix" default:"/dev/video" toml:"relay.device_prefix" env:"RELAY_DEVICE_PREFIX"`
	DefaultWidth     int    `help:"Frame width when a request does not ask for one" default:"640" toml:"relay.default_width" env:"RELAY_DEFAULT_WIDTH"`
	DefaultHeight    int    `help:"Frame height when a request does not ask for one" default:"480" toml:"relay.default_height" env:"RELAY_DEFAULT_HEIGHT"`
	RequestTimeoutMs int    `help:"How long a connection may take to send its request" default:"3000" toml:"relay.request_timeout_ms" env:"RELAY_REQUEST_TIMEOUT_MS"`
	WriteTimeoutMs   int    `help:"How long a client write may go without progress" default:"250" toml:"relay.write_timeout_ms" env:"RELAY_WRITE_TIMEOUT_MS"`
	HotplugEnabled   bool   `help:"Close sessions whose device is unplugged" default:"true" toml:"relay.hotplug_enabled" env:"RELAY_HOTPLUG_ENABLED"`

	// Capture settings
	BufferCount int `help:"Kernel capture buffers per device" default:"2" toml:"capture.buffer_count" env:"CAPTURE_BUFFER_COUNT"`

	// Admin API settings
	AdminEnabled bool   `help:"Serve the admin API" default:"true" toml:"admin.enabled" env:"ADMIN_ENABLED"`
	AdminAddr    string `help:"Admin API listen address" default:":8081" toml:"admin.addr" env:"ADMIN_ADDR"`
	AuthUsername string `help:"Admin API basic auth username (empty disables auth)" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Admin API basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel     string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat    string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingStreaming string `help:"Relay reactor logging level" default:"info" toml:"logging.streaming" env:"LOGGING_STREAMING"`
	LoggingCapture   string `help:"Capture device logging level" default:"info" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingAPI       string `help:"Admin API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP      string `help:"Admin HTTP access logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"streaming": o.LoggingStreaming,
			"capture":   o.LoggingCapture,
			"api":       o.LoggingAPI,
			"http":      o.LoggingHTTP,
		},
	}
}

func (o *Options) relayConfig() streaming.Config {
	cfg := streaming.DefaultConfig()
	cfg.Host = o.Host
	cfg.Port = o.Port
	cfg.Router = request.Router{
		DevicePrefix:  o.DevicePrefix,
		DefaultWidth:  uint32(max(o.DefaultWidth, 1)),
		DefaultHeight: uint32(max(o.DefaultHeight, 1)),
	}
	if o.RequestTimeoutMs > 0 {
		cfg.RequestTimeout = time.Duration(o.RequestTimeoutMs) * time.Millisecond
	}
	if o.WriteTimeoutMs > 0 {
		cfg.WriteTimeout = time.Duration(o.WriteTimeoutMs) * time.Millisecond
	}
	cfg.Hotplug = o.HotplugEnabled
	return cfg
}

func main() {
	var cli humacli.CLI

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		eventBus := events.New()

		// Mirror every log line onto the bus for /api/logs/stream.
		var logSeq atomic.Uint64
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        logSeq.Add(1),
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		prefix := opts.DevicePrefix
		listing := func() capture.Listing {
			return capture.BuildListing(capture.V4L2Inspector{}, prefix)
		}

		relay := streaming.NewServer(
			opts.relayConfig(),
			capture.NewV4L2Opener(opts.BufferCount),
			eventBus,
			listing,
		)

		var admin *api.Server
		if opts.AdminEnabled {
			admin = api.NewServer(&api.Options{
				AuthUsername:      opts.AuthUsername,
				AuthPassword:      opts.AuthPassword,
				EventBus:          eventBus,
				PrometheusHandler: exporters.HTTPHandler(),
				Lister:            listing,
			})
		}

		reloader := config.NewReloader(opts.Config, config.LoadLogging, func(cfg logging.Config) {
			logging.SetLevels(cfg.Level, cfg.Modules)
			logger.Info("Applied logging levels from config", "level", cfg.Level, "modules", cfg.Modules)
		}, logging.GetLogger("config"))
		watchCtx, stopWatching := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			if err := relay.Listen(); err != nil {
				logger.Error("Failed to start relay", "error", err)
				os.Exit(1)
			}

			if admin != nil {
				go func() {
					if err := admin.Start(opts.AdminAddr); err != nil {
						logger.Error("Admin API stopped", "error", err)
					}
				}()
			}

			if _, statErr := os.Stat(opts.Config); statErr == nil {
				go func() {
					if err := reloader.Run(watchCtx); err != nil {
						logger.Warn("Config hot reload disabled", "error", err)
					}
				}()
			}

			if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
				logger.Debug("sd_notify failed", "error", err)
			}

			if err := relay.Serve(); err != nil {
				logger.Error("Relay stopped", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

			relay.Stop()
			if admin != nil {
				if err := admin.Stop(); err != nil {
					logger.Error("Error stopping admin API", "error", err)
				}
			}
			stopWatching()
		})
	})

	cli.Root().Version = version.Get().String()
	cli.Root().AddCommand(cmd.CreateDevicesCmd())
	cli.Root().AddCommand(cmd.CreateProbeCmd())

	cli.Run()
}
