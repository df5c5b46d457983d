// Package servecmder provides the serve command that runs the relay.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/streamrelay/pkg/cliui"
	"github.com/papercomputeco/streamrelay/pkg/config"
	"github.com/papercomputeco/streamrelay/pkg/dotdir"
	"github.com/papercomputeco/streamrelay/pkg/logger"
	"github.com/papercomputeco/streamrelay/proxy"
)

const serveLongDesc string = `Run the streamrelay server.

The relay forwards upstream event streams to clients frame by frame:
  /api/events/*             Relay an upstream event stream as is
  /api/themes/:id/events    Relay theme events merged over stored defaults
  /api/chat                 Relay chat deltas and publish the assembled message

Settings come from flags, STREAMRELAY_* environment variables and
config.toml in the .streamrelay/ directory, in that order.`

const serveShortDesc string = "Run the streamrelay server"

// shutdownTimeout bounds how long running streams get to wind down.
const shutdownTimeout = 15 * time.Second

type serveCommander struct {
	cfg       *config.Config
	configDir string
	debug     bool

	// flag targets; the resolved values are read back through viper
	listen, upstream, chatPath, streamTimeout, connectTimeout string
	themeProvider, themePath, themeRedisAddr, themeTTL      string
	eventProvider, eventBrokers, eventTopic                  string
	logFile                                                  string
	themeWatch, logJSON, logPretty                           bool
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.ServeFlags, config.ServeFlags.Keys())
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	fs := config.ServeFlags
	config.AddStringFlag(cmd, fs, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, fs, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, fs, config.FlagChatPath, &cmder.chatPath)
	config.AddStringFlag(cmd, fs, config.FlagStreamTimeout, &cmder.streamTimeout)
	config.AddStringFlag(cmd, fs, config.FlagConnectTimeout, &cmder.connectTimeout)
	config.AddStringFlag(cmd, fs, config.FlagThemeProvider, &cmder.themeProvider)
	config.AddStringFlag(cmd, fs, config.FlagThemePath, &cmder.themePath)
	config.AddStringFlag(cmd, fs, config.FlagThemeRedisAddr, &cmder.themeRedisAddr)
	config.AddStringFlag(cmd, fs, config.FlagThemeTTL, &cmder.themeTTL)
	config.AddBoolFlag(cmd, fs, config.FlagThemeWatch, &cmder.themeWatch)
	config.AddStringFlag(cmd, fs, config.FlagEventStreamProvider, &cmder.eventProvider)
	config.AddStringFlag(cmd, fs, config.FlagEventStreamBrokers, &cmder.eventBrokers)
	config.AddStringFlag(cmd, fs, config.FlagEventStreamTopic, &cmder.eventTopic)
	config.AddBoolFlag(cmd, fs, config.FlagLogJSON, &cmder.logJSON)
	config.AddBoolFlag(cmd, fs, config.FlagLogPretty, &cmder.logPretty)
	config.AddStringFlag(cmd, fs, config.FlagLogFile, &cmder.logFile)

	return cmd
}

func (c *serveCommander) run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := c.cfg
	log, closeLog, err := c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	proxyConfig, cleanup, err := c.buildProxyConfig(ctx, log)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := proxy.New(proxyConfig, log)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}

	log.Info("starting relay",
		"listen", proxyConfig.ListenAddr,
		"upstream", proxyConfig.UpstreamURL,
		"chat_path", proxyConfig.ChatPath,
		"theme_provider", cfg.Theme.Provider,
		"eventstream_provider", cfg.EventStream.Provider,
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- p.Run()
	}()

	select {
	case err := <-errChan:
		if closeErr := p.Close(); closeErr != nil {
			log.Warn("closing relay", "error", closeErr)
		}
		if err != nil {
			return fmt.Errorf("relay error: %w", err)
		}
		return nil

	case <-ctx.Done():
		log.Info("received signal, shutting down", "active_sessions", p.ActiveSessions())
		done := make(chan error, 1)
		go func() { done <- p.Close() }()
		select {
		case err := <-done:
			return err
		case <-time.After(shutdownTimeout):
			return errors.New("timed out waiting for streams to finish")
		}
	}
}

// newLogger builds the console logger and, when log.file is set, mirrors it
// to a JSON log file.
func (c *serveCommander) newLogger() (*slog.Logger, func(), error) {
	debug := c.debug || c.cfg.Log.Debug
	console := logger.New(
		logger.WithDebug(debug),
		logger.WithJSON(c.cfg.Log.JSON),
		logger.WithPretty(c.cfg.Log.Pretty),
	)
	if c.cfg.Log.File == "" {
		return console, func() {}, nil
	}

	path, err := c.logFilePath()
	if err != nil {
		return nil, nil, err
	}
	fileLog, f, err := logger.NewFile(path, debug)
	if err != nil {
		return nil, nil, err
	}
	return logger.Multi(console, fileLog), func() { _ = f.Close() }, nil
}

// logFilePath resolves a relative log.file against the .streamrelay/
// directory, or the working directory when there is none.
func (c *serveCommander) logFilePath() (string, error) {
	path := c.cfg.Log.File
	if filepath.IsAbs(path) {
		return path, nil
	}
	dir, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		return "", fmt.Errorf("resolving log file: %w", err)
	}
	return filepath.Join(dir, path), nil
}

// buildProxyConfig wires the theme cache and publisher for cfg. The returned
// cleanup releases them and is safe to call once.
func (c *serveCommander) buildProxyConfig(ctx context.Context, log *slog.Logger) (proxy.Config, func(), error) {
	cfg := c.cfg

	streamTimeout, err := config.ParseDuration("relay.stream_timeout", cfg.Relay.StreamTimeout)
	if err != nil {
		return proxy.Config{}, nil, err
	}
	connectTimeout, err := config.ParseDuration("relay.connect_timeout", cfg.Relay.ConnectTimeout)
	if err != nil {
		return proxy.Config{}, nil, err
	}

	themes, err := newThemeStack(cfg.Theme, log)
	if err != nil {
		return proxy.Config{}, nil, err
	}

	animate := cliui.IsTerminal(os.Stderr) && !cfg.Log.JSON
	if themes.cache != nil {
		err := cliui.Step(os.Stderr, "Loading theme defaults", animate, func() error {
			return themes.warm(ctx)
		})
		if err != nil {
			// The cache retries on the next request.
			log.Warn("initial theme load failed", "provider", cfg.Theme.Provider, "error", err)
		}
		if cfg.Theme.Watch {
			themes.watch(ctx, log)
		}
	}

	publisher, err := newPublisher(cfg.EventStream)
	if err != nil {
		_ = themes.Close()
		return proxy.Config{}, nil, err
	}

	// Runs after the relay has drained its worker pool.
	cleanup := func() {
		if err := publisher.Close(); err != nil {
			log.Warn("closing publisher", "error", err)
		}
		if err := themes.Close(); err != nil {
			log.Warn("closing theme source", "error", err)
		}
	}

	return proxy.Config{
		ListenAddr:     cfg.Relay.Listen,
		UpstreamURL:    cfg.Relay.Upstream,
		ChatPath:       cfg.Relay.ChatPath,
		StreamTimeout:  streamTimeout,
		ConnectTimeout: connectTimeout,
		Themes:         themes.cache,
		Publisher:      publisher,
	}, cleanup, nil
}
