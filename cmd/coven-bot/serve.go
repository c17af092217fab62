// ABOUTME: The serve subcommand running the bot on Matrix and Discord
// ABOUTME: Channels and the oauth callback server run concurrently until a signal arrives

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-bot/internal/bot"
	"github.com/2389/coven-bot/internal/channels/discord"
	"github.com/2389/coven-bot/internal/channels/matrix"
	"github.com/2389/coven-bot/internal/config"
)

// errNoChannels is returned by serve when every channel is disabled.
var errNoChannels = errors.New("no channels enabled; enable one in the config or run 'coven-bot console'")

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	printBanner()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Channels.Matrix.Enabled && !cfg.Channels.Discord.Enabled {
		return errNoChannels
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing resources", "error", err)
		}
	}()

	printStartup(configPath, cfg, a)

	logger.Info("starting coven-bot",
		"config", configPath,
		"storage", cfg.Storage.Driver,
		"matrix", cfg.Channels.Matrix.Enabled,
		"discord", cfg.Channels.Discord.Enabled,
		"oauth", cfg.OAuth.Enabled(),
	)

	return serve(ctx, cfg, a, logger)
}

// channel is a connected transport ready to run.
type channel struct {
	id      string
	adapter bot.Continuer
	run     func(ctx context.Context) error
}

// serve connects every enabled channel, then runs them, the oauth callback
// server and reminder delivery until ctx is done or one of them fails.
// Nothing is started until every channel has connected.
func serve(ctx context.Context, cfg *config.Config, a *app, logger *slog.Logger) error {
	chans, closeChannels, err := connectChannels(ctx, cfg, a, logger)
	defer closeChannels()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.serveTokens(ctx) })

	continuers := make(map[string]bot.Continuer, len(chans))
	for _, ch := range chans {
		continuers[ch.id] = ch.adapter
		g.Go(func() error { return ch.run(ctx) })
	}
	g.Go(func() error { return a.bot.RunReminders(ctx, bot.DefaultReminderInterval, continuers) })

	err = g.Wait()
	logger.Info("coven-bot stopped")
	return err
}

// connectChannels logs in to every enabled channel. The returned cleanup
// releases what was opened and is safe to call after an error.
func connectChannels(ctx context.Context, cfg *config.Config, a *app, logger *slog.Logger) ([]channel, func(), error) {
	var chans []channel
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if mc := cfg.Channels.Matrix; mc.Enabled {
		client, err := matrix.Connect(ctx, matrix.Credentials{
			Homeserver:  mc.Homeserver,
			UserID:      mc.UserID,
			AccessToken: mc.AccessToken,
			Username:    mc.Username,
			Password:    mc.Password,
		})
		if err != nil {
			return nil, cleanup, fmt.Errorf("connecting to matrix: %w", err)
		}
		if mc.Encryption {
			dataDir := mc.DataDir
			if dataDir == "" {
				dataDir = filepath.Join(dataPath(), "matrix")
			}
			enc, err := matrix.EnableEncryption(ctx, client, matrix.EncryptionConfig{
				DataDir:     dataDir,
				RecoveryKey: mc.RecoveryKey,
			}, logger)
			if err != nil {
				return nil, cleanup, fmt.Errorf("enabling matrix encryption: %w", err)
			}
			closers = append(closers, func() {
				if err := enc.Close(); err != nil {
					logger.Warn("closing matrix crypto store", "error", err)
				}
			})
		}
		ma := matrix.NewAdapter(client, matrix.Config{
			UserID:          client.UserID.String(),
			AllowedRooms:    mc.AllowedRooms,
			CommandPrefix:   mc.CommandPrefix,
			TypingIndicator: mc.TypingIndicator,
			Notices:         mc.Notices,
			QuoteReplies:    mc.QuoteReplies,
		}, a.bot.OnTurn, matrix.WithTokenProvider(a.tokenProvider()), matrix.WithLogger(logger))
		a.install(ma.Base)
		chans = append(chans, channel{id: matrix.ChannelID, adapter: ma, run: ma.Run})
	}

	if dc := cfg.Channels.Discord; dc.Enabled {
		session, err := discord.Connect(dc.Token)
		if err != nil {
			return nil, cleanup, err
		}
		da := discord.NewAdapter(session, discord.Config{
			AllowedChannels: dc.AllowedChannels,
			CommandPrefix:   dc.CommandPrefix,
			RequireMention:  dc.RequireMention,
			QuoteReplies:    dc.QuoteReplies,
		}, a.bot.OnTurn, discord.WithTokenProvider(a.tokenProvider()), discord.WithLogger(logger))
		a.install(da.Base)
		chans = append(chans, channel{id: discord.ChannelID, adapter: da, run: da.Run})
	}

	return chans, cleanup, nil
}

func printStartup(configPath string, cfg *config.Config, a *app) {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Storage:   %s", cfg.Storage.Driver)
	if cfg.Storage.Path != "" && cfg.Storage.Driver != "memory" {
		gray.Printf(" (%s)", cfg.Storage.Path)
	}
	fmt.Println()

	if cfg.Channels.Matrix.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Matrix:    ")
		cyan.Println(cfg.Channels.Matrix.Homeserver)
	}
	if cfg.Channels.Discord.Enabled {
		green.Print("    ▶ ")
		fmt.Println("Discord:   enabled")
	}

	if a.listener != nil {
		green.Print("    ▶ ")
		fmt.Printf("OAuth:     %s", a.listener.Addr())
		if cfg.Tailscale.Enabled {
			fmt.Print(" on ")
			cyan.Print(cfg.Tailscale.Hostname)
			if cfg.Tailscale.Funnel {
				yellow.Print(" [funnel]")
			}
			if cfg.Tailscale.Ephemeral {
				gray.Print(" (ephemeral)")
			}
		}
		fmt.Println()
	}

	fmt.Println()
}

// dataPath returns the coven-bot data directory.
// Priority: XDG_DATA_HOME/coven-bot > ~/.local/share/coven-bot
func dataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "coven-bot")
}
