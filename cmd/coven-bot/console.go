// ABOUTME: The console subcommand for chatting with the bot in a terminal
// ABOUTME: Uses in-memory storage unless a config file says otherwise

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-bot/internal/bot"
	"github.com/2389/coven-bot/internal/channels/console"
	"github.com/2389/coven-bot/internal/config"
)

func runConsole(ctx context.Context) error {
	configPath := config.DefaultPath()

	cfg, err := config.Load(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// No config yet: everything in memory, nothing external.
		cfg = &config.Config{
			Bot:     config.BotConfig{Name: "coven-bot", DefaultLocale: "en-us"},
			Storage: config.StorageConfig{Driver: "memory"},
			Dedupe:  config.DedupeConfig{TTL: time.Minute, MaxSize: 1000},
			Logging: config.LoggingConfig{Level: "warn"},
		}
	case err != nil:
		return fmt.Errorf("loading config: %w", err)
	}

	// Log lines would interleave with the conversation.
	logger := setupLogger(cfg.Logging, os.Stderr)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing resources", "error", err)
		}
	}()

	go func() {
		if err := a.serveTokens(ctx); err != nil {
			logger.Error("oauth callback server failed", "error", err)
		}
	}()

	cc := cfg.Channels.Console
	ca := console.NewAdapter(os.Stdin, os.Stdout, console.Config{
		UserID:   cc.UserID,
		UserName: cc.UserName,
		BotName:  cfg.Bot.Name,
		Locale:   cfg.Bot.DefaultLocale,
	}, a.bot.OnTurn, logger, console.WithTokenProvider(a.tokenProvider()))
	a.install(ca.Base)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.bot.RunReminders(ctx, bot.DefaultReminderInterval, map[string]bot.Continuer{console.ChannelID: ca})

	gray := color.New(color.FgHiBlack)
	gray.Printf("Talking to %s. Type %s to leave.\n\n", cfg.Bot.Name, console.QuitCommand)

	return ca.Run(ctx)
}
