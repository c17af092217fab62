// ABOUTME: Assembles storage, the token service and the bot from config
// ABOUTME: Shared by the serve and console subcommands

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/2389/coven-bot/internal/adapter"
	"github.com/2389/coven-bot/internal/bot"
	"github.com/2389/coven-bot/internal/config"
	"github.com/2389/coven-bot/internal/dedupe"
	"github.com/2389/coven-bot/internal/oauth"
	"github.com/2389/coven-bot/internal/state"
	"github.com/2389/coven-bot/internal/store"
	"github.com/2389/coven-bot/internal/turn"
)

// app holds everything a channel adapter needs to run turns.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	storage     store.Storage
	transcripts store.TranscriptStore
	dedupe      *dedupe.Cache
	tokens      *oauth.Service
	listener    *oauth.Listener
	bot         *bot.Bot
	closers     []io.Closer
}

// newApp opens storage, starts the callback listener when oauth is
// configured and builds the bot.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if err := a.openStorage(); err != nil {
		return nil, err
	}
	if err := a.startTokens(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.dedupe = dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize)

	b, err := bot.New(bot.Config{
		ConversationState: state.NewConversationState(a.storage, logger),
		UserState:         state.NewUserState(a.storage, logger),
		OAuthConnection:   cfg.Bot.SigninConnection,
		DefaultLocale:     cfg.Bot.DefaultLocale,
		Logger:            logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating bot: %w", err)
	}
	a.bot = b
	return a, nil
}

func (a *app) openStorage() error {
	switch a.cfg.Storage.Driver {
	case "memory":
		mem := store.NewMemoryStorage()
		a.storage = mem
		a.transcripts = mem
		return nil
	default:
		db, err := store.NewSQLiteStorage(a.cfg.Storage.Path, store.SQLiteOptions{
			Driver:     a.cfg.Storage.Driver,
			Collection: a.cfg.Storage.Collection,
			Logger:     a.logger,
		})
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		a.storage = db
		a.transcripts = db
		a.closers = append(a.closers, db)
		return nil
	}
}

func (a *app) startTokens(ctx context.Context) error {
	oc := a.cfg.OAuth
	if !oc.Enabled() {
		return nil
	}

	ts := a.cfg.Tailscale
	ln, err := oauth.Listen(ctx, oc.ListenAddr, oauth.TailscaleOptions{
		Enabled:   ts.Enabled,
		Hostname:  ts.Hostname,
		AuthKey:   ts.AuthKey,
		StateDir:  ts.StateDir,
		Ephemeral: ts.Ephemeral,
		Funnel:    ts.Funnel,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("opening oauth callback listener: %w", err)
	}
	a.listener = ln
	a.closers = append(a.closers, ln)

	callback := oc.CallbackURL
	if callback == "" {
		callback, err = url.JoinPath(ln.PublicURL, oauth.CallbackPath)
		if err != nil {
			return fmt.Errorf("building callback url: %w", err)
		}
	}

	conns := make([]oauth.Connection, len(oc.Connections))
	for i, c := range oc.Connections {
		conns[i] = oauth.Connection{
			Name:         c.Name,
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			AuthURL:      c.AuthURL,
			TokenURL:     c.TokenURL,
			Scopes:       c.Scopes,
		}
	}

	svc, err := oauth.NewService(a.storage, oauth.Config{
		CallbackURL:   callback,
		SigningSecret: oc.SigningSecret,
		VaultKey:      oc.VaultKey,
		StateTTL:      oc.StateTTL,
		CodeTTL:       oc.CodeTTL,
		Connections:   conns,
	}, oauth.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	a.tokens = svc
	return nil
}

// tokenProvider returns the token service, or nil when oauth is off.
func (a *app) tokenProvider() turn.UserTokenProvider {
	if a.tokens == nil {
		return nil
	}
	return a.tokens
}

// install adds the turn middleware every channel shares.
func (a *app) install(base *adapter.Base) {
	base.Use(dedupe.Middleware(a.dedupe))
	if a.cfg.Bot.Transcripts && a.transcripts != nil {
		base.Use(adapter.NewTranscriptLogger(a.transcripts, a.logger))
	}
	base.Use(a.bot.Middleware()...)
}

// serveTokens runs the callback server until ctx is done. It returns
// immediately when oauth is off.
func (a *app) serveTokens(ctx context.Context) error {
	if a.tokens == nil {
		return nil
	}
	return a.tokens.Serve(ctx, a.listener)
}

// Close releases everything newApp opened, newest first.
func (a *app) Close() error {
	if a.dedupe != nil {
		a.dedupe.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
