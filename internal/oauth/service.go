// ABOUTME: User token service implementing turn.UserTokenProvider
// ABOUTME: Builds sign-in links, redeems magic codes, caches and refreshes tokens

package oauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/2389/coven-bot/internal/store"
	"github.com/2389/coven-bot/internal/turn"
)

// Service errors
var (
	ErrUnknownConnection = errors.New("unknown oauth connection")
	ErrNoUser            = errors.New("activity has no user or channel id")
	ErrExchange          = errors.New("authorization code exchange failed")
)

const (
	DefaultStateTTL = 15 * time.Minute
	DefaultCodeTTL  = 10 * time.Minute
)

// MaxCodeAttempts is how many wrong magic codes a pending sign-in survives.
// The next wrong code discards it and the user has to sign in again.
const MaxCodeAttempts = 5

// Connection is one OAuth provider registration.
type Connection struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scopes       []string
}

// Config configures a Service.
type Config struct {
	// CallbackURL is the public URL of the callback handler.
	CallbackURL   string
	SigningSecret string
	VaultKey      string
	StateTTL      time.Duration
	CodeTTL       time.Duration
	Connections   []Connection
}

// Service is the user token service.
type Service struct {
	connections map[string]*oauth2.Config
	signer      *StateSigner
	vault       *Vault
	stateTTL    time.Duration
	codeTTL     time.Duration
	now         func() time.Time
	httpClient  *http.Client
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.signer.now = now
	}
}

// WithHTTPClient sets the client used to talk to providers.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a token service persisting tokens in storage.
func NewService(storage store.Storage, cfg Config, opts ...Option) (*Service, error) {
	if cfg.CallbackURL == "" {
		return nil, errors.New("oauth callback URL is required")
	}
	if cfg.SigningSecret == "" {
		return nil, errors.New("oauth signing secret is required")
	}
	if cfg.VaultKey == "" {
		return nil, errors.New("oauth vault key is required")
	}

	s := &Service{
		connections: make(map[string]*oauth2.Config, len(cfg.Connections)),
		signer:      NewStateSigner([]byte(cfg.SigningSecret)),
		vault:       NewVault(storage, DeriveKey(cfg.VaultKey)),
		stateTTL:    cfg.StateTTL,
		codeTTL:     cfg.CodeTTL,
		now:         time.Now,
		logger:      slog.Default(),
	}
	if s.stateTTL <= 0 {
		s.stateTTL = DefaultStateTTL
	}
	if s.codeTTL <= 0 {
		s.codeTTL = DefaultCodeTTL
	}

	for _, c := range cfg.Connections {
		if c.Name == "" {
			return nil, errors.New("oauth connection name is required")
		}
		if _, dup := s.connections[c.Name]; dup {
			return nil, fmt.Errorf("duplicate oauth connection %q", c.Name)
		}
		s.connections[c.Name] = &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Endpoint:     oauth2.Endpoint{AuthURL: c.AuthURL, TokenURL: c.TokenURL},
			RedirectURL:  cfg.CallbackURL,
			Scopes:       c.Scopes,
		}
	}

	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "oauth")
	return s, nil
}

// pendingToken waits for the user to type its code into the chat.
type pendingToken struct {
	Code     string        `json:"code"`
	Token    *oauth2.Token `json:"token"`
	Created  time.Time     `json:"created"`
	Failures int           `json:"failures,omitempty"`
}

type owner struct {
	channel, user, connection string
}

func (o owner) tokenKey() string {
	return "oauth/tokens/" + o.channel + "/" + o.user + "/" + o.connection
}

func (o owner) pendingKey() string {
	return "oauth/pending/" + o.channel + "/" + o.user + "/" + o.connection
}

func (s *Service) resolve(tc *turn.Context, connectionName string) (*oauth2.Config, owner, error) {
	cfg, ok := s.connections[connectionName]
	if !ok {
		return nil, owner{}, fmt.Errorf("%w: %q", ErrUnknownConnection, connectionName)
	}
	a := tc.Activity()
	o := owner{channel: a.ChannelID, user: a.FromID(), connection: connectionName}
	if o.channel == "" || o.user == "" {
		return nil, owner{}, ErrNoUser
	}
	return cfg, o, nil
}

// GetSignInLink returns the provider authorization URL for the turn's user.
func (s *Service) GetSignInLink(ctx context.Context, tc *turn.Context, connectionName string) (string, error) {
	cfg, o, err := s.resolve(tc, connectionName)
	if err != nil {
		return "", err
	}
	state, err := s.signer.Sign(StateClaims{User: o.user, Channel: o.channel, Connection: o.connection}, s.stateTTL)
	if err != nil {
		return "", fmt.Errorf("signing state: %w", err)
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// GetUserToken returns the user's cached token. A non-empty magicCode is
// checked against the pending sign-in first. No token and a wrong code both
// return nil, nil.
func (s *Service) GetUserToken(ctx context.Context, tc *turn.Context, connectionName, magicCode string) (*turn.TokenResponse, error) {
	cfg, o, err := s.resolve(tc, connectionName)
	if err != nil {
		return nil, err
	}
	if magicCode != "" {
		if resp, err := s.redeem(ctx, o, magicCode); resp != nil || err != nil {
			return resp, err
		}
	}

	var tok oauth2.Token
	ok, err := s.vault.Get(ctx, o.tokenKey(), &tok)
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}
	if !ok {
		return nil, nil
	}
	if tok.Expiry.IsZero() || tok.Expiry.After(s.now()) {
		return tokenResponse(connectionName, &tok), nil
	}
	return s.refresh(ctx, cfg, o, &tok)
}

func (s *Service) redeem(ctx context.Context, o owner, code string) (*turn.TokenResponse, error) {
	var p pendingToken
	ok, err := s.vault.Get(ctx, o.pendingKey(), &p)
	if err != nil {
		return nil, fmt.Errorf("reading pending token: %w", err)
	}
	if !ok {
		return nil, nil
	}
	if s.now().Sub(p.Created) > s.codeTTL {
		s.logger.Debug("magic code expired", "channel", o.channel, "user_id", o.user, "connection", o.connection)
		return nil, s.vault.Delete(ctx, o.pendingKey())
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(p.Code)) != 1 || p.Token == nil {
		p.Failures++
		if p.Failures >= MaxCodeAttempts {
			s.logger.Warn("too many wrong magic codes, discarding sign-in", "channel", o.channel, "user_id", o.user, "connection", o.connection)
			return nil, s.vault.Delete(ctx, o.pendingKey())
		}
		s.logger.Debug("magic code mismatch", "channel", o.channel, "user_id", o.user, "connection", o.connection, "failures", p.Failures)
		if err := s.vault.Put(ctx, o.pendingKey(), p); err != nil {
			return nil, fmt.Errorf("recording failed magic code: %w", err)
		}
		return nil, nil
	}

	if err := s.vault.Put(ctx, o.tokenKey(), p.Token); err != nil {
		return nil, fmt.Errorf("storing token: %w", err)
	}
	if err := s.vault.Delete(ctx, o.pendingKey()); err != nil {
		return nil, fmt.Errorf("clearing pending token: %w", err)
	}
	s.logger.Info("user signed in", "channel", o.channel, "user_id", o.user, "connection", o.connection)
	return tokenResponse(o.connection, p.Token), nil
}

// refresh trades the refresh token for a new access token. Without one the
// expired token is dropped.
func (s *Service) refresh(ctx context.Context, cfg *oauth2.Config, o owner, expired *oauth2.Token) (*turn.TokenResponse, error) {
	if expired.RefreshToken == "" {
		return nil, s.vault.Delete(ctx, o.tokenKey())
	}

	// Only the refresh token is passed so the source never trusts the stale access token.
	fresh, err := cfg.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: expired.RefreshToken}).Token()
	if err != nil {
		s.logger.Warn("token refresh failed", "channel", o.channel, "user_id", o.user, "connection", o.connection, "error", err)
		return nil, s.vault.Delete(ctx, o.tokenKey())
	}
	if err := s.vault.Put(ctx, o.tokenKey(), fresh); err != nil {
		return nil, fmt.Errorf("storing refreshed token: %w", err)
	}
	return tokenResponse(o.connection, fresh), nil
}

// SignOutUser forgets the user's token and any pending sign-in.
func (s *Service) SignOutUser(ctx context.Context, tc *turn.Context, connectionName string) error {
	_, o, err := s.resolve(tc, connectionName)
	if err != nil {
		return err
	}
	if err := s.vault.Delete(ctx, o.tokenKey(), o.pendingKey()); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}
	s.logger.Info("user signed out", "channel", o.channel, "user_id", o.user, "connection", o.connection)
	return nil
}

// Complete finishes a sign-in started by GetSignInLink: it verifies state,
// exchanges code and returns the magic code the user must type in the chat.
func (s *Service) Complete(ctx context.Context, state, code string) (string, error) {
	claims, err := s.signer.Verify(state)
	if err != nil {
		return "", err
	}
	cfg, ok := s.connections[claims.Connection]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownConnection, claims.Connection)
	}

	tok, err := cfg.Exchange(s.clientContext(ctx), code)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExchange, err)
	}

	magic, err := newMagicCode()
	if err != nil {
		return "", err
	}
	o := owner{channel: claims.Channel, user: claims.User, connection: claims.Connection}
	if err := s.vault.Put(ctx, o.pendingKey(), pendingToken{Code: magic, Token: tok, Created: s.now()}); err != nil {
		return "", fmt.Errorf("storing pending token: %w", err)
	}
	s.logger.Debug("sign-in pending", "channel", o.channel, "user_id", o.user, "connection", o.connection)
	return magic, nil
}

func (s *Service) clientContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// newMagicCode returns six random digits.
func newMagicCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generating magic code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func tokenResponse(connection string, tok *oauth2.Token) *turn.TokenResponse {
	return &turn.TokenResponse{
		ConnectionName: connection,
		Token:          tok.AccessToken,
		Expiration:     tok.Expiry,
	}
}
