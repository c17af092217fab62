// ABOUTME: HTTP callback handler completing OAuth sign-ins
// ABOUTME: Shows the magic code the user types into the chat

package oauth

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net"
	"net/http"
	"time"
)

// CallbackPath is where providers redirect after authorization.
const CallbackPath = "/oauth/callback"

//go:embed templates/*.html
var templateFS embed.FS

var callbackTemplate = template.Must(template.ParseFS(templateFS, "templates/callback.html"))

type callbackData struct {
	Title   string
	Code    string
	Expires string
	Error   string
}

// Handler returns the callback handler.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+CallbackPath, s.handleCallback)
	return mux
}

func (s *Service) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		s.logger.Warn("provider denied sign-in", "error", reason, "description", q.Get("error_description"))
		s.renderCallback(w, http.StatusBadRequest, callbackData{Title: "Sign-in cancelled", Error: "The provider did not authorize the sign-in."})
		return
	}

	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		s.renderCallback(w, http.StatusBadRequest, callbackData{Title: "Sign-in failed", Error: "The callback is missing its state or code."})
		return
	}

	magic, err := s.Complete(r.Context(), state, code)
	switch {
	case err == nil:
		s.renderCallback(w, http.StatusOK, callbackData{Title: "Almost done", Code: magic, Expires: s.codeTTL.String()})
	case errors.Is(err, ErrExpiredState):
		s.renderCallback(w, http.StatusBadRequest, callbackData{Title: "Sign-in failed", Error: "This sign-in link has expired."})
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrUnknownConnection):
		s.logger.Warn("rejected sign-in callback", "error", err)
		s.renderCallback(w, http.StatusBadRequest, callbackData{Title: "Sign-in failed", Error: "This sign-in link is not valid."})
	case errors.Is(err, ErrExchange):
		s.logger.Error("code exchange failed", "error", err)
		s.renderCallback(w, http.StatusBadGateway, callbackData{Title: "Sign-in failed", Error: "The provider rejected the sign-in."})
	default:
		s.logger.Error("completing sign-in", "error", err)
		s.renderCallback(w, http.StatusInternalServerError, callbackData{Title: "Sign-in failed", Error: "Something went wrong on our side."})
	}
}

func (s *Service) renderCallback(w http.ResponseWriter, status int, data callbackData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := callbackTemplate.Execute(w, data); err != nil {
		s.logger.Error("rendering callback page", "error", err)
	}
}

// Serve runs the callback handler on ln until ctx is cancelled.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("oauth callback listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
