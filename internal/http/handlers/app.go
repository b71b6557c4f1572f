package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/toukir-bd/ImVeo/internal/imaging"
	"github.com/toukir-bd/ImVeo/internal/infra"
	"github.com/toukir-bd/ImVeo/internal/workflow"
)

const sessionCookie = "imveo_session"

// App bundles the dependencies the HTTP layer needs.
type App struct {
	Logger         infra.Logger
	Encoder        *imaging.Encoder
	Sessions       *workflow.Registry
	MaxUploadBytes int64
}

func NewApp(logger infra.Logger, encoder *imaging.Encoder, sessions *workflow.Registry, maxUploadBytes int64) *App {
	return &App{
		Logger:         logger,
		Encoder:        encoder,
		Sessions:       sessions,
		MaxUploadBytes: maxUploadBytes,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// session returns the workflow controller owned by the request's session,
// minting the session cookie on first contact.
func (a *App) session(w http.ResponseWriter, r *http.Request) *workflow.Controller {
	var sid string
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		sid = cookie.Value
	} else {
		sid = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sid,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return a.Sessions.Controller(sid)
}
