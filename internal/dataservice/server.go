package dataservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ghaggin/courier/internal/config"
	"github.com/ghaggin/courier/internal/middleware"
	"github.com/ghaggin/courier/internal/model"
	"github.com/ghaggin/courier/internal/remote"
	"github.com/ghaggin/courier/internal/token"
	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keepAlive = 15 * time.Second

type DataService struct {
	log    *zap.Logger
	server *http.Server
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Config  *config.Config
	Service *Service
}

func New(p Params) (*DataService, error) {
	return &DataService{
		log: p.Log,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", p.Config.DataService.Port),
			Handler:           NewRouter(p.Service, p.Log),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// RegisterHooks should be invoked by fx
func RegisterHooks(lc fx.Lifecycle, d *DataService) {
	lc.Append(fx.Hook{
		OnStart: d.Start,
		OnStop:  d.server.Shutdown,
	})
}

func (d *DataService) Start(_ context.Context) error {
	go func() {
		d.log.Info("data service listening", zap.String("addr", d.server.Addr))
		err := d.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("error starting server", zap.Error(err))
		}
	}()
	return nil
}

type handlers struct {
	svc *Service
	log *zap.Logger
}

func NewRouter(svc *Service, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &handlers{svc: svc, log: log}

	root := chi.NewRouter()
	root.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	root.Route("/auth/v1", func(r chi.Router) {
		r.Post("/signin", h.signIn)
		r.Post("/signup", h.signUp)
		r.Post("/verify", h.verify)
		r.Post("/token", h.refresh)
		r.Post("/recover", h.recoverPassword)
		r.Post("/recover/complete", h.completeRecovery)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireBearer(h.svc))
			r.Get("/user", h.user)
			r.Post("/signout", h.signOut)
		})
	})

	root.Route("/rest/v1", func(r chi.Router) {
		r.Use(middleware.RequireBearer(h.svc))
		r.Get("/orders", h.listOrders)
		r.Get("/orders/changes", h.orderChanges)
		r.Patch("/orders/{id}", h.updateOrder)
		r.Get("/profiles/me", h.getProfile)
		r.Put("/profiles/me", h.putProfile)
	})

	return root
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, remote.Error{Code: code, Message: err.Error()})
}

// fail maps service errors to responses. Unknown errors are logged and
// reported without detail.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, "invalid_credentials", err)
	case errors.Is(err, ErrEmailNotConfirmed):
		writeError(w, http.StatusBadRequest, "email_not_confirmed", err)
	case errors.Is(err, ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "invalid_email", err)
	case errors.Is(err, ErrWeakPassword):
		writeError(w, http.StatusUnprocessableEntity, "weak_password", err)
	case errors.Is(err, ErrEmailTaken):
		writeError(w, http.StatusConflict, "user_already_exists", err)
	case errors.Is(err, ErrInvalidRefreshToken), errors.Is(err, token.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", err)
	case errors.Is(err, ErrInvalidResetToken):
		writeError(w, http.StatusBadRequest, "invalid_reset_token", err)
	case errors.Is(err, ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err)
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	default:
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", errors.New("internal server error"))
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid body: %w", err))
		return false
	}
	return true
}

func (h *handlers) signIn(w http.ResponseWriter, r *http.Request) {
	var req remote.CredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := h.svc.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) signUp(w http.ResponseWriter, r *http.Request) {
	var req remote.CredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) verify(w http.ResponseWriter, r *http.Request) {
	var req remote.VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := h.svc.Verify(r.Context(), req.Token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req remote.RefreshRequest
	if !decode(w, r, &req) {
		return
	}
	s, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) recoverPassword(w http.ResponseWriter, r *http.Request) {
	var req remote.RecoverRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.Recover(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) completeRecovery(w http.ResponseWriter, r *http.Request) {
	var req remote.CompleteRecoveryRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.CompleteRecovery(r.Context(), req.Token, req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) user(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.User(r.Context(), middleware.UserID(r.Context()))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid_token", token.ErrInvalidToken)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, remote.UserResponse{ID: u.ID, Email: u.Email})
}

func (h *handlers) signOut(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SignOut(r.Context(), middleware.UserID(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := remote.DecodeFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	orders, err := h.svc.ListOrders(r.Context(), middleware.UserID(r.Context()), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *handlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req remote.StatusRequest
	if !decode(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("unknown order status %q", req.Status))
		return
	}
	o, err := h.svc.UpdateOrderStatus(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handlers) orderChanges(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", errors.New("streaming unsupported"))
		return
	}

	changes, unsubscribe := h.svc.OrderChanges()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		case <-changes:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: {}\n\n", remote.EventChange); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func (h *handlers) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Profile(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) putProfile(w http.ResponseWriter, r *http.Request) {
	var p model.Profile
	if !decode(w, r, &p) {
		return
	}
	saved, err := h.svc.SaveProfile(r.Context(), middleware.UserID(r.Context()), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
