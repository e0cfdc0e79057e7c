package bff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ghaggin/courier/internal/config"
	"github.com/ghaggin/courier/internal/middleware"
	"github.com/ghaggin/courier/internal/model"
	"github.com/ghaggin/courier/internal/token"
	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type BFF struct {
	log    *zap.Logger
	server *http.Server
}

type Params struct {
	fx.In

	Log    *zap.Logger
	Config *config.Config
	Orders *Orders
	Tokens *token.Manager
}

func New(p Params) (*BFF, error) {
	return &BFF{
		log: p.Log,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", p.Config.BFF.Port),
			Handler:           NewRouter(p.Orders, p.Tokens, p.Log),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// RegisterHooks should be invoked by fx
func RegisterHooks(lc fx.Lifecycle, b *BFF) {
	lc.Append(fx.Hook{
		OnStart: b.Start,
		OnStop:  b.server.Shutdown,
	})
}

func (b *BFF) Start(_ context.Context) error {
	go func() {
		b.log.Info("bff listening", zap.String("addr", b.server.Addr))
		err := b.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.log.Error("error starting server", zap.Error(err))
		}
	}()
	return nil
}

type errorResponse struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type handlers struct {
	orders *Orders
	log    *zap.Logger
}

func NewRouter(orders *Orders, auth middleware.Authenticator, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &handlers{orders: orders, log: log}

	root := chi.NewRouter()
	root.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	root.With(middleware.RequireBearer(auth)).Put("/api/orders/{orderId}/status", h.updateStatus)
	root.Get("/api/test/connections", h.testConnections)
	return root
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))

	var req statusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}
	if orderID == "" || req.Status == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "order id and status are required"})
		return
	}
	status, err := model.ParseOrderStatus(req.Status)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := h.orders.UpdateStatus(r.Context(), orderID, status); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	h.log.Info("order status updated",
		zap.String("order_id", orderID),
		zap.String("status", string(status)),
		zap.String("driver_id", middleware.UserID(r.Context())))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *handlers) testConnections(w http.ResponseWriter, r *http.Request) {
	report, err := h.orders.TestConnections(r.Context())
	if err != nil {
		failed := false
		writeJSON(w, http.StatusInternalServerError, errorResponse{Success: &failed, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}
