// Package api exposes the dashboard service over HTTP.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/harrylevesque/makerdash/internal/auth"
	"github.com/harrylevesque/makerdash/internal/dashboard"
	"github.com/harrylevesque/makerdash/internal/metrics"
	"github.com/harrylevesque/makerdash/internal/middleware"
)

// Options configures NewRouter. Service is required.
type Options struct {
	Service *dashboard.Service
	Logger  *zap.Logger
	// StaticDir holds a frontend build. When it has no index.html the
	// embedded dashboard page is served instead.
	StaticDir   string
	CORS        *middleware.CORS
	RateLimiter *middleware.RateLimiter
	// Issuer enables token auth on /api/ routes; nil leaves them open.
	Issuer      *auth.Issuer
	Credentials auth.Credentials
}

type handlers struct {
	svc      *dashboard.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewRouter(opts Options) *mux.Router {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CORS == nil {
		opts.CORS = middleware.NewCORS([]string{"*"})
	}
	h := &handlers{
		svc:    opts.Service,
		logger: opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(opts.CORS),
		},
	}

	r := mux.NewRouter()
	r.Use(middleware.Logging(opts.Logger), metrics.InstrumentHandler, opts.CORS.Handler)
	if opts.RateLimiter != nil {
		r.Use(opts.RateLimiter.Handler)
	}
	r.Use(auth.Middleware(opts.Issuer))

	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	a := r.PathPrefix("/api").Subrouter()
	a.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	a.HandleFunc("/time", GetTimeHandler).Methods(http.MethodGet)
	a.Handle("/auth/login", auth.LoginHandler(opts.Credentials, opts.Issuer, opts.Logger)).Methods(http.MethodPost)

	a.HandleFunc("/dashboard", h.dashboard).Methods(http.MethodGet)
	a.HandleFunc("/system", h.system).Methods(http.MethodGet)
	a.HandleFunc("/activity", h.activity).Methods(http.MethodGet)
	a.HandleFunc("/ws", h.stream).Methods(http.MethodGet)

	a.HandleFunc("/makers", h.listMakers).Methods(http.MethodGet)
	a.HandleFunc("/makers", h.addMaker).Methods(http.MethodPost)
	a.HandleFunc("/makers/{id}", h.getMaker).Methods(http.MethodGet)
	a.HandleFunc("/makers/{id}", h.removeMaker).Methods(http.MethodDelete)
	a.HandleFunc("/makers/{id}/config", h.getMakerConfig).Methods(http.MethodGet)
	a.HandleFunc("/makers/{id}/config", h.saveMakerConfig).Methods(http.MethodPut)

	a.HandleFunc("/makers/{id}/start", h.lifecycle(h.svc.StartMaker)).Methods(http.MethodPost)
	a.HandleFunc("/makers/{id}/stop", h.lifecycle(h.svc.StopMaker)).Methods(http.MethodPost)
	a.HandleFunc("/makers/{id}/restart", h.lifecycle(h.svc.RestartMaker)).Methods(http.MethodPost)
	a.HandleFunc("/makers/{id}/ping", h.lifecycle(h.svc.Ping)).Methods(http.MethodPost)
	a.HandleFunc("/makers/{id}/sync", h.lifecycle(h.svc.SyncWallet)).Methods(http.MethodPost)
	a.HandleFunc("/makers/{id}/address", h.newAddress).Methods(http.MethodPost)
	a.HandleFunc("/makers/{id}/send", h.send).Methods(http.MethodPost)

	a.HandleFunc("/makers/{id}/balances", h.balances).Methods(http.MethodGet)
	a.HandleFunc("/makers/{id}/utxos", h.utxos).Methods(http.MethodGet)
	a.HandleFunc("/makers/{id}/fidelity", h.fidelity).Methods(http.MethodGet)
	a.HandleFunc("/makers/{id}/tor-address", h.torAddress).Methods(http.MethodGet)
	a.HandleFunc("/makers/{id}/data-dir", h.dataDir).Methods(http.MethodGet)
	a.HandleFunc("/makers/{id}/swaps", h.swaps).Methods(http.MethodGet)
	a.HandleFunc("/makers/{id}/logs", h.logs).Methods(http.MethodGet)

	a.HandleFunc("/settings", h.getSettings).Methods(http.MethodGet)
	a.HandleFunc("/settings", h.saveSettings).Methods(http.MethodPut)
	a.HandleFunc("/settings/test-connection", h.testConnection).Methods(http.MethodPost)
	a.HandleFunc("/settings/zmq-config", h.zmqConfig).Methods(http.MethodGet)

	// Preflight requests match here so the middleware chain runs; CORS
	// answers them before this handler is reached.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.PathPrefix("/").Handler(newSPAHandler(opts.StaticDir, opts.Logger))
	return r
}
