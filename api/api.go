package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/oriser/tramper/service"
)

type Config struct {
	Port            uint          `env:"HTTP_PORT" envDefault:"8080"`
	JWTSecret       string        `env:"JWT_SECRET,required" json:"-"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type Server struct {
	service         *service.Service
	router          *mux.Router
	jwtSecret       []byte
	port            uint
	shutdownTimeout time.Duration
}

func New(cfg Config, serviceHandler *service.Service) *Server {
	s := &Server{
		service:         serviceHandler,
		jwtSecret:       []byte(cfg.JWTSecret),
		port:            cfg.Port,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	authed := router.NewRoute().Subrouter()
	authed.Use(s.authenticate)

	authed.HandleFunc("/users", s.registerUser).Methods(http.MethodPost)

	authed.HandleFunc("/requests", s.createRequest).Methods(http.MethodPost)
	authed.HandleFunc("/requests/my", s.listMyRequests).Methods(http.MethodGet)
	authed.HandleFunc("/requests/shipment/{id}", s.listShipmentRequests).Methods(http.MethodGet)
	authed.HandleFunc("/requests/trip/{id}", s.listTripRequests).Methods(http.MethodGet)
	authed.HandleFunc("/requests/{id}", s.getRequest).Methods(http.MethodGet)
	authed.HandleFunc("/requests/{id}", s.updateRequestStatus).Methods(http.MethodPatch)
	authed.HandleFunc("/requests/{id}", s.deleteRequest).Methods(http.MethodDelete)
	authed.HandleFunc("/requests/{id}/counter", s.createCounterOffer).Methods(http.MethodPost)

	authed.HandleFunc("/shipments", s.createShipment).Methods(http.MethodPost)
	authed.HandleFunc("/shipments/{id}", s.getShipment).Methods(http.MethodGet)
	authed.HandleFunc("/trips", s.createTrip).Methods(http.MethodPost)
	authed.HandleFunc("/trips/{id}", s.getTrip).Methods(http.MethodGet)

	authed.HandleFunc("/notifications", s.listNotifications).Methods(http.MethodGet)
	authed.HandleFunc("/notifications/{id}/read", s.markNotificationRead).Methods(http.MethodPost)

	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Println("Server listening on port", s.port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
