package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/tidwall/sjson"

	"github.com/GPTx-global/flightsurety/oracle/health"
	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

const indexMessage = "An API for use with your Dapp!"

// OracleLister is the read side of the registry.
type OracleLister interface {
	AllOracles() []types.RegisteredOracle
	Len() int
}

// Server exposes the daemon state to the dapp over HTTP.
type Server struct {
	router   *mux.Router
	listen   string
	registry OracleLister
	checker  *health.HealthChecker
	sink     *metrics.InmemSink
}

// New builds the router. checker and sink may be nil, in which case their routes answer 404.
func New(listen string, registry OracleLister, checker *health.HealthChecker, sink *metrics.InmemSink) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		listen:   listen,
		registry: registry,
		checker:  checker,
		sink:     sink,
	}
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/api", s.index).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/oracles", s.oracles).Methods(http.MethodGet)
	api.HandleFunc("/health", s.health).Methods(http.MethodGet)
	api.HandleFunc("/metrics", s.metrics).Methods(http.MethodGet)
}

// Handler is the router wrapped with permissive CORS, since the dapp is served from another origin.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}).Handler(s.router)
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Infof("api server listening on %s", s.listen)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	body, err := sjson.Set(`{}`, "message", indexMessage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) oracles(w http.ResponseWriter, _ *http.Request) {
	oracles := s.registry.AllOracles()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(oracles),
		"oracles": oracles,
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		http.NotFound(w, r)
		return
	}

	code := http.StatusOK
	healthy := s.checker.IsHealthy()
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"healthy": healthy,
		"checks":  s.checker.GetStatus(),
	})
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		http.NotFound(w, r)
		return
	}

	summary, err := s.sink.DisplayMetrics(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	body, _ := sjson.Set(`{}`, "error", err.Error())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
