// Package admin exposes the proxy's read-only operator surface: liveness,
// a snapshot of in-flight flows, and a certificate-cache summary. None of it
// can mutate a running flow; the interactive pause/resume hook lives on
// ioruntime.Runtime directly.
package admin

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/gorilla/schema"

	"github.com/aetherproxy/aetherproxy/internal/certstore"
	"github.com/aetherproxy/aetherproxy/internal/flow"
	"github.com/aetherproxy/aetherproxy/internal/ioruntime"
)

var decoder = schema.NewDecoder()

// Server wires a chi.Router around a Runtime and certstore.Store: one small
// struct holding the collaborators a handler needs, with methods registered
// onto a router rather than bare http.HandleFunc calls.
type Server struct {
	Runtime *ioruntime.Runtime
	Certs   *certstore.Store

	router chi.Router
}

// New builds a Server with routes already registered.
func New(rt *ioruntime.Runtime, certs *certstore.Store) *Server {
	s := &Server{Runtime: rt, Certs: certs}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats/flows", s.handleFlows)
	r.Get("/stats/certs", s.handleCertStats)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, healthResponse{Status: "ok"})
}

// flowFilter is decoded from the query string via gorilla/schema, e.g.
// GET /stats/flows?host=example.com.
type flowFilter struct {
	Host string `schema:"host"`
}

type flowSummary struct {
	ID     uint64 `json:"id"`
	Client string `json:"client"`
	Target string `json:"target"`
}

func (s *Server) handleFlows(w http.ResponseWriter, r *http.Request) {
	var filter flowFilter
	if err := r.ParseForm(); err == nil {
		_ = decoder.Decode(&filter, r.Form)
	}

	out := []flowSummary{}
	if s.Runtime != nil {
		s.Runtime.Registry.Range(func(_ uuid.UUID, f *flow.Flow) bool {
			target := f.Pair.Target()
			if filter.Host != "" && filter.Host != target {
				return true
			}
			out = append(out, flowSummary{ID: f.ID, Client: f.ClientAddr, Target: target})
			return true
		})
	}
	render.JSON(w, r, out)
}

type certStatsResponse struct {
	CacheSize int       `json:"cache_size"`
	AsOf      time.Time `json:"as_of"`
}

func (s *Server) handleCertStats(w http.ResponseWriter, r *http.Request) {
	n := 0
	if s.Certs != nil {
		n = s.Certs.CacheLen()
	}
	render.JSON(w, r, certStatsResponse{CacheSize: n, AsOf: time.Now()})
}
