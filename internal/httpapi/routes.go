package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/DoyleJ11/scoreboard-relay/internal/hub"
	"github.com/DoyleJ11/scoreboard-relay/internal/metrics"
	"github.com/DoyleJ11/scoreboard-relay/internal/store"
	"github.com/DoyleJ11/scoreboard-relay/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type Deps struct {
	Hub         *hub.Hub
	Store       *store.Store
	Metrics     *metrics.Manager // optional
	WS          ws.Options
	CORSOrigins []string
	Log         *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log.Named("access")))
	r.Use(middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(NotFound)
	r.MethodNotAllowed(MethodNotAllowed)

	matches := NewMatches(d.Hub, d.Store, d.Log)
	r.Route("/api/matches", func(r chi.Router) {
		r.Get("/", matches.List)
		r.Post("/", matches.Create)
		r.Get("/live", matches.ListLive)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", matches.Get)
			r.Put("/", matches.Update)
			r.Delete("/", matches.Delete)
			r.Patch("/scores", matches.UpdateScores)
			r.Post("/events", matches.AddEvent)
		})
	})

	r.Get("/health", Health(d.Store))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	wsOpts := d.WS
	if wsOpts.Log == nil {
		wsOpts.Log = d.Log
	}
	if len(wsOpts.OriginPatterns) == 0 {
		wsOpts.OriginPatterns = originPatterns(d.CORSOrigins)
	}
	r.Get("/ws", ws.Handler(d.Hub, wsOpts))
	return r
}

// originPatterns turns CORS origins ("https://host:port") into the host
// patterns the websocket origin check expects.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		out = append(out, o)
	}
	return out
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
