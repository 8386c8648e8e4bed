package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/capa"
	"github.com/mind-engage/mindengage-capa/internal/storage"
)

type Deps struct {
	Service *capa.Service
	Files   storage.Store
	Signer  *CallbackSigner
	Origins []string
	Log     *zap.Logger
}

// NewRouter mounts the problem, file and grader-callback endpoints.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(d.Log), middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/problems/{problemID}", func(pr chi.Router) {
		pr.Put("/", PutProblemHandler(d.Service, d.Log))
		pr.Post("/check", CheckHandler(d.Service, d.Log))
		pr.Get("/answers", AnswersHandler(d.Service, d.Log))
	})
	if d.Files != nil {
		r.Route("/files", func(fr chi.Router) {
			MountFiles(fr, d.Files)
		})
	}
	if d.Signer != nil {
		r.Post("/xqueue/callback/{token}", CallbackHandler(d.Service, d.Signer, d.Log))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
