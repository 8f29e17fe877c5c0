package httpx

import (
	"log/slog"
	"net/http"

	"github.com/gradebench/gradebench/internal/core"
	"github.com/gradebench/gradebench/internal/service"
)

// RouterServices holds the services needed by the HTTP router.
type RouterServices struct {
	Batches *service.BatchService
	Worker  *service.WorkerService
	Secrets *service.SecretService

	// Repositories backing the stats endpoint.
	QueueRepo core.QueueRepository
	JobRepo   core.JobRepository

	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	batchHandlers := &BatchHandlers{Svc: services.Batches}
	workerHandlers := &WorkerHandlers{Svc: services.Worker}
	secretHandlers := &SecretHandlers{Svc: services.Secrets}
	statsHandlers := &StatsHandlers{QueueRepo: services.QueueRepo, JobRepo: services.JobRepo}

	mux.HandleFunc("POST /api/batches", batchHandlers.Create)
	mux.HandleFunc("GET /api/batches", batchHandlers.List)
	mux.HandleFunc("GET /api/batches/{id}", batchHandlers.Get)
	mux.HandleFunc("GET /api/batches/{id}/summary", batchHandlers.GetSummary)
	mux.HandleFunc("POST /api/batches/{id}/repositories", batchHandlers.AddRepository)
	mux.HandleFunc("POST /api/batches/{id}/retry", batchHandlers.Retry)
	mux.HandleFunc("DELETE /api/batches/{id}/repositories", batchHandlers.RemoveRepository)
	mux.HandleFunc("DELETE /api/batches/{id}", batchHandlers.Delete)

	mux.HandleFunc("POST /api/worker/poll", workerHandlers.Poll)
	mux.HandleFunc("POST /api/jobs/{id}/process", workerHandlers.ProcessJob)

	mux.HandleFunc("PUT /api/secrets", secretHandlers.Put)
	mux.HandleFunc("HEAD /api/secrets/{owner_id}/{type}", secretHandlers.Head)
	mux.HandleFunc("DELETE /api/secrets/{owner_id}/{type}", secretHandlers.Delete)

	mux.HandleFunc("GET /api/stats", statsHandlers.Get)
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)

	return requestLogger(mux, services.Logger)
}

// requestLogger wraps the router with minimal structured request logging.
func requestLogger(next http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		logger.DebugContext(r.Context(), "request handled", "method", r.Method, "path", r.URL.Path)
	})
}
