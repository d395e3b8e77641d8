package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/product-search-assistant/internal/config"
	"github.com/kirillkom/product-search-assistant/internal/core/domain"
	"github.com/kirillkom/product-search-assistant/internal/core/ports"
	"github.com/kirillkom/product-search-assistant/internal/core/usecase"
	"github.com/kirillkom/product-search-assistant/internal/observability/metrics"
)

const (
	maxQueryBodyBytes  = 1 << 20
	maxUploadBodyBytes = 64 << 20
)

type Router struct {
	cfg       config.Config
	assistant ports.AssistantService
	importer  ports.CatalogImporter
	imports   ports.CatalogImportReader
	metrics   *metrics.HTTPServerMetrics
}

// NewRouter builds the API router. Catalog routes are registered only when
// both importer and imports are set; a nil httpMetrics disables /metrics.
func NewRouter(
	cfg config.Config,
	assistant ports.AssistantService,
	importer ports.CatalogImporter,
	imports ports.CatalogImportReader,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:       cfg,
		assistant: assistant,
		importer:  importer,
		imports:   imports,
		metrics:   httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /readyz", rt.readyz)
	mux.HandleFunc("POST /v1/assistant/query", rt.queryAssistant)
	mux.HandleFunc("POST /v1/assistant/init", rt.initAssistant)
	if rt.importer != nil && rt.imports != nil {
		mux.HandleFunc("POST /v1/catalog/imports", rt.uploadCatalog)
		mux.HandleFunc("GET /v1/catalog/imports/{id}", rt.getCatalogImport)
	}
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, _ *http.Request) {
	state := rt.assistant.State()
	status := http.StatusOK
	if state != domain.InitReady {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": string(state)})
}

type assistantQueryRequest struct {
	Query   string                    `json:"query"`
	History string                    `json:"history"`
	Turns   []domain.ConversationTurn `json:"turns"`
}

// assistantQueryResponse is the envelope plus the parsed answer.
type assistantQueryResponse struct {
	domain.ResponseEnvelope
	Prose  string             `json:"prose"`
	Images []domain.ImageCard `json:"images"`
}

func (rt *Router) queryAssistant(w http.ResponseWriter, r *http.Request) {
	var req assistantQueryRequest
	body := http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	history := strings.TrimSpace(req.History)
	if history == "" {
		history = domain.HistoryFromTurns(req.Turns)
	}

	envelope := rt.assistant.Handle(r.Context(), query, history)
	annotateRequest(r.Context(), "query_success", envelope.Success, "result_count", envelope.ResultCount)
	resp := assistantQueryResponse{
		ResponseEnvelope: envelope,
		Prose:            envelope.Response,
		Images:           []domain.ImageCard{},
	}
	if envelope.Success {
		answer := usecase.ParseComposedAnswer(envelope.Response, envelope.Results)
		resp.Prose = answer.Prose
		resp.Images = answer.Images
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) initAssistant(w http.ResponseWriter, r *http.Request) {
	err := rt.assistant.Reinitialize(r.Context())
	annotateRequest(r.Context(), "assistant_state", string(rt.assistant.State()))
	if err != nil {
		slog.Warn("assistant_reinitialize_failed",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": string(rt.assistant.State()),
			"error":  usecase.MessageInitializationFailed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(rt.assistant.State())})
}

func (rt *Router) uploadCatalog(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodyBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "catalog file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	started := time.Now()
	imp, err := rt.importer.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	annotateRequest(r.Context(), "import_id", imp.ID)
	slog.Info("catalog_import_uploaded",
		"request_id", requestIDFromContext(r.Context()),
		"import_id", imp.ID,
		"filename", imp.Filename,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	writeJSON(w, http.StatusAccepted, imp)
}

func (rt *Router) getCatalogImport(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "import id is required")
		return
	}

	annotateRequest(r.Context(), "import_id", id)
	imp, err := rt.imports.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, imp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
