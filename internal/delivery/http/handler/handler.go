package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/user/autolist-service/internal/delivery/http/request"
	"github.com/user/autolist-service/internal/delivery/http/response"
	"github.com/user/autolist-service/internal/entity"
	"github.com/user/autolist-service/internal/repository"
	"github.com/user/autolist-service/internal/usecase"
)

const (
	serviceName        = "AutoList API"
	healthCheckTimeout = 2 * time.Second
	defaultListLimit   = 20
	maxListLimit       = 100
)

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

type Handler struct {
	collector usecase.Collector
	products  repository.ProductRepository
	runs      repository.RunRepository
	checks    map[string]Pinger
}

// NewHandler wires the HTTP handlers. checks are run by the health endpoint, keyed by dependency name.
func NewHandler(
	collector usecase.Collector,
	products repository.ProductRepository,
	runs repository.RunRepository,
	checks map[string]Pinger,
) *Handler {
	return &Handler{
		collector: collector,
		products:  products,
		runs:      runs,
		checks:    checks,
	}
}

func (h *Handler) HandleCollectProducts(w http.ResponseWriter, r *http.Request) {
	var req request.CollectProductsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Keyword) == "" {
		h.writeJSONError(w, usecase.ErrInvalidKeyword.Error(), http.StatusBadRequest)
		return
	}
	if req.MaxPages < 0 {
		h.writeJSONError(w, "max_pages must not be negative", http.StatusBadRequest)
		return
	}

	run, err := h.collector.Collect(r.Context(), usecase.CollectRequest{
		Keyword:  req.Keyword,
		MaxPages: req.MaxPages,
		Force:    req.Force,
	})
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidKeyword):
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, usecase.ErrKeywordRecentlyCollected):
			h.writeJSONError(w, err.Error(), http.StatusConflict)
		default:
			slog.Error("Failed to start collection", "keyword", req.Keyword, "error", err)
			h.writeJSONError(w, "Failed to start collection run", http.StatusInternalServerError)
		}
		return
	}

	resp := response.CollectProductsResponse{
		Success: run.Status != entity.RunFailed,
		Run:     response.NewRunResponse(run),
	}
	if !resp.Success {
		resp.Error = run.Reason
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	keyword := usecase.NormalizeKeyword(r.URL.Query().Get("keyword"))

	runs, err := h.runs.ListRecent(r.Context(), keyword, limit)
	if err != nil {
		slog.Error("Failed to list collection runs", "error", err)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := response.RunListResponse{Success: true, Count: len(runs), Runs: make([]response.RunResponse, 0, len(runs))}
	for _, run := range runs {
		resp.Runs = append(resp.Runs, response.NewRunResponse(run))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeJSONError(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	run, err := h.runs.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.writeJSONError(w, "Collection run not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to get collection run", "run_id", id, "error", err)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.RunResponseItem{Success: true, Run: response.NewRunResponse(run)})
}

func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	keyword := usecase.NormalizeKeyword(r.URL.Query().Get("keyword"))

	products, err := h.products.List(r.Context(), keyword, limit)
	if err != nil {
		slog.Error("Failed to list products", "error", err)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := response.ProductListResponse{Success: true, Count: len(products), Products: make([]response.ProductResponse, 0, len(products))}
	for _, p := range products {
		resp.Products = append(resp.Products, response.NewProductResponse(p))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	externalID := strings.TrimSpace(chi.URLParam(r, "externalID"))

	product, err := h.products.FindByExternalID(r.Context(), externalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.writeJSONError(w, "Product not found", http.StatusNotFound)
			return
		}
		slog.Error("Failed to get product", "external_id", externalID, "error", err)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, response.ProductResponseItem{Success: true, Product: response.NewProductResponse(product)})
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := response.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Service:   serviceName,
		Checks:    make(map[string]string, len(h.checks)),
	}
	status := http.StatusOK
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			slog.Warn("Health check failed", "dependency", name, "error", err)
			resp.Checks[name] = "error: " + err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.writeJSONError(w, "Not found", http.StatusNotFound)
}

func (h *Handler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
}

func (h *Handler) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		h.writeJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return min(limit, maxListLimit), true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Success: false, Error: message})
}
