package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/point-admin/internal/model"
	"github.com/vyrodovalexey/point-admin/internal/store"
)

const entityName = "point"

// Error keys returned in ErrorResponse.ErrorKey and the error alert header.
const (
	ErrKeyIDExists   = "idexists"
	ErrKeyIDNull     = "idnull"
	ErrKeyIDInvalid  = "idinvalid"
	ErrKeyIDNotFound = "idnotfound"
	ErrKeyValidation = "validation"
	ErrKeyBadRequest = "badrequest"
	ErrKeyNotFound   = "notfound"
)

// TotalCountHeader carries the total number of points on list responses.
const TotalCountHeader = "X-Total-Count"

// MergePatchContentType is accepted by PATCH next to application/json.
const MergePatchContentType = "application/merge-patch+json"

var pointOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "point_operations_total",
		Help: "Total number of point operations by outcome",
	},
	[]string{"operation", "outcome"},
)

// PointHandler serves the points REST resource.
type PointHandler struct {
	store   store.Store
	events  EventPublisher
	appName string
	logger  *zap.Logger
}

// NewPointHandler creates a new PointHandler. events may be nil.
func NewPointHandler(s store.Store, events EventPublisher, appName string, logger *zap.Logger) *PointHandler {
	return &PointHandler{
		store:   s,
		events:  events,
		appName: appName,
		logger:  logger,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *PointHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.ReadyCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/points", h.ListPoints).Methods(http.MethodGet)
	router.HandleFunc("/api/points", h.CreatePoint).Methods(http.MethodPost)
	router.HandleFunc("/api/points/{id}", h.GetPoint).Methods(http.MethodGet)
	router.HandleFunc("/api/points/{id}", h.UpdatePoint).Methods(http.MethodPut)
	router.HandleFunc("/api/points/{id}", h.PartialUpdatePoint).Methods(http.MethodPatch)
	router.HandleFunc("/api/points/{id}", h.DeletePoint).Methods(http.MethodDelete)
}

// HealthCheck handles GET /health requests.
func (h *PointHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, HealthResponse{Status: "healthy", Version: Version})
}

// ReadyCheck handles GET /ready requests. The store is probed with a cheap lookup.
func (h *PointHandler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.Exists(r.Context(), 1); err != nil {
		h.logger.Warn("readiness probe failed", zap.Error(err))
		writeJSON(w, h.logger, http.StatusServiceUnavailable, ReadyResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, ReadyResponse{Status: "ready"})
}

// ListPoints handles GET /api/points requests.
func (h *PointHandler) ListPoints(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageRequest(r.URL.Query())
	if err != nil {
		h.badRequest(w, "list", err.Error(), ErrKeyBadRequest)
		return
	}

	points, total, err := h.store.List(r.Context(), page)
	if err != nil {
		h.handleStoreError(w, err, "list")
		return
	}

	if page.Size <= 0 {
		page.Size = model.DefaultPageSize
	}
	w.Header().Set(TotalCountHeader, strconv.FormatInt(total, 10))
	if link := paginationLink(r.URL, page, total); link != "" {
		w.Header().Set("Link", link)
	}

	h.observe("list", "success")
	writeJSON(w, h.logger, http.StatusOK, points)
}

// GetPoint handles GET /api/points/{id} requests.
func (h *PointHandler) GetPoint(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "get")
	if !ok {
		return
	}

	point, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.handleStoreError(w, err, "get")
		return
	}

	h.observe("get", "success")
	writeJSON(w, h.logger, http.StatusOK, point)
}

// CreatePoint handles POST /api/points requests.
func (h *PointHandler) CreatePoint(w http.ResponseWriter, r *http.Request) {
	var input model.Point
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.badRequest(w, "create", "invalid request body", ErrKeyBadRequest)
		return
	}

	if input.HasID() {
		h.badRequest(w, "create", "A new point cannot already have an ID", ErrKeyIDExists)
		return
	}

	if err := input.Validate(); err != nil {
		h.logger.Warn("validation failed", zap.Error(err))
		h.badRequest(w, "create", err.Error(), ErrKeyValidation)
		return
	}

	point, err := h.store.Create(r.Context(), &input)
	if err != nil {
		h.handleStoreError(w, err, "create")
		return
	}

	id := point.IDValue()
	w.Header().Set("Location", fmt.Sprintf("/api/points/%d", id))
	h.setAlert(w, "created", id)
	h.publish(model.EventPointCreated, id)
	h.observe("create", "success")
	writeJSON(w, h.logger, http.StatusCreated, point)
}

// UpdatePoint handles PUT /api/points/{id} requests.
func (h *PointHandler) UpdatePoint(w http.ResponseWriter, r *http.Request) {
	id, input, ok := h.decodeWrite(w, r, "update")
	if !ok {
		return
	}

	if err := input.Validate(); err != nil {
		h.logger.Warn("validation failed", zap.Error(err))
		h.badRequest(w, "update", err.Error(), ErrKeyValidation)
		return
	}

	if !h.checkExists(w, r, id, "update") {
		return
	}

	point, err := h.store.Update(r.Context(), id, input)
	if err != nil {
		h.handleStoreError(w, err, "update")
		return
	}

	h.setAlert(w, "updated", id)
	h.publish(model.EventPointUpdated, id)
	h.observe("update", "success")
	writeJSON(w, h.logger, http.StatusOK, point)
}

// PartialUpdatePoint handles PATCH /api/points/{id} requests. Absent fields
// keep their stored value.
func (h *PointHandler) PartialUpdatePoint(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || (mediaType != "application/json" && mediaType != MergePatchContentType) {
			h.observe("partial_update", "unsupported_media_type")
			writeJSON(w, h.logger, http.StatusUnsupportedMediaType, model.ErrorResponse{
				Code:    http.StatusUnsupportedMediaType,
				Message: "unsupported content type " + ct,
			})
			return
		}
	}

	id, input, ok := h.decodeWrite(w, r, "partial_update")
	if !ok {
		return
	}

	if err := input.ValidatePatch(); err != nil {
		h.logger.Warn("validation failed", zap.Error(err))
		h.badRequest(w, "partial_update", err.Error(), ErrKeyValidation)
		return
	}

	if !h.checkExists(w, r, id, "partial_update") {
		return
	}

	point, err := h.store.PartialUpdate(r.Context(), id, input)
	if err != nil {
		h.handleStoreError(w, err, "partial_update")
		return
	}

	h.setAlert(w, "updated", id)
	h.publish(model.EventPointUpdated, id)
	h.observe("partial_update", "success")
	writeJSON(w, h.logger, http.StatusOK, point)
}

// DeletePoint handles DELETE /api/points/{id} requests.
func (h *PointHandler) DeletePoint(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "delete")
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.handleStoreError(w, err, "delete")
		return
	}

	h.setAlert(w, "deleted", id)
	h.publish(model.EventPointDeleted, id)
	h.observe("delete", "success")
	w.WriteHeader(http.StatusNoContent)
}

// decodeWrite parses the path id and the body of a PUT or PATCH request and
// checks that the body id is present and equal to the path id.
func (h *PointHandler) decodeWrite(w http.ResponseWriter, r *http.Request, op string) (int64, *model.Point, bool) {
	id, ok := h.pathID(w, r, op)
	if !ok {
		return 0, nil, false
	}

	var input model.Point
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.badRequest(w, op, "invalid request body", ErrKeyBadRequest)
		return 0, nil, false
	}

	if !input.HasID() {
		h.badRequest(w, op, "Invalid id", ErrKeyIDNull)
		return 0, nil, false
	}
	if input.IDValue() != id {
		h.badRequest(w, op, "Invalid ID", ErrKeyIDInvalid)
		return 0, nil, false
	}

	return id, &input, true
}

func (h *PointHandler) checkExists(w http.ResponseWriter, r *http.Request, id int64, op string) bool {
	exists, err := h.store.Exists(r.Context(), id)
	if err != nil {
		h.handleStoreError(w, err, op)
		return false
	}
	if !exists {
		h.badRequest(w, op, "Entity not found", ErrKeyIDNotFound)
		return false
	}
	return true
}

func (h *PointHandler) pathID(w http.ResponseWriter, r *http.Request, op string) (int64, bool) {
	id, err := model.ParseID(mux.Vars(r)["id"])
	if err != nil {
		h.badRequest(w, op, err.Error(), ErrKeyBadRequest)
		return 0, false
	}
	return id, true
}

// handleStoreError handles store errors and writes appropriate HTTP responses.
func (h *PointHandler) handleStoreError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.observe(op, "not_found")
		writeJSON(w, h.logger, http.StatusNotFound, model.ErrorResponse{
			Code:       http.StatusNotFound,
			Message:    "point not found",
			EntityName: entityName,
			ErrorKey:   ErrKeyNotFound,
		})
	case errors.Is(err, store.ErrInvalidID), errors.Is(err, store.ErrInvalidSort), errors.Is(err, store.ErrNilPoint):
		h.badRequest(w, op, err.Error(), ErrKeyBadRequest)
	default:
		h.logger.Error("store operation failed", zap.String("operation", op), zap.Error(err))
		h.observe(op, "error")
		writeJSON(w, h.logger, http.StatusInternalServerError, model.ErrorResponse{
			Code:    http.StatusInternalServerError,
			Message: "internal server error",
		})
	}
}

func (h *PointHandler) badRequest(w http.ResponseWriter, op, message, key string) {
	h.observe(op, "bad_request")
	w.Header().Set("X-"+h.appName+"-error", "error."+key)
	w.Header().Set("X-"+h.appName+"-params", entityName)
	writeJSON(w, h.logger, http.StatusBadRequest, model.ErrorResponse{
		Code:       http.StatusBadRequest,
		Message:    message,
		EntityName: entityName,
		ErrorKey:   key,
	})
}

// setAlert sets the alert headers announcing a successful write.
func (h *PointHandler) setAlert(w http.ResponseWriter, action string, id int64) {
	w.Header().Set("X-"+h.appName+"-alert", h.appName+"."+entityName+"."+action)
	w.Header().Set("X-"+h.appName+"-params", strconv.FormatInt(id, 10))
}

func (h *PointHandler) publish(eventType string, id int64) {
	if h.events == nil {
		return
	}
	h.events.Publish(model.NewPointEvent(eventType, id))
}

func (h *PointHandler) observe(op, outcome string) {
	pointOperationsTotal.WithLabelValues(op, outcome).Inc()
}

// AlertHeaders returns the names of the alert headers for appName, for CORS exposure.
func AlertHeaders(appName string) []string {
	return []string{"X-" + appName + "-alert", "X-" + appName + "-error", "X-" + appName + "-params"}
}

// parsePageRequest reads page, size and the repeatable sort parameter.
func parsePageRequest(q url.Values) (model.PageRequest, error) {
	var page model.PageRequest

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > model.MaxPage {
			return page, fmt.Errorf("invalid page %q", v)
		}
		page.Page = n
	}

	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, fmt.Errorf("invalid size %q", v)
		}
		page.Size = min(n, model.MaxPageSize)
	}

	for _, s := range q["sort"] {
		if strings.TrimSpace(s) != "" {
			page.Sort = append(page.Sort, s)
		}
	}

	return page, nil
}

// paginationLink builds an RFC 5988 Link header with next, prev, last and
// first relations for the current request.
func paginationLink(u *url.URL, page model.PageRequest, total int64) string {
	totalPages := int((total + int64(page.Size) - 1) / int64(page.Size))

	link := func(n int, rel string) string {
		q := u.Query()
		q.Set("page", strconv.Itoa(n))
		q.Set("size", strconv.Itoa(page.Size))
		ref := url.URL{Path: u.Path, RawQuery: q.Encode()}
		return fmt.Sprintf("<%s>; rel=%q", ref.String(), rel)
	}

	var links []string
	if page.Page < totalPages-1 {
		links = append(links, link(page.Page+1, "next"))
	}
	if page.Page > 0 {
		links = append(links, link(page.Page-1, "prev"))
	}
	links = append(links, link(max(totalPages-1, 0), "last"), link(0, "first"))

	return strings.Join(links, ",")
}
