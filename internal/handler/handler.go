package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GoArmGo/PhotoGallery/internal/core/ports"
	"github.com/GoArmGo/PhotoGallery/internal/domain"
	"github.com/GoArmGo/PhotoGallery/internal/messaging/payloads"
	"github.com/GoArmGo/PhotoGallery/internal/usecase"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	maxBodyBytes      = 1 << 20
	maxUploadTargets  = 50
	dateOnlyLayout    = "2006-01-02"
	endOfDayExclusive = 24 * time.Hour
)

// PhotoHandler — обработчик HTTP-запросов админки галереи.
type PhotoHandler struct {
	photoUseCase      usecase.PhotoUseCase
	optimizePublisher ports.OptimizePublisher
	validate          *validator.Validate
	logger            *slog.Logger
}

// NewPhotoHandler создаёт новый экземпляр PhotoHandler.
// publisher может быть nil: тогда async-оптимизация выполняется синхронно.
func NewPhotoHandler(
	uc usecase.PhotoUseCase,
	publisher ports.OptimizePublisher,
	logger *slog.Logger,
) *PhotoHandler {
	return &PhotoHandler{
		photoUseCase:      uc,
		optimizePublisher: publisher,
		validate:          validator.New(validator.WithRequiredStructEnabled()),
		logger:            logger,
	}
}

type createPhotoRequest struct {
	PhotoName string `json:"photoName"`
	FullKey   string `json:"fullKey" validate:"required"`
}

type optimizeRequest struct {
	FullKey string `json:"fullKey" validate:"required"`
	Async   bool   `json:"async"`
}

type deletePhotosRequest struct {
	PKs []uuid.UUID `json:"pks" validate:"required,min=1"`
}

type createTagRequest struct {
	Name        string  `json:"name" validate:"required,max=64"`
	Description *string `json:"description"`
}

type tagPhotosRequest struct {
	PhotoPKs []uuid.UUID `json:"photoPks" validate:"required,min=1"`
}

// respondWithJSON — отправляет JSON-ответ клиенту.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}, logger *slog.Logger) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		logger.Error("failed to marshal JSON response", "error", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err = w.Write(response); err != nil {
		logger.Error("failed to write HTTP response", "error", err)
	}
}

// respondWithError — отправляет JSON-ответ с ошибкой.
func respondWithError(w http.ResponseWriter, code int, message string, logger *slog.Logger) {
	respondWithJSON(w, code, map[string]string{"error": message}, logger)
}

// respondWithDomainError подбирает HTTP-код по доменной ошибке.
func (h *PhotoHandler) respondWithDomainError(w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", "op", op, "error", err)
		respondWithError(w, code, internalMessage(err), h.logger)
		return
	}
	h.logger.Warn("request rejected", "op", op, "status", code, "error", err)
	respondWithError(w, code, err.Error(), h.logger)
}

// internalMessage отдаёт наружу только текст сентинела, без обёрнутых деталей.
func internalMessage(err error) string {
	for _, sentinel := range []error{domain.ErrStoreWrite, domain.ErrRecordUpdate} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSourceNotFound),
		errors.Is(err, domain.ErrPhotoNotFound),
		errors.Is(err, domain.ErrTagNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDecodeOrEncode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrTagExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeAndValidate читает JSON-тело и проверяет его теги validate.
// При ошибке ответ уже записан.
func (h *PhotoHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Warn("invalid JSON body", "path", r.URL.Path, "error", err)
		respondWithError(w, http.StatusBadRequest, "invalid JSON body", h.logger)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.logger.Warn("request validation failed", "path", r.URL.Path, "error", err)
		respondWithError(w, http.StatusBadRequest, validationMessage(err), h.logger)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// GetUploadTargets — выдаёт presigned-ссылки для загрузки исходников.
func (h *PhotoHandler) GetUploadTargets(w http.ResponseWriter, r *http.Request) {
	var reqs []domain.UploadRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid JSON body", h.logger)
		return
	}
	if err := h.validate.Var(reqs, fmt.Sprintf("required,min=1,max=%d", maxUploadTargets)); err != nil {
		h.logger.Warn("upload targets validation failed", "count", len(reqs), "error", err)
		respondWithError(w, http.StatusBadRequest, validationMessage(err), h.logger)
		return
	}
	for i := range reqs {
		if err := h.validate.Struct(reqs[i]); err != nil {
			h.logger.Warn("upload target validation failed", "index", i, "error", err)
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("item %d: %s", i, validationMessage(err)), h.logger)
			return
		}
	}

	targets, err := h.photoUseCase.GetUploadTargets(r.Context(), reqs)
	if err != nil {
		h.respondWithDomainError(w, "GetUploadTargets", err)
		return
	}
	respondWithJSON(w, http.StatusOK, targets, h.logger)
}

// CreatePendingRecord — создаёт (или сбрасывает) запись о загруженном файле.
func (h *PhotoHandler) CreatePendingRecord(w http.ResponseWriter, r *http.Request) {
	var req createPhotoRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	pk, err := h.photoUseCase.CreatePendingRecord(r.Context(), req.PhotoName, req.FullKey)
	if err != nil {
		h.respondWithDomainError(w, "CreatePendingRecord", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]string{"pk": pk.String()}, h.logger)
}

// Optimize — запускает оптимизацию синхронно или ставит задачу в очередь.
func (h *PhotoHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if req.Async {
		if h.optimizePublisher != nil {
			payload := payloads.OptimizePayload{FullKey: req.FullKey, RequestedAt: time.Now().UTC()}
			if err := h.optimizePublisher.PublishOptimizeRequest(r.Context(), payload); err != nil {
				h.respondWithDomainError(w, "PublishOptimizeRequest", err)
				return
			}
			h.logger.Info("optimize request queued", "full_key", req.FullKey)
			respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "fullKey": req.FullKey}, h.logger)
			return
		}
		h.logger.Warn("async optimize requested without a queue, running inline", "full_key", req.FullKey)
	}

	res, err := h.photoUseCase.Optimize(r.Context(), req.FullKey)
	if err != nil {
		h.respondWithDomainError(w, "Optimize", err)
		return
	}
	respondWithJSON(w, http.StatusOK, res, h.logger)
}

// ListReadyPhotos — фото для галереи с фильтрами из query.
func (h *PhotoHandler) ListReadyPhotos(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePhotoFilter(r)
	if err != nil {
		h.logger.Warn("invalid photo filter", "query", r.URL.RawQuery, "error", err)
		respondWithError(w, http.StatusBadRequest, err.Error(), h.logger)
		return
	}

	photos, err := h.photoUseCase.ListReadyPhotos(r.Context(), filter)
	if err != nil {
		h.respondWithDomainError(w, "ListReadyPhotos", err)
		return
	}
	respondWithJSON(w, http.StatusOK, photos, h.logger)
}

// DeletePhotos — удаляет фото вместе с объектами в хранилище.
func (h *PhotoHandler) DeletePhotos(w http.ResponseWriter, r *http.Request) {
	var req deletePhotosRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	deleted, err := h.photoUseCase.DeletePhotos(r.Context(), req.PKs)
	if err != nil {
		h.respondWithDomainError(w, "DeletePhotos", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"deleted": deleted}, h.logger)
}

func (h *PhotoHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	objects, err := h.photoUseCase.ListObjects(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		h.respondWithDomainError(w, "ListObjects", err)
		return
	}
	respondWithJSON(w, http.StatusOK, objects, h.logger)
}

func (h *PhotoHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.photoUseCase.ListTags(r.Context())
	if err != nil {
		h.respondWithDomainError(w, "ListTags", err)
		return
	}
	respondWithJSON(w, http.StatusOK, tags, h.logger)
}

func (h *PhotoHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req createTagRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	tag, err := h.photoUseCase.CreateTag(r.Context(), req.Name, req.Description)
	if err != nil {
		h.respondWithDomainError(w, "CreateTag", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, tag, h.logger)
}

func (h *PhotoHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	pk, ok := h.tagPK(w, r)
	if !ok {
		return
	}
	if err := h.photoUseCase.DeleteTag(r.Context(), pk); err != nil {
		h.respondWithDomainError(w, "DeleteTag", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PhotoHandler) AssignTag(w http.ResponseWriter, r *http.Request) {
	pk, ok := h.tagPK(w, r)
	if !ok {
		return
	}
	var req tagPhotosRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.photoUseCase.AssignTag(r.Context(), pk, req.PhotoPKs); err != nil {
		h.respondWithDomainError(w, "AssignTag", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PhotoHandler) UnassignTag(w http.ResponseWriter, r *http.Request) {
	pk, ok := h.tagPK(w, r)
	if !ok {
		return
	}
	var req tagPhotosRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.photoUseCase.UnassignTag(r.Context(), pk, req.PhotoPKs); err != nil {
		h.respondWithDomainError(w, "UnassignTag", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PhotoHandler) tagPK(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "pk")
	pk, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Warn("invalid tag pk", "pk", raw, "error", err)
		respondWithError(w, http.StatusBadRequest, "invalid tag pk", h.logger)
		return uuid.Nil, false
	}
	return pk, true
}

// parsePhotoFilter разбирает tags, from, to, order, random и limit.
// Дата без времени в to включает весь день.
func parsePhotoFilter(r *http.Request) (domain.PhotoFilter, error) {
	q := r.URL.Query()
	var f domain.PhotoFilter

	if raw := q.Get("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Tags = append(f.Tags, t)
			}
		}
	}

	if raw := q.Get("from"); raw != "" {
		from, _, err := parseTime(raw)
		if err != nil {
			return f, fmt.Errorf("invalid from: %w", err)
		}
		f.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, dateOnly, err := parseTime(raw)
		if err != nil {
			return f, fmt.Errorf("invalid to: %w", err)
		}
		if dateOnly {
			to = to.Add(endOfDayExclusive - time.Nanosecond)
		}
		f.To = &to
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return f, errors.New("from must not be after to")
	}

	switch order := domain.SortOrder(strings.ToLower(q.Get("order"))); order {
	case "":
		f.Order = domain.SortNewestFirst
	case domain.SortNewestFirst, domain.SortOldestFirst:
		f.Order = order
	default:
		return f, fmt.Errorf("invalid order %q: use asc or desc", order)
	}

	if raw := q.Get("random"); raw != "" {
		random, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("invalid random: %w", err)
		}
		f.Random = random
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return f, fmt.Errorf("invalid limit %q", raw)
		}
		f.Limit = limit
	}
	return f, nil
}

func parseTime(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse(dateOnlyLayout, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", raw)
	}
	return t, true, nil
}
