package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/picthaisky/english-speaking-coach/internal/metrics"
	"github.com/picthaisky/english-speaking-coach/internal/models"
)

const defaultHistoryDays = 30

type progressService interface {
	WeeklySummary(ctx context.Context, userID uuid.UUID) (*models.ProgressSummary, error)
	MonthlySummary(ctx context.Context, userID uuid.UUID) (*models.ProgressSummary, error)
	History(ctx context.Context, userID uuid.UUID, days int) ([]models.ProgressMetric, error)
	RecordDailySnapshot(ctx context.Context, userID uuid.UUID) (*models.ProgressMetric, error)
}

// ProgressHandler serves progress summaries. Weekly and monthly summaries
// are cached per user for a short TTL.
type ProgressHandler struct {
	progress progressService
	cache    *cache.Cache
}

func NewProgressHandler(progress progressService, cacheTTL time.Duration) *ProgressHandler {
	var c *cache.Cache
	if cacheTTL > 0 {
		c = cache.New(cacheTTL, 2*cacheTTL)
	}
	return &ProgressHandler{progress: progress, cache: c}
}

func (h *ProgressHandler) Weekly(w http.ResponseWriter, r *http.Request) {
	h.summary(w, r, models.PeriodWeekly, h.progress.WeeklySummary)
}

func (h *ProgressHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	h.summary(w, r, models.PeriodMonthly, h.progress.MonthlySummary)
}

func (h *ProgressHandler) summary(
	w http.ResponseWriter,
	r *http.Request,
	period models.Period,
	load func(context.Context, uuid.UUID) (*models.ProgressSummary, error),
) {
	userID, ok := uuidParam(w, r, "userId", "user ID")
	if !ok {
		return
	}

	key := summaryCacheKey(period, userID)
	if h.cache != nil {
		if cached, found := h.cache.Get(key); found {
			metrics.SummaryCache.WithLabelValues("hit").Inc()
			writeJSON(w, http.StatusOK, cached)
			return
		}
		metrics.SummaryCache.WithLabelValues("miss").Inc()
	}

	summary, err := load(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if h.cache != nil {
		h.cache.Set(key, summary, cache.DefaultExpiration)
	}

	writeJSON(w, http.StatusOK, summary)
}

func (h *ProgressHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userId", "user ID")
	if !ok {
		return
	}

	days := defaultHistoryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "days must be an integer", r))
			return
		}
		days = n
	}

	history, err := h.progress.History(r.Context(), userID, days)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if history == nil {
		history = []models.ProgressMetric{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"days":    days,
		"metrics": history,
	})
}

// Snapshot records today's snapshot on demand. It answers 204 when the user
// has no sessions today.
func (h *ProgressHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	userID, ok := uuidParam(w, r, "userId", "user ID")
	if !ok {
		return
	}

	metric, err := h.progress.RecordDailySnapshot(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if metric == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if h.cache != nil {
		h.cache.Delete(summaryCacheKey(models.PeriodWeekly, userID))
		h.cache.Delete(summaryCacheKey(models.PeriodMonthly, userID))
	}

	writeJSON(w, http.StatusOK, metric)
}

func summaryCacheKey(period models.Period, userID uuid.UUID) string {
	return string(period) + ":" + userID.String()
}
