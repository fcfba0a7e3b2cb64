package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/PhilHem/gamepanel/backend/models"

	"gorm.io/gorm"
)

type LogsResponse struct {
	Logs    []models.LogEntry `json:"logs"`
	Total   int64             `json:"total"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
}

// GetLogs lists log entries newest first. Filters: level, source, search,
// request_id and alert=true.
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, _ := strconv.Atoi(query.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(query.Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}

	q := h.db.WithContext(r.Context()).Model(&models.LogEntry{})
	if level := query.Get("level"); level != "" {
		q = q.Where("level = ?", level)
	}
	if source := query.Get("source"); source != "" {
		q = q.Where("source = ?", source)
	}
	if id := query.Get("request_id"); id != "" {
		q = q.Where("request_id = ?", id)
	}
	if query.Get("alert") == "true" {
		q = q.Where("alert = ?", true)
	}
	if search := query.Get("search"); search != "" {
		q = q.Where("message LIKE ? OR data LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	logs := []models.LogEntry{}
	err := q.Preload("User").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&logs).Error
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, LogsResponse{Logs: logs, Total: total, Page: page, PerPage: perPage})
}

func (h *Handler) GetLogSources(w http.ResponseWriter, r *http.Request) {
	sources := []string{}
	h.db.WithContext(r.Context()).Model(&models.LogEntry{}).
		Distinct("source").
		Where("source != ''").
		Order("source").
		Pluck("source", &sources)
	WriteJSON(w, http.StatusOK, sources)
}

type TimelinePoint struct {
	Time  string `json:"time"`
	Count int    `json:"count"`
}

// Only these values reach SQL; anything else falls back to the default.
var (
	timelineRanges = map[string]time.Duration{
		"1h":  time.Hour,
		"6h":  6 * time.Hour,
		"24h": 24 * time.Hour,
		"7d":  7 * 24 * time.Hour,
		"30d": 30 * 24 * time.Hour,
	}
	timelineFormats = map[string]string{
		"1m": "%Y-%m-%d %H:%M",
		"1h": "%Y-%m-%d %H:00",
		"1d": "%Y-%m-%d",
	}
)

// timelineFormat picks a bucket format, choosing one from the range on
// "auto" or unknown input.
func timelineFormat(resolution string, span time.Duration) string {
	if f, ok := timelineFormats[resolution]; ok {
		return f
	}
	switch {
	case span <= 6*time.Hour:
		return timelineFormats["1m"]
	case span <= 7*24*time.Hour:
		return timelineFormats["1h"]
	default:
		return timelineFormats["1d"]
	}
}

func (h *Handler) GetLogTimeline(w http.ResponseWriter, r *http.Request) {
	span, ok := timelineRanges[r.URL.Query().Get("range")]
	if !ok {
		span = 24 * time.Hour
	}
	format := timelineFormat(r.URL.Query().Get("resolution"), span)

	q := h.db.WithContext(r.Context()).Model(&models.LogEntry{}).
		Where("created_at >= ?", time.Now().Add(-span))
	if r.URL.Query().Get("alert") == "true" {
		q = q.Where("alert = ?", true)
	}

	results := []TimelinePoint{}
	err := q.Select("strftime(?, created_at) as time, count(*) as count", format).
		Group("time").
		Order("time ASC").
		Limit(1000).
		Scan(&results).Error
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	WriteJSON(w, http.StatusOK, results)
}

type BulkDeleteRequest struct {
	IDs []uint `json:"ids"`
}

func (h *Handler) DeleteLogs(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		http.Error(w, "No IDs provided", http.StatusBadRequest)
		return
	}

	result := h.db.WithContext(r.Context()).Delete(&models.LogEntry{}, req.IDs)
	if result.Error != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int64{"deleted": result.RowsAffected})
}
