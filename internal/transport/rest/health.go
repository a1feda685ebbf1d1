package rest

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"
)

const serviceName = "tourist-safety"

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type HealthResponse struct {
	Status        HealthStatus          `json:"status"`
	Service       string                `json:"service"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	CheckedAt     time.Time             `json:"checked_at"`
	Components    map[string]CheckEntry `json:"components"`
}

type CheckEntry struct {
	Status     HealthStatus `json:"status"`
	Message    string       `json:"message,omitempty"`
	DurationMs int64        `json:"duration_ms"`
}

type HealthHandler struct {
	db        *sql.DB
	startedAt time.Time
}

func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db, startedAt: time.Now()}
}

// handlePing answers as long as the process is up; no dependencies touched.
func (h *HealthHandler) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "OK",
		"service": serviceName,
	})
}

// handleHealth is the readiness probe: healthy only when Postgres answers.
func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbEntry := h.checkDatabase(r.Context())

	resp := HealthResponse{
		Status:        dbEntry.Status,
		Service:       serviceName,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CheckedAt:     time.Now(),
		Components:    map[string]CheckEntry{"postgres": dbEntry},
	}

	statusCode := http.StatusOK
	if resp.Status == HealthUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) CheckEntry {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := h.db.PingContext(ctx)

	entry := CheckEntry{
		Status:     HealthHealthy,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Status = HealthUnhealthy
		entry.Message = err.Error()
	}
	return entry
}
