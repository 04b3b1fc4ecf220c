package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"platewatch/internal/repository"
)

const defaultListLimit = 500

// Handler serves read-only views over the committed run outputs.
type Handler struct {
	scores     *repository.ScoreRepository
	inactivity *repository.InactivityRepository
	log        zerolog.Logger
}

func NewHandler(
	scores *repository.ScoreRepository,
	inactivityRepo *repository.InactivityRepository,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		scores:     scores,
		inactivity: inactivityRepo,
		log:        log,
	}
}

func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/trust-scores", h.listTrustScores)
		api.GET("/clone-candidates", h.listCloneCandidates)
		api.GET("/inactivity", h.listInactivity)
	}
}

type trustScoreResponse struct {
	CameraKey        string    `json:"camera_key"`
	Window           string    `json:"window"`
	TotalReads       int       `json:"total_reads"`
	FrequentPlates   int       `json:"frequent_plates"`
	Accuracy         float64   `json:"accuracy"`
	RereadConfidence float64   `json:"reread_confidence"`
	MedianConfidence float64   `json:"median_confidence"`
	ComputedAt       time.Time `json:"computed_at"`
}

func (h *Handler) listTrustScores(c *gin.Context) {
	window := strings.TrimSpace(c.Query("window"))

	rows, err := h.scores.ListTrustScores(c.Request.Context(), window)
	if err != nil {
		h.log.Error().Err(err).Str("window", window).Msg("failed to list trust scores")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	scores := make([]trustScoreResponse, 0, len(rows))
	for _, row := range rows {
		scores = append(scores, trustScoreResponse{
			CameraKey:        row.CameraKey,
			Window:           row.WindowLabel,
			TotalReads:       row.TotalReads,
			FrequentPlates:   row.FrequentPlates,
			Accuracy:         row.Accuracy,
			RereadConfidence: row.RereadConfidence,
			MedianConfidence: row.MedianConfidence,
			ComputedAt:       row.ComputedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(scores),
		"scores": scores,
	})
}

type cloneCandidateResponse struct {
	Plate      string          `json:"plate"`
	Score      float64         `json:"score"`
	Flagged    bool            `json:"flagged"`
	Breakdown  json.RawMessage `json:"breakdown"`
	ComputedAt time.Time       `json:"computed_at"`
}

func (h *Handler) listCloneCandidates(c *gin.Context) {
	flaggedOnly := c.Query("flagged") == "true"

	limit := defaultListLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	rows, err := h.scores.ListCloneScores(c.Request.Context(), flaggedOnly, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list clone candidates")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	candidates := make([]cloneCandidateResponse, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, cloneCandidateResponse{
			Plate:      row.Plate,
			Score:      row.Score,
			Flagged:    row.Flagged,
			Breakdown:  json.RawMessage(row.Breakdown),
			ComputedAt: row.ComputedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"count":      len(candidates),
		"candidates": candidates,
	})
}

type inactivityResponse struct {
	CameraKey      string    `json:"camera_key"`
	Company        string    `json:"company"`
	Date           string    `json:"date"`
	InactiveHours  float64   `json:"inactive_hours"`
	Over1h         bool      `json:"over_1h"`
	Over3h         bool      `json:"over_3h"`
	Over6h         bool      `json:"over_6h"`
	Over12h        bool      `json:"over_12h"`
	FullDay        bool      `json:"full_day"`
	ReadCount      int       `json:"read_count"`
	AvgLatencyS    float64   `json:"avg_latency_s"`
	MedianLatencyS float64   `json:"median_latency_s"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (h *Handler) listInactivity(c *gin.Context) {
	cameraKey := strings.TrimSpace(c.Query("camera_id"))

	from, err := parseDateParam(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("from must be YYYY-MM-DD"))
		return
	}
	to, err := parseDateParam(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("to must be YYYY-MM-DD"))
		return
	}

	rows, err := h.inactivity.List(c.Request.Context(), cameraKey, from, to, defaultListLimit)
	if err != nil {
		h.log.Error().Err(err).Str("camera_id", cameraKey).Msg("failed to list inactivity records")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}

	records := make([]inactivityResponse, 0, len(rows))
	for _, row := range rows {
		records = append(records, inactivityResponse{
			CameraKey:      row.CameraKey,
			Company:        row.Company,
			Date:           row.Date.Format("2006-01-02"),
			InactiveHours:  row.InactiveHours,
			Over1h:         row.Over1h,
			Over3h:         row.Over3h,
			Over6h:         row.Over6h,
			Over12h:        row.Over12h,
			FullDay:        row.FullDay,
			ReadCount:      row.ReadCount,
			AvgLatencyS:    row.AvgLatencyS,
			MedianLatencyS: row.MedianLatencyS,
			UpdatedAt:      row.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(records),
		"records": records,
	})
}

func parseDateParam(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
