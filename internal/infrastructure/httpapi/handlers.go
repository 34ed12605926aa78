package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"DealsIngestor/internal/domain"
)

const maxFailedLimit = 500

type handler struct {
	ops    Operations
	checks map[string]Pinger
	gauge  RecordGauge
}

func (h *handler) health(c *gin.Context) {
	status := http.StatusOK
	checks := make(gin.H, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}

func (h *handler) status(c *gin.Context) {
	st, err := h.ops.Status(c.Request.Context())
	if err != nil {
		h.abort(c, err)
		return
	}
	if h.gauge != nil {
		h.gauge.SetRecordCounts(st.Counts)
	}
	c.JSON(http.StatusOK, st)
}

func (h *handler) failed(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxFailedLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}
	recs, err := h.ops.Failed(c.Request.Context(), limit)
	if err != nil {
		h.abort(c, err)
		return
	}
	out := make([]recordView, len(recs))
	for i, r := range recs {
		out[i] = viewOf(r)
	}
	c.JSON(http.StatusOK, gin.H{"records": out, "count": len(out)})
}

func (h *handler) record(c *gin.Context) {
	key, ok := messageKey(c)
	if !ok {
		return
	}
	rec, listings, err := h.ops.Record(c.Request.Context(), key)
	if err != nil {
		h.abort(c, err)
		return
	}
	out := make([]listingView, len(listings))
	for i, l := range listings {
		out[i] = listingOf(l)
	}
	c.JSON(http.StatusOK, gin.H{"record": viewOf(rec), "listings": out})
}

func (h *handler) retry(c *gin.Context) {
	key, ok := messageKey(c)
	if !ok {
		return
	}
	rec, err := h.ops.Retry(c.Request.Context(), key)
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotRetryable):
		h.abort(c, err)
	case err != nil && rec.ID == 0:
		h.abort(c, err)
	case err != nil:
		// reset succeeded but the rerun failed again
		c.JSON(http.StatusOK, gin.H{"record": viewOf(rec), "error": err.Error()})
	case rec.State == domain.StateReceived:
		c.JSON(http.StatusAccepted, gin.H{"record": viewOf(rec)})
	default:
		c.JSON(http.StatusOK, gin.H{"record": viewOf(rec)})
	}
}

func (h *handler) abort(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNotRetryable):
		status = http.StatusConflict
	default:
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func messageKey(c *gin.Context) (domain.MessageKey, bool) {
	id, err := strconv.ParseInt(c.Param("message"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message id must be an integer"})
		return domain.MessageKey{}, false
	}
	return domain.MessageKey{ChannelID: c.Param("channel"), MessageID: id}, true
}

type recordView struct {
	ID         int64        `json:"id"`
	ChannelID  string       `json:"channel_id"`
	MessageID  int64        `json:"message_id"`
	State      domain.State `json:"state"`
	Error      string       `json:"error,omitempty"`
	ErrorStage domain.Stage `json:"error_stage,omitempty"`
	Attempts   int          `json:"attempts"`
	ContentIDs []int64      `json:"content_ids,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func viewOf(r domain.ProcessingRecord) recordView {
	return recordView{
		ID:         r.ID,
		ChannelID:  r.ChannelID,
		MessageID:  r.MessageID,
		State:      r.State,
		Error:      r.Error,
		ErrorStage: r.ErrorStage,
		Attempts:   r.Attempts,
		ContentIDs: r.ContentIDs,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type listingView struct {
	ID             int64    `json:"id"`
	Title          string   `json:"title"`
	Price          *float64 `json:"price,omitempty"`
	OriginalPrice  *float64 `json:"original_price,omitempty"`
	Currency       string   `json:"currency"`
	Discount       *int     `json:"discount,omitempty"`
	AffiliateURL   string   `json:"affiliate_url"`
	Category       string   `json:"category"`
	DisplayPages   []string `json:"display_pages"`
	BundleGroupID  string   `json:"bundle_group_id,omitempty"`
	BundleSequence int      `json:"bundle_sequence"`
	BundleTotal    int      `json:"bundle_total"`
	Source         string   `json:"source"`
	Active         bool     `json:"active"`
	Visible        bool     `json:"visible"`
}

func listingOf(l domain.UnifiedContentRecord) listingView {
	return listingView{
		ID:             l.ID,
		Title:          l.Title,
		Price:          l.Price,
		OriginalPrice:  l.OriginalPrice,
		Currency:       l.Currency,
		Discount:       l.Discount,
		AffiliateURL:   l.AffiliateURL,
		Category:       l.Category,
		DisplayPages:   l.DisplayPages,
		BundleGroupID:  l.BundleGroupID,
		BundleSequence: l.BundleSequence,
		BundleTotal:    l.BundleTotal,
		Source:         string(l.ExtractionSource),
		Active:         l.IsActive,
		Visible:        l.IsVisible,
	}
}
