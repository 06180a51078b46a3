package reservation_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-seating/internal/layout"
	"ms-seating/internal/logger"
	"ms-seating/internal/models"
	"ms-seating/internal/pricing"
	"ms-seating/internal/reservation"
	"ms-seating/internal/seats"
	"ms-seating/internal/utils"
)

const (
	SessionHeader     = "X-Session-ID"
	IdempotencyHeader = "Idempotency-Key"
)

// SeatingService is the part of the reservation engine the API exposes.
type SeatingService interface {
	HoldSeats(ctx context.Context, req reservation.HoldRequest) (*models.HoldResult, error)
	ReleaseSeats(ctx context.Context, req reservation.ReleaseRequest) (*models.ReleaseResult, error)
	ConfirmPurchase(ctx context.Context, req reservation.ConfirmRequest) (*models.ConfirmResult, error)
	GetSessionHolds(ctx context.Context, layoutID, sessionID string) ([]models.SessionHold, error)
	BrowseSeats(ctx context.Context, layoutID string) ([]models.SeatView, error)
	SeatPrice(ctx context.Context, layoutID, seatUID string) (models.Price, error)
}

// SeatStream feeds the live seat status endpoint.
type SeatStream interface {
	Subscribe(ctx context.Context, layoutID string) <-chan models.SeatStatusChangeEvent
}

type Handler struct {
	Seating SeatingService
	Layouts layout.Catalog
	Stream  SeatStream
	Logger  *logger.Logger
}

func NewHandler(seating SeatingService, layouts layout.Catalog, stream SeatStream, log *logger.Logger) *Handler {
	return &Handler{Seating: seating, Layouts: layouts, Stream: stream, Logger: log}
}

// RegisterRoutes mounts the seating API under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/events/{eventId}/layout", h.GetCurrentLayout)
		r.Route("/layouts/{layoutId}", func(r chi.Router) {
			r.Get("/seats", h.BrowseSeats)
			r.Get("/seats/{seatUid}/price", h.GetSeatPrice)
			r.Get("/holds", h.GetSessionHolds)
			r.Post("/holds", h.HoldSeats)
			r.Delete("/holds", h.ReleaseSeats)
			r.Post("/purchase", h.ConfirmPurchase)
			if h.Stream != nil {
				r.Get("/stream", h.StreamSeatStatus)
			}
		})
	})
}

type holdBody struct {
	SeatUIDs   []string `json:"seat_uids"`
	TTLSeconds int      `json:"ttl_seconds,omitempty"`
}

type releaseBody struct {
	SeatUIDs []string `json:"seat_uids"`
}

type purchaseBody struct {
	SeatUIDs    []string `json:"seat_uids"`
	AmountCents int64    `json:"amount_cents"`
}

func (h *Handler) GetCurrentLayout(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Info("API", fmt.Sprintf("GetCurrentLayout: eventId=%s", eventID))

	current, err := h.Layouts.CurrentLayout(r.Context(), eventID)
	if err != nil {
		h.fail(w, "GetCurrentLayout", "Could not load layout", err)
		return
	}
	h.ok(w, http.StatusOK, "Current layout", current)
}

func (h *Handler) BrowseSeats(w http.ResponseWriter, r *http.Request) {
	layoutID := chi.URLParam(r, "layoutId")
	h.Logger.Debug("API", fmt.Sprintf("BrowseSeats: layoutId=%s", layoutID))

	views, err := h.Seating.BrowseSeats(r.Context(), layoutID)
	if err != nil {
		h.fail(w, "BrowseSeats", "Could not list seats", err)
		return
	}
	h.ok(w, http.StatusOK, "Seats", views)
}

func (h *Handler) GetSeatPrice(w http.ResponseWriter, r *http.Request) {
	layoutID := chi.URLParam(r, "layoutId")
	seatUID := chi.URLParam(r, "seatUid")

	price, err := h.Seating.SeatPrice(r.Context(), layoutID, seatUID)
	if err != nil {
		h.fail(w, "GetSeatPrice", "Could not price seat", err)
		return
	}
	h.ok(w, http.StatusOK, "Seat price", price)
}

func (h *Handler) GetSessionHolds(w http.ResponseWriter, r *http.Request) {
	layoutID := chi.URLParam(r, "layoutId")
	sessionID, ok := h.session(w, r, "GetSessionHolds")
	if !ok {
		return
	}

	holds, err := h.Seating.GetSessionHolds(r.Context(), layoutID, sessionID)
	if err != nil {
		h.fail(w, "GetSessionHolds", "Could not list holds", err)
		return
	}
	h.ok(w, http.StatusOK, "Active holds", holds)
}

func (h *Handler) HoldSeats(w http.ResponseWriter, r *http.Request) {
	layoutID := chi.URLParam(r, "layoutId")
	sessionID, ok := h.session(w, r, "HoldSeats")
	if !ok {
		return
	}
	var body holdBody
	if !h.decode(w, r, "HoldSeats", &body) {
		return
	}
	h.Logger.Info("API", fmt.Sprintf("HoldSeats: layoutId=%s session=%s seats=%v", layoutID, sessionID, body.SeatUIDs))

	result, err := h.Seating.HoldSeats(r.Context(), reservation.HoldRequest{
		LayoutID:  layoutID,
		SessionID: sessionID,
		SeatUIDs:  body.SeatUIDs,
		TTL:       time.Duration(body.TTLSeconds) * time.Second,
	})
	if err != nil {
		h.fail(w, "HoldSeats", "Hold rejected", err)
		return
	}
	h.ok(w, http.StatusOK, fmt.Sprintf("%d seats held", len(result.Held)), result)
}

func (h *Handler) ReleaseSeats(w http.ResponseWriter, r *http.Request) {
	layoutID := chi.URLParam(r, "layoutId")
	sessionID, ok := h.session(w, r, "ReleaseSeats")
	if !ok {
		return
	}
	var body releaseBody
	if !h.decode(w, r, "ReleaseSeats", &body) {
		return
	}

	result, err := h.Seating.ReleaseSeats(r.Context(), reservation.ReleaseRequest{
		LayoutID:  layoutID,
		SessionID: sessionID,
		SeatUIDs:  body.SeatUIDs,
	})
	if err != nil {
		h.fail(w, "ReleaseSeats", "Release failed", err)
		return
	}
	h.ok(w, http.StatusOK, fmt.Sprintf("%d seats released", len(result.Released)), result)
}

func (h *Handler) ConfirmPurchase(w http.ResponseWriter, r *http.Request) {
	layoutID := chi.URLParam(r, "layoutId")
	sessionID, ok := h.session(w, r, "ConfirmPurchase")
	if !ok {
		return
	}
	var body purchaseBody
	if !h.decode(w, r, "ConfirmPurchase", &body) {
		return
	}
	key := r.Header.Get(IdempotencyHeader)
	h.Logger.Info("API", fmt.Sprintf("ConfirmPurchase: layoutId=%s session=%s seats=%v key=%q", layoutID, sessionID, body.SeatUIDs, key))

	result, err := h.Seating.ConfirmPurchase(r.Context(), reservation.ConfirmRequest{
		LayoutID:       layoutID,
		SessionID:      sessionID,
		SeatUIDs:       body.SeatUIDs,
		AmountCents:    body.AmountCents,
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, "ConfirmPurchase", "Purchase failed", err)
		return
	}
	if !result.Success {
		h.ok(w, http.StatusConflict, "Some seats could not be confirmed", result)
		return
	}
	h.ok(w, http.StatusOK, "Purchase confirmed", result)
}

// StreamSeatStatus pushes seat status changes of one layout as SSE.
func (h *Handler) StreamSeatStatus(w http.ResponseWriter, r *http.Request) {
	layoutID := chi.URLParam(r, "layoutId")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	setupSSEHeaders(w)
	ctx := r.Context()
	events := h.Stream.Subscribe(ctx, layoutID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"layout_id\":%q}\n\n", layoutID)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to seat stream for layout: %s", layoutID))

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize seat event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: seat_status\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from seat stream for: %s", layoutID))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request, op string) (string, bool) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		h.Logger.Warn("API", fmt.Sprintf("%s: missing %s header", op, SessionHeader))
		h.write(w, http.StatusBadRequest, utils.ErrorResponse("Session required", SessionHeader+" header is required"))
		return "", false
	}
	return sessionID, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, op string, into interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		h.Logger.Error("API", fmt.Sprintf("%s: failed to decode request body: %v", op, err))
		h.write(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return false
	}
	return true
}

func (h *Handler) ok(w http.ResponseWriter, status int, message string, data interface{}) {
	h.write(w, status, utils.SuccessResponse(message, data))
}

func (h *Handler) fail(w http.ResponseWriter, op, message string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	} else {
		h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
	}
	h.write(w, status, utils.ErrorResponse(message, err.Error()))
}

func (h *Handler) write(w http.ResponseWriter, status int, body utils.APIResponse) {
	if err := utils.WriteJSON(w, status, body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

// StatusFor maps engine and store errors to HTTP statuses. Anything
// unrecognized is treated as an infrastructure failure the client may retry.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, reservation.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, reservation.ErrHoldLimitExceeded):
		return http.StatusConflict
	case errors.Is(err, layout.ErrLayoutNotFound),
		errors.Is(err, seats.ErrSeatNotFound),
		errors.Is(err, pricing.ErrUnknownTier):
		return http.StatusNotFound
	}
	return http.StatusServiceUnavailable
}
