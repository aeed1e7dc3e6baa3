package controlplane

import (
	"net/http"
	"strconv"

	"github.com/fentz26/jml/internal/models"
	"github.com/fentz26/jml/internal/store"
	"github.com/go-chi/chi/v5"
)

// RegisterEventRoutes mounts lifecycle event endpoints under /api/events.
func RegisterEventRoutes(r chi.Router, svc *Service) {
	r.Route("/api/events", func(r chi.Router) {
		r.Get("/", handleListEvents(svc))
		r.Post("/joiner", handleJoiner(svc))
		r.Post("/mover", handleMover(svc))
		r.Post("/leaver", handleLeaver(svc))
		r.Get("/{id}", handleGetEvent(svc))
		r.Get("/{id}/audit", handleAuditTrail(svc))
		r.Post("/{id}/resume", handleResume(svc))
		r.Post("/{id}/cancel", handleCancel(svc))
	})
}

type joinerRequest struct {
	UserID      string                `json:"userId"`
	TriggeredBy string                `json:"triggeredBy"`
	Metadata    models.JoinerMetadata `json:"metadata"`
}

type moverRequest struct {
	UserID      string               `json:"userId"`
	TriggeredBy string               `json:"triggeredBy"`
	Metadata    models.MoverMetadata `json:"metadata"`
}

type leaverRequest struct {
	UserID      string                `json:"userId"`
	TriggeredBy string                `json:"triggeredBy"`
	Metadata    models.LeaverMetadata `json:"metadata"`
}

// triggeredBy defaults the actor when the client did not name one.
func triggeredBy(v string) string {
	if v == "" {
		return "api"
	}
	return v
}

// eventStatus is 202 for events parked until their effective date.
func eventStatus(ev *models.LifecycleEvent) int {
	if ev.Status == models.EventStatusPending {
		return http.StatusAccepted
	}
	return http.StatusCreated
}

func handleJoiner(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req joinerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		ev, err := svc.ProcessJoiner(r.Context(), req.UserID, req.Metadata, triggeredBy(req.TriggeredBy))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, eventStatus(ev), ev)
	}
}

func handleMover(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moverRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		ev, err := svc.ProcessMover(r.Context(), req.UserID, req.Metadata, triggeredBy(req.TriggeredBy))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, eventStatus(ev), ev)
	}
}

func handleLeaver(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req leaverRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		ev, err := svc.ProcessLeaver(r.Context(), req.UserID, req.Metadata, triggeredBy(req.TriggeredBy))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, eventStatus(ev), ev)
	}
}

func handleListEvents(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.EventFilter{
			UserID:    q.Get("user"),
			EventType: models.EventType(q.Get("type")),
			Status:    models.EventStatus(q.Get("status")),
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}

		events, err := svc.ListEvents(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		if events == nil {
			events = []models.LifecycleEvent{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}

func handleGetEvent(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, err := svc.GetEvent(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

func handleAuditTrail(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.AuditTrail(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		if entries == nil {
			entries = []models.PDREntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleResume(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, err := svc.ResumeEvent(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

func handleCancel(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, err := svc.CancelEvent(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

func handleDetect(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Detect(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleListNotifications(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.NotificationFilter{Topic: q.Get("topic")}
		if v := q.Get("delivered"); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				filter.Delivered = &b
			}
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}

		list, err := svc.ListNotifications(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		if list == nil {
			list = []models.Notification{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleFlushNotifications(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.FlushNotifications(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"delivered": n})
	}
}
