package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/oriser/tramper/request"
	"github.com/oriser/tramper/service"
	"github.com/oriser/tramper/trip"
	"github.com/oriser/tramper/user"
	"github.com/shopspring/decimal"
)

type registerUserBody struct {
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Timezone    string `json:"timezone"`
	TransportID string `json:"transport_id"`
}

type createShipmentBody struct {
	Name   string          `json:"name"`
	Weight decimal.Decimal `json:"weight"`
	Reward decimal.Decimal `json:"reward"`
}

type createTripBody struct {
	FromLocation string          `json:"from_location"`
	ToLocation   string          `json:"to_location"`
	DepartureAt  time.Time       `json:"departure_at"`
	TotalWeight  decimal.Decimal `json:"total_weight"`
	Unit         string          `json:"unit"`
}

type tripResponse struct {
	*trip.Trip
	AvailableWeight decimal.Decimal `json:"available_weight"`
	IsFull          bool            `json:"is_full"`
}

func newTripResponse(t *trip.Trip) tripResponse {
	return tripResponse{Trip: t, AvailableWeight: t.Available(), IsFull: t.IsFull()}
}

func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	body := &registerUserBody{}
	if err := decodeBody(r, body); err != nil {
		writeError(w, r, err)
		return
	}

	registered, err := s.service.RegisterUser(r.Context(), actorFromContext(r.Context()), user.User{
		FullName:    body.FullName,
		Email:       body.Email,
		Phone:       body.Phone,
		Timezone:    body.Timezone,
		TransportID: body.TransportID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":        registered.ID,
		"full_name": registered.FullName,
		"email":     registered.Email,
		"is_admin":  registered.IsAdmin,
	})
}

func (s *Server) createShipment(w http.ResponseWriter, r *http.Request) {
	body := &createShipmentBody{}
	if err := decodeBody(r, body); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.service.CreateShipment(r.Context(), actorFromContext(r.Context()), service.CreateShipmentInput{
		Name:   body.Name,
		Weight: body.Weight,
		Reward: body.Reward,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getShipment(w http.ResponseWriter, r *http.Request) {
	got, err := s.service.GetShipment(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (s *Server) createTrip(w http.ResponseWriter, r *http.Request) {
	body := &createTripBody{}
	if err := decodeBody(r, body); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.service.CreateTrip(r.Context(), actorFromContext(r.Context()), service.CreateTripInput{
		FromLocation: body.FromLocation,
		ToLocation:   body.ToLocation,
		DepartureAt:  body.DepartureAt,
		TotalWeight:  body.TotalWeight,
		Unit:         body.Unit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTripResponse(created))
}

func (s *Server) getTrip(w http.ResponseWriter, r *http.Request) {
	got, err := s.service.GetTrip(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTripResponse(got))
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly := false
	if raw := r.URL.Query().Get("unread"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, &request.ValidationError{Field: "unread", Reason: "must be a boolean"})
			return
		}
		unreadOnly = parsed
	}

	notifications, err := s.service.ListNotifications(r.Context(), actorFromContext(r.Context()), unreadOnly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (s *Server) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := s.service.MarkNotificationRead(r.Context(), actorFromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
