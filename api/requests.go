package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/oriser/tramper/request"
	"github.com/oriser/tramper/service"
	"github.com/shopspring/decimal"
)

type createRequestBody struct {
	ReceiverID   string          `json:"receiver_id"`
	ShipmentID   *string         `json:"shipment_id"`
	TripID       *string         `json:"trip_id"`
	OfferedPrice decimal.Decimal `json:"offered_price"`
	Message      *string         `json:"message"`
}

type counterOfferBody struct {
	Price   decimal.Decimal `json:"price"`
	Message *string         `json:"message"`
}

type statusBody struct {
	Status request.Status `json:"status"`
}

type requestResponse struct {
	*request.Request
	CurrentPrice decimal.Decimal `json:"current_price"`
}

type summaryResponse struct {
	*request.Summary
	CounterOffers []*request.CounterOffer `json:"counter_offers,omitempty"`
}

func newRequestResponse(r *request.Request) requestResponse {
	if r.CounterOffers == nil {
		r.CounterOffers = []*request.CounterOffer{}
	}
	return requestResponse{Request: r, CurrentPrice: r.CurrentPrice()}
}

func newSummariesResponse(summaries []*request.Summary) []summaryResponse {
	res := make([]summaryResponse, 0, len(summaries))
	for _, summary := range summaries {
		res = append(res, summaryResponse{Summary: summary})
	}
	return res
}

func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	body := &createRequestBody{}
	if err := decodeBody(r, body); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := s.service.CreateRequest(r.Context(), actorFromContext(r.Context()), service.CreateRequestInput{
		ReceiverID:   body.ReceiverID,
		ShipmentID:   body.ShipmentID,
		TripID:       body.TripID,
		OfferedPrice: body.OfferedPrice,
		Message:      body.Message,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRequestResponse(created))
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request) {
	got, err := s.service.GetRequest(r.Context(), actorFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRequestResponse(got))
}

func (s *Server) updateRequestStatus(w http.ResponseWriter, r *http.Request) {
	body := &statusBody{}
	if err := decodeBody(r, body); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := s.service.UpdateRequestStatus(r.Context(), actorFromContext(r.Context()), mux.Vars(r)["id"], body.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRequestResponse(updated))
}

func (s *Server) deleteRequest(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteRequest(r.Context(), actorFromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) createCounterOffer(w http.ResponseWriter, r *http.Request) {
	body := &counterOfferBody{}
	if err := decodeBody(r, body); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := s.service.AppendCounterOffer(r.Context(), actorFromContext(r.Context()), mux.Vars(r)["id"], body.Price, body.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRequestResponse(updated))
}

func (s *Server) listMyRequests(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var status *request.Status
	if raw := query.Get("status"); raw != "" {
		parsed := request.Status(raw)
		status = &parsed
	}

	summaries, err := s.service.ListRequestsForUser(r.Context(), actorFromContext(r.Context()), request.ParseDirection(query.Get("type")), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummariesResponse(summaries))
}

func (s *Server) listShipmentRequests(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.service.ListRequestsForShipment(r.Context(), actorFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummariesResponse(summaries))
}

func (s *Server) listTripRequests(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.service.ListRequestsForTrip(r.Context(), actorFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummariesResponse(summaries))
}
