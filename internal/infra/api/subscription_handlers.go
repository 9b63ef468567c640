package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/infra/logging"
	"vendor-billing/internal/infra/metrics"
	"vendor-billing/internal/usecase"
)

type subscribeRequest struct {
	// VendorID is honoured for admins only.
	VendorID      string `json:"vendor_id"`
	PackageID     string `json:"package_id"`
	PaymentMethod string `json:"payment_method"`
	PhoneNumber   string `json:"phone_number"`
	CardToken     string `json:"card_token"`
	SaveCard      bool   `json:"save_card"`
	AutoRenew     bool   `json:"auto_renew"`
}

func (req subscribeRequest) toUseCase(actor model.Actor) usecase.SubscribeRequest {
	return usecase.SubscribeRequest{
		Actor:         actor,
		VendorID:      targetVendor(actor, req.VendorID),
		PackageID:     req.PackageID,
		PaymentMethod: req.PaymentMethod,
		Payment: usecase.PaymentPayload{
			PhoneNumber: req.PhoneNumber,
			CardToken:   req.CardToken,
			SaveCard:    req.SaveCard,
		},
		AutoRenew: req.AutoRenew,
	}
}

// targetVendor lets admins act on another vendor; merchants always act on
// themselves.
func targetVendor(actor model.Actor, requested string) string {
	if actor.IsAdmin() && requested != "" {
		return requested
	}
	return actor.UserID
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Subscriptions.RenewOrSubscribe(r.Context(), req.toUseCase(actor))
	s.writeSubscribeResult(w, r, res, err)
}

func (s *Server) handleRenew(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	in := req.toUseCase(actor)
	in.RenewSubscriptionID = chi.URLParam(r, "subscriptionId")
	res, err := s.deps.Subscriptions.RenewOrSubscribe(r.Context(), in)
	s.writeSubscribeResult(w, r, res, err)
}

// writeSubscribeResult answers 201 for activated subscriptions, 202 while an
// M-Pesa push awaits its callback and 402 with the failed rows on declines.
func (s *Server) writeSubscribeResult(w http.ResponseWriter, r *http.Request, res *usecase.SubscribeResult, err error) {
	if res != nil && res.Transaction != nil {
		metrics.IncPayment(string(res.Transaction.PaymentMethod), string(res.Transaction.Status))
		if res.Transaction.Status == model.TransactionStatusCompleted {
			metrics.AddPaymentRevenue(res.Transaction.Currency, res.Transaction.Amount)
		}
	}
	if err != nil {
		if errors.Is(err, domain.ErrPaymentDeclined) && res != nil {
			body := toSubscribeResponse(res)
			body.Error = err.Error()
			writeJSON(w, http.StatusPaymentRequired, body)
			return
		}
		if errors.Is(err, domain.ErrPaymentNotSettled) && res != nil {
			logging.With(r.Context(), s.log).Error().Err(err).Msg("charge captured but not recorded")
			body := toSubscribeResponse(res)
			body.Pending = true
			body.Message = "Payment received. Your subscription will be activated shortly."
			writeJSON(w, http.StatusAccepted, body)
			return
		}
		s.writeError(w, r, err)
		return
	}
	code := http.StatusCreated
	if res.Pending {
		code = http.StatusAccepted
	}
	writeJSON(w, code, toSubscribeResponse(res))
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	sub, err := s.deps.Subscriptions.GetCurrent(r.Context(), actor, targetVendor(actor, r.URL.Query().Get("vendor_id")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscription(sub))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	subs, err := s.deps.Subscriptions.ListHistory(r.Context(), actor, targetVendor(actor, q.Get("vendor_id")), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		items = append(items, toSubscription(sub))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "limit": limit, "offset": offset})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	sub, err := s.deps.Subscriptions.Cancel(r.Context(), actor, chi.URLParam(r, "subscriptionId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscription(sub))
}

func (s *Server) handleAutoRenew(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req struct {
		AutoRenew *bool `json:"auto_renew"`
	}
	if err := decodeJSON(r, &req); err != nil || req.AutoRenew == nil {
		s.writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	sub, err := s.deps.Subscriptions.SetAutoRenew(r.Context(), actor, chi.URLParam(r, "subscriptionId"), *req.AutoRenew)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscription(sub))
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	sub, txn, err := s.deps.Subscriptions.PaymentStatus(r.Context(), actor, chi.URLParam(r, "subscriptionId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subscription": toSubscription(sub),
		"transaction":  toTransaction(txn),
	})
}
