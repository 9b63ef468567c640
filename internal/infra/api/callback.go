package api

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/infra/adapters/payment"
	"vendor-billing/internal/infra/logging"
	"vendor-billing/internal/infra/metrics"
)

// darajaAck is the body Daraja expects; anything but 200 makes it retry.
type darajaAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

func (s *Server) handleMpesaCallback(w http.ResponseWriter, r *http.Request) {
	l := logging.With(r.Context(), s.log)
	if s.opts.CallbackToken != "" {
		got := r.URL.Query().Get("token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.CallbackToken)) != 1 {
			l.Warn().Str("remote", r.RemoteAddr).Msg("mpesa callback with bad token")
			writeJSON(w, http.StatusUnauthorized, darajaAck{ResultCode: 1, ResultDesc: "Rejected"})
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, darajaAck{ResultCode: 1, ResultDesc: "Unreadable body"})
		return
	}
	cb, err := payment.ParseMpesaCallback(body)
	if err != nil {
		l.Warn().Err(err).Msg("malformed mpesa callback")
		writeJSON(w, http.StatusBadRequest, darajaAck{ResultCode: 1, ResultDesc: "Malformed callback"})
		return
	}

	txn, err := s.deps.Payments.HandleMpesaCallback(r.Context(), cb)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// Unknown checkout ids are acknowledged so Daraja stops retrying.
		l.Warn().Str("checkout_request_id", cb.CheckoutRequestID).Msg("callback for unknown checkout request")
		metrics.IncPayment("mpesa_callback", "unknown")
	case err != nil:
		l.Error().Err(err).Str("checkout_request_id", cb.CheckoutRequestID).Msg("mpesa callback not applied")
		writeJSON(w, http.StatusInternalServerError, darajaAck{ResultCode: 1, ResultDesc: "Retry later"})
		return
	default:
		metrics.IncPayment("mpesa_callback", string(txn.Status))
		l.Info().
			Str("checkout_request_id", cb.CheckoutRequestID).
			Str("transaction_id", txn.ID).
			Str("status", string(txn.Status)).
			Int("result_code", cb.ResultCode).
			Msg("mpesa callback applied")
	}
	writeJSON(w, http.StatusOK, darajaAck{ResultCode: 0, ResultDesc: "Accepted"})
}
