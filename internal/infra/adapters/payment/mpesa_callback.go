package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"vendor-billing/internal/usecase"
)

var ErrMalformedCallback = errors.New("malformed mpesa callback")

type stkCallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseMpesaCallback decodes a Daraja STK result callback. Metadata is only
// present on successful payments.
func ParseMpesaCallback(body []byte) (usecase.MpesaCallback, error) {
	var env stkCallbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return usecase.MpesaCallback{}, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return usecase.MpesaCallback{}, fmt.Errorf("%w: missing CheckoutRequestID", ErrMalformedCallback)
	}
	out := usecase.MpesaCallback{
		MerchantRequestID: cb.MerchantRequestID,
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}
	if cb.CallbackMetadata == nil {
		return out, nil
	}
	for _, item := range cb.CallbackMetadata.Item {
		raw := scalar(item.Value)
		switch item.Name {
		case "Amount":
			if d, err := decimal.NewFromString(raw); err == nil {
				out.Amount = d
			}
		case "MpesaReceiptNumber":
			out.ReceiptNumber = raw
		case "PhoneNumber":
			out.PhoneNumber = raw
		case "TransactionDate":
			if t, err := time.ParseInLocation("20060102150405", raw, eat); err == nil {
				out.TransactionDate = t.UTC()
			}
		}
	}
	return out, nil
}

// scalar renders a JSON number or string value as plain text.
func scalar(v json.RawMessage) string {
	s := strings.TrimSpace(string(v))
	if unq, err := strconv.Unquote(s); err == nil {
		return unq
	}
	return s
}
