// File: internal/infra/adapters/payment/mpesa_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"vendor-billing/internal/config"
	"vendor-billing/internal/domain/ports/adapter"
)

var _ adapter.MobileMoneyGateway = (*MpesaGateway)(nil)

// Daraja timestamps are East Africa Time.
var eat = time.FixedZone("EAT", 3*60*60)

// ErrInvalidPhone is returned for numbers that are not Kenyan mobile numbers.
var ErrInvalidPhone = errors.New("invalid kenyan mobile number")

// darajaProcessing is the error code Daraja returns from STK query while the
// customer has not answered the prompt yet.
const darajaProcessing = "500.001.1001"

// MpesaGateway talks to Safaricom Daraja: OAuth, STK push and STK query.
type MpesaGateway struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	shortCode      string
	passkey        string
	callbackURL    string
	client         *http.Client
	limiter        *rate.Limiter
	now            func() time.Time
	log            zerolog.Logger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewMpesaGateway(cfg *config.MpesaConfig, logger *zerolog.Logger) (*MpesaGateway, error) {
	if cfg.ConsumerKey == "" || cfg.ShortCode == "" || cfg.Passkey == "" {
		return nil, errors.New("mpesa: consumer key, short code and passkey are required")
	}
	burst := int(cfg.RatePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &MpesaGateway{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		shortCode:      cfg.ShortCode,
		passkey:        cfg.Passkey,
		callbackURL:    cfg.CallbackURL,
		client:         &http.Client{Timeout: cfg.Timeout},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst),
		now:            time.Now,
		log:            logger.With().Str("component", "MpesaGateway").Logger(),
	}, nil
}

// NormalizePhone turns 07XXXXXXXX, 01XXXXXXXX, +2547XXXXXXXX and 2547XXXXXXXX
// into the 2547XXXXXXXX form Daraja expects.
func NormalizePhone(phone string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	p = strings.TrimPrefix(p, "+")
	switch {
	case strings.HasPrefix(p, "0") && len(p) == 10:
		p = "254" + p[1:]
	case (strings.HasPrefix(p, "7") || strings.HasPrefix(p, "1")) && len(p) == 9:
		p = "254" + p
	}
	if len(p) != 12 || !strings.HasPrefix(p, "254") || (p[3] != '7' && p[3] != '1') {
		return "", ErrInvalidPhone
	}
	if _, err := strconv.ParseUint(p, 10, 64); err != nil {
		return "", ErrInvalidPhone
	}
	return p, nil
}

// password is base64(shortcode + passkey + timestamp).
func (g *MpesaGateway) password(ts string) string {
	return base64.StdEncoding.EncodeToString([]byte(g.shortCode + g.passkey + ts))
}

func (g *MpesaGateway) timestamp() string {
	return g.now().In(eat).Format("20060102150405")
}

func (g *MpesaGateway) InitiateMobileMoneyPayment(ctx context.Context, req adapter.MobileMoneyRequest) (adapter.MobileMoneyResult, error) {
	phone, err := NormalizePhone(req.PhoneNumber)
	if err != nil {
		return adapter.MobileMoneyResult{}, err
	}
	amount := req.Amount.Ceil().IntPart()
	if amount < 1 {
		return adapter.MobileMoneyResult{}, fmt.Errorf("mpesa: amount must be at least 1 KES")
	}
	ts := g.timestamp()
	ref := req.TransactionID
	if len(ref) > 12 {
		ref = ref[:12]
	}
	desc := req.Description
	if len(desc) > 13 {
		desc = desc[:13]
	}
	payload := map[string]any{
		"BusinessShortCode": g.shortCode,
		"Password":          g.password(ts),
		"Timestamp":         ts,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            amount,
		"PartyA":            phone,
		"PartyB":            g.shortCode,
		"PhoneNumber":       phone,
		"CallBackURL":       g.callbackURL,
		"AccountReference":  ref,
		"TransactionDesc":   desc,
	}
	var out struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		CustomerMessage     string `json:"CustomerMessage"`
	}
	if err := g.post(ctx, "/mpesa/stkpush/v1/processrequest", payload, &out); err != nil {
		return adapter.MobileMoneyResult{}, err
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		return adapter.MobileMoneyResult{}, fmt.Errorf("mpesa: push rejected: %s %s", out.ResponseCode, out.ResponseDescription)
	}
	g.log.Info().Str("checkout_request_id", out.CheckoutRequestID).Str("transaction_id", req.TransactionID).Msg("stk push accepted")
	return adapter.MobileMoneyResult{
		MerchantRequestID:   out.MerchantRequestID,
		CheckoutRequestID:   out.CheckoutRequestID,
		ResponseCode:        out.ResponseCode,
		ResponseDescription: out.ResponseDescription,
		CustomerMessage:     out.CustomerMessage,
	}, nil
}

func (g *MpesaGateway) QueryMobileMoneyPayment(ctx context.Context, checkoutRequestID string) (adapter.MobileMoneyStatus, error) {
	ts := g.timestamp()
	payload := map[string]any{
		"BusinessShortCode": g.shortCode,
		"Password":          g.password(ts),
		"Timestamp":         ts,
		"CheckoutRequestID": checkoutRequestID,
	}
	var out struct {
		ResponseCode string `json:"ResponseCode"`
		ResultCode   string `json:"ResultCode"`
		ResultDesc   string `json:"ResultDesc"`
	}
	err := g.post(ctx, "/mpesa/stkpushquery/v1/query", payload, &out)
	var apiErr *DarajaError
	if errors.As(err, &apiErr) && apiErr.Code == darajaProcessing {
		return adapter.MobileMoneyStatus{Outcome: adapter.MobileMoneyPending, ResultDesc: apiErr.Message}, nil
	}
	if err != nil {
		return adapter.MobileMoneyStatus{}, err
	}
	code, err := strconv.Atoi(strings.TrimSpace(out.ResultCode))
	if err != nil {
		return adapter.MobileMoneyStatus{}, fmt.Errorf("mpesa: unexpected result code %q", out.ResultCode)
	}
	st := adapter.MobileMoneyStatus{ResultCode: code, ResultDesc: out.ResultDesc, Outcome: adapter.MobileMoneyFailed}
	if code == 0 {
		st.Outcome = adapter.MobileMoneySucceeded
	}
	return st, nil
}

// DarajaError is the error envelope Daraja returns on non-2xx responses.
type DarajaError struct {
	Status    int    `json:"-"`
	RequestID string `json:"requestId"`
	Code      string `json:"errorCode"`
	Message   string `json:"errorMessage"`
}

func (e *DarajaError) Error() string {
	return fmt.Sprintf("mpesa: http %d: %s %s", e.Status, e.Code, e.Message)
}

func (g *MpesaGateway) post(ctx context.Context, path string, payload any, out any) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	token, err := g.accessToken(ctx)
	if err != nil {
		return err
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &DarajaError{Status: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		if resp.StatusCode == http.StatusUnauthorized {
			g.invalidateToken()
		}
		return apiErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("mpesa: decode %s: %w", path, err)
	}
	return nil
}

// accessToken returns the cached OAuth token, refreshing it a minute early.
func (g *MpesaGateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token != "" && g.now().Before(g.tokenExp) {
		return g.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(g.consumerKey, g.consumerSecret)
	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mpesa: oauth http %d", resp.StatusCode)
	}
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("mpesa: decode oauth: %w", err)
	}
	if out.AccessToken == "" {
		return "", errors.New("mpesa: empty access token")
	}
	secs, err := strconv.Atoi(out.ExpiresIn)
	if err != nil || secs <= 0 {
		secs = 3599
	}
	g.token = out.AccessToken
	g.tokenExp = g.now().Add(time.Duration(secs)*time.Second - time.Minute)
	return g.token, nil
}

func (g *MpesaGateway) invalidateToken() {
	g.mu.Lock()
	g.token = ""
	g.mu.Unlock()
}
