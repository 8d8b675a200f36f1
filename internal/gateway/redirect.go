package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/sekolahku/settlement-backend/pkg/db/models"
	"github.com/sekolahku/settlement-backend/pkg/enums"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
)

// RedirectConfig carries the hosted-checkout channel credentials.
type RedirectConfig struct {
	CheckoutURL string
	MerchantID  string
	SecretKey   string
}

// redirectChannel talks to the hosted redirect gateway: it builds signed
// checkout URLs and authenticates the gateway's signed callbacks.
type redirectChannel struct {
	cfg RedirectConfig
}

// NewRedirectChannel builds the hosted-checkout channel.
func NewRedirectChannel(cfg RedirectConfig) (Channel, error) {
	if cfg.CheckoutURL == "" {
		return nil, fmt.Errorf("checkout url required")
	}
	if cfg.MerchantID == "" {
		return nil, fmt.Errorf("merchant id required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("secret key required")
	}
	return &redirectChannel{cfg: cfg}, nil
}

func (c *redirectChannel) Method() enums.PaymentMethod {
	return enums.PaymentMethodGateway
}

func (c *redirectChannel) Manual() bool {
	return false
}

func (c *redirectChannel) Initiate(_ context.Context, payment *models.Payment) (*InitiateResult, error) {
	if payment == nil || payment.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment required before initiation")
	}
	checkout, err := url.Parse(c.cfg.CheckoutURL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse checkout url")
	}

	amount := strconv.FormatInt(payment.Amount, 10)
	query := checkout.Query()
	query.Set("merchant_id", c.cfg.MerchantID)
	query.Set("payment_id", payment.ID.String())
	query.Set("amount", amount)
	query.Set("checksum", c.sign(payment.ID.String(), amount))
	checkout.RawQuery = query.Encode()

	return &InitiateResult{
		InitialStatus: enums.PaymentStatusCreated,
		RedirectURL:   checkout.String(),
	}, nil
}

// redirectCallback is the gateway's raw notification shape.
type redirectCallback struct {
	PaymentID     string `json:"payment_id"`
	Amount        int64  `json:"amount"`
	State         string `json:"state"`
	TransactionID string `json:"transaction_id"`
	Signature     string `json:"signature"`
}

func (c *redirectChannel) VerifySignature(raw []byte) bool {
	var callback redirectCallback
	if err := json.Unmarshal(raw, &callback); err != nil {
		return false
	}
	if callback.Signature == "" {
		return false
	}
	expected := c.sign(callback.PaymentID, strconv.FormatInt(callback.Amount, 10), callback.State)
	return hmac.Equal([]byte(expected), []byte(callback.Signature))
}

func (c *redirectChannel) ParseCallback(raw []byte) (*Event, error) {
	if !c.VerifySignature(raw) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "invalid gateway signature")
	}

	var callback redirectCallback
	if err := json.Unmarshal(raw, &callback); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode gateway callback")
	}
	paymentID, err := uuid.Parse(callback.PaymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "parse payment id")
	}

	var outcome enums.PaymentStatus
	switch callback.State {
	case "paid":
		outcome = enums.PaymentStatusSuccess
	case "cancelled":
		outcome = enums.PaymentStatusCancelled
	case "failed":
		outcome = enums.PaymentStatusFailed
	default:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "unknown gateway state").
			WithDetails(map[string]any{"state": callback.State})
	}

	return &Event{
		PaymentID:   paymentID,
		Outcome:     outcome,
		ExternalRef: callback.TransactionID,
	}, nil
}

func (c *redirectChannel) sign(parts ...string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	for i, part := range parts {
		if i > 0 {
			mac.Write([]byte(":"))
		}
		mac.Write([]byte(part))
	}
	return hex.EncodeToString(mac.Sum(nil))
}
