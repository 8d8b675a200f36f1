package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strconv"
	"testing"

	"github.com/google/uuid"

	"github.com/sekolahku/settlement-backend/pkg/db/models"
	"github.com/sekolahku/settlement-backend/pkg/enums"
	pkgerrors "github.com/sekolahku/settlement-backend/pkg/errors"
)

func testRedirectChannel(t *testing.T) Channel {
	t.Helper()
	channel, err := NewRedirectChannel(RedirectConfig{
		CheckoutURL: "https://checkout.gateway.example/pay",
		MerchantID:  "merchant-1",
		SecretKey:   "top-secret",
	})
	if err != nil {
		t.Fatalf("build channel: %v", err)
	}
	return channel
}

func signPayload(t *testing.T, secret string, parts ...string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	for i, part := range parts {
		if i > 0 {
			mac.Write([]byte(":"))
		}
		mac.Write([]byte(part))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

func signedCallback(t *testing.T, paymentID uuid.UUID, amount int64, state, secret string) []byte {
	t.Helper()
	payload := map[string]any{
		"payment_id":     paymentID.String(),
		"amount":         amount,
		"state":          state,
		"transaction_id": "gw-tx-1",
		"signature":      signPayload(t, secret, paymentID.String(), strconv.FormatInt(amount, 10), state),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestRedirectInitiateBuildsSignedURL(t *testing.T) {
	channel := testRedirectChannel(t)
	payment := &models.Payment{ID: uuid.New(), Amount: 800_000}

	result, err := channel.Initiate(context.Background(), payment)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if result.InitialStatus != enums.PaymentStatusCreated {
		t.Fatalf("expected created status, got %s", result.InitialStatus)
	}

	parsed, err := url.Parse(result.RedirectURL)
	if err != nil {
		t.Fatalf("parse redirect url: %v", err)
	}
	query := parsed.Query()
	if query.Get("payment_id") != payment.ID.String() {
		t.Fatalf("redirect url missing payment id: %s", result.RedirectURL)
	}
	if query.Get("amount") != "800000" {
		t.Fatalf("redirect url missing amount: %s", result.RedirectURL)
	}
	expected := signPayload(t, "top-secret", payment.ID.String(), "800000")
	if query.Get("checksum") != expected {
		t.Fatalf("checksum mismatch: got %s", query.Get("checksum"))
	}
}

func TestRedirectParseCallback(t *testing.T) {
	channel := testRedirectChannel(t)
	paymentID := uuid.New()

	event, err := channel.ParseCallback(signedCallback(t, paymentID, 800_000, "paid", "top-secret"))
	if err != nil {
		t.Fatalf("parse callback: %v", err)
	}
	if event.PaymentID != paymentID {
		t.Fatalf("payment id mismatch: %s", event.PaymentID)
	}
	if event.Outcome != enums.PaymentStatusSuccess {
		t.Fatalf("expected success outcome, got %s", event.Outcome)
	}
	if event.ExternalRef != "gw-tx-1" {
		t.Fatalf("expected external ref, got %q", event.ExternalRef)
	}
}

func TestRedirectParseCallbackOutcomes(t *testing.T) {
	channel := testRedirectChannel(t)
	cases := map[string]enums.PaymentStatus{
		"cancelled": enums.PaymentStatusCancelled,
		"failed":    enums.PaymentStatusFailed,
	}
	for state, expected := range cases {
		event, err := channel.ParseCallback(signedCallback(t, uuid.New(), 1000, state, "top-secret"))
		if err != nil {
			t.Fatalf("state %s: %v", state, err)
		}
		if event.Outcome != expected {
			t.Fatalf("state %s: expected %s, got %s", state, expected, event.Outcome)
		}
	}
}

func TestRedirectRejectsBadSignature(t *testing.T) {
	channel := testRedirectChannel(t)

	raw := signedCallback(t, uuid.New(), 800_000, "paid", "wrong-secret")
	if channel.VerifySignature(raw) {
		t.Fatal("expected signature verification to fail")
	}
	if _, err := channel.ParseCallback(raw); err == nil {
		t.Fatal("expected parse to reject bad signature")
	} else if pkgerrors.As(err).Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestRedirectRejectsUnknownState(t *testing.T) {
	channel := testRedirectChannel(t)
	if _, err := channel.ParseCallback(signedCallback(t, uuid.New(), 1000, "refunded", "top-secret")); err == nil {
		t.Fatal("expected unknown state to be rejected")
	}
}

func TestCashParseAction(t *testing.T) {
	channel := NewCashChannel()
	paymentID := uuid.New()

	raw, _ := json.Marshal(map[string]string{"payment_id": paymentID.String(), "action": "confirm", "reference": "receipt-9"})
	event, err := channel.ParseCallback(raw)
	if err != nil {
		t.Fatalf("parse cash action: %v", err)
	}
	if event.Outcome != enums.PaymentStatusSuccess {
		t.Fatalf("expected success, got %s", event.Outcome)
	}
	if event.ExternalRef != "receipt-9" {
		t.Fatalf("expected receipt reference, got %q", event.ExternalRef)
	}

	raw, _ = json.Marshal(map[string]string{"payment_id": paymentID.String(), "action": "void"})
	event, err = channel.ParseCallback(raw)
	if err != nil {
		t.Fatalf("parse void action: %v", err)
	}
	if event.Outcome != enums.PaymentStatusCancelled {
		t.Fatalf("expected cancelled, got %s", event.Outcome)
	}

	raw, _ = json.Marshal(map[string]string{"payment_id": paymentID.String(), "action": "shred"})
	if _, err := channel.ParseCallback(raw); err == nil {
		t.Fatal("expected unknown action to be rejected")
	}
}

func TestCashChannelIsManual(t *testing.T) {
	if !NewCashChannel().Manual() {
		t.Fatal("cash must be flagged manual so the public callback route refuses it")
	}
	if testRedirectChannel(t).Manual() {
		t.Fatal("redirect channel must accept gateway callbacks")
	}
}

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry(NewCashChannel())
	if _, err := registry.Resolve(enums.PaymentMethodCash); err != nil {
		t.Fatalf("expected cash channel: %v", err)
	}
	if _, err := registry.Resolve(enums.PaymentMethodGateway); err == nil {
		t.Fatal("expected unsupported method error")
	}
}
