package enums

import "testing"

func TestPaymentStatusTerminal(t *testing.T) {
	terminal := []PaymentStatus{PaymentStatusSuccess, PaymentStatusCancelled, PaymentStatusFailed}
	for _, status := range terminal {
		if !status.IsTerminal() {
			t.Fatalf("expected %s to be terminal", status)
		}
	}
	open := []PaymentStatus{PaymentStatusCreated, PaymentStatusPending}
	for _, status := range open {
		if status.IsTerminal() {
			t.Fatalf("expected %s to be non-terminal", status)
		}
	}
}

func TestParsePaymentStatus(t *testing.T) {
	if _, err := ParsePaymentStatus("success"); err != nil {
		t.Fatalf("expected success to parse: %v", err)
	}
	if _, err := ParsePaymentStatus("settled"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	if OrderStatusPendingPayment.IsTerminal() {
		t.Fatal("pending_payment must not be terminal")
	}
	for _, status := range []OrderStatus{OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled} {
		if !status.IsTerminal() {
			t.Fatalf("expected %s to be terminal", status)
		}
	}
}
