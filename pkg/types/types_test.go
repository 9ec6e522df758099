package types

import (
	"testing"
	"time"
)

func TestDeliveryAddressFallbacks(t *testing.T) {
	addr := DeliveryAddress{AddressLine1: "Road 4", City: "Sylhet", District: "Sylhet Sadar"}
	if addr.IsZero() {
		t.Fatal("address with a line and city is not zero")
	}
	if got := addr.StateOr("Dhaka"); got != "Sylhet Sadar" {
		t.Fatalf("expected district fallback, got %s", got)
	}
	if got := addr.ZipOr("1000"); got != "1000" {
		t.Fatalf("expected zip fallback, got %s", got)
	}
	var missing *DeliveryAddress
	if !missing.IsZero() {
		t.Fatal("nil address is zero")
	}
}

func TestStatusHistoryAppendKeepsOrder(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var h StatusHistory
	h = h.Append("pending", "created", at)
	h = h.Append("confirmed", "payment settled", at.Add(time.Minute))
	if len(h) != 2 || h[1].Status != "confirmed" {
		t.Fatalf("unexpected history %+v", h)
	}
}

func TestStatusHistoryRoundTripsThroughDriver(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h := StatusHistory{}.Append("pending", "created", at)
	v, err := h.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var back StatusHistory
	if err := back.Scan([]byte(v.(string))); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(back) != 1 || !back[0].ChangedAt.Equal(at) {
		t.Fatalf("unexpected history %+v", back)
	}
}

func TestAppendDoesNotAliasOriginal(t *testing.T) {
	at := time.Now()
	base := make(StatusHistory, 0, 4).Append("pending", "", at)
	a := base.Append("confirmed", "", at)
	b := base.Append("cancelled", "", at)
	if a[1].Status != "confirmed" || b[1].Status != "cancelled" {
		t.Fatalf("appends must not share backing arrays: %+v %+v", a, b)
	}
}

func TestFieldsScanAndGet(t *testing.T) {
	var f Fields
	if err := f.Scan(`{"status":"VALID"}`); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if f.Get("status") != "VALID" || f.Get("missing") != "" {
		t.Fatalf("unexpected fields %+v", f)
	}
	if err := f.Scan(42); err == nil {
		t.Fatal("expected unsupported type error")
	}
	var nilFields Fields
	if v, _ := nilFields.Value(); v != "{}" {
		t.Fatalf("nil fields should encode as {}, got %v", v)
	}
}
