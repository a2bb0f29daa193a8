package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetCharge_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/merchant/api/v1/charges/MBG-1001-1000" {
			t.Fatalf("path = %s, want /merchant/api/v1/charges/MBG-1001-1000", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk_test" {
			t.Fatalf("authorization = %q, want Bearer sk_test", auth)
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(chargeResponse{
			Status: true,
			Data: Charge{
				Reference:  "MBG-1001-1000",
				Status:     "success",
				AmountPaid: 20000,
				Currency:   "NGN",
			},
		}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "sk_test")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	charge, err := client.GetCharge(ctx, "MBG-1001-1000")
	if err != nil {
		t.Fatalf("GetCharge error: %v", err)
	}
	if charge.Status != "success" || charge.AmountPaid != 20000 || charge.Currency != "NGN" {
		t.Fatalf("unexpected charge: %+v", charge)
	}
}

func TestGetCharge_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "sk_test")

	_, err := client.GetCharge(context.Background(), "MBG-0-0")
	if !errors.Is(err, ErrChargeNotFound) {
		t.Fatalf("err = %v, want ErrChargeNotFound", err)
	}
}

func TestGetCharge_UnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "sk_test")

	_, err := client.GetCharge(context.Background(), "MBG-0-0")
	if err == nil {
		t.Fatalf("expected error for unexpected status")
	}
}

func TestGetCharge_GatewayReportsFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(chargeResponse{Status: false}); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "sk_test")

	_, err := client.GetCharge(context.Background(), "MBG-0-0")
	if !errors.Is(err, ErrChargeNotFound) {
		t.Fatalf("err = %v, want ErrChargeNotFound", err)
	}
}

func TestGetCharge_NotConfigured(t *testing.T) {
	var client *Client

	_, err := client.GetCharge(context.Background(), "MBG-0-0")
	if err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}
