package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestResolve_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/geocode" {
			t.Fatalf("path = %s, want /api/geocode", r.URL.Path)
		}
		if q := r.URL.Query().Get("q"); q != "Rua A, 10" {
			t.Fatalf("query = %q, want Rua A, 10", q)
		}

		resp := Result{
			Lat:              -16.68,
			Lng:              -49.25,
			FormattedAddress: "Rua A, 10 - Goiânia",
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	point, formatted, err := client.Resolve(ctx, "Rua A, 10")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if point == nil || point.Lat != -16.68 || point.Lng != -49.25 {
		t.Fatalf("unexpected point: %+v", point)
	}
	if formatted != "Rua A, 10 - Goiânia" {
		t.Fatalf("formatted = %q", formatted)
	}
}

func TestResolve_NotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, _, err := client.Resolve(ctx, "endereço inexistente")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestResolve_NotConfigured(t *testing.T) {
	var client *Client

	_, _, err := client.Resolve(context.Background(), "Rua A, 10")
	if err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}
