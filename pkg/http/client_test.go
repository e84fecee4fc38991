package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSendAndParseStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"status":"ERROR"}`))
	}))
	defer srv.Close()

	c := NewClient()
	var body []byte
	err := c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, &body)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != http.StatusTooManyRequests {
		t.Fatalf("unexpected status %d", se.Status)
	}
}

func TestSendAndParseQueryAndRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Query().Get("date")))
	}))
	defer srv.Close()

	c := NewClient()
	var body []byte
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodGet,
		URL:         srv.URL,
		QueryParams: map[string][]string{"date": {"2024-01-02"}},
	}, &body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "2024-01-02" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestTransportErrorIsRedacted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(20*time.Millisecond), WithRedactedParams("apiKey"))
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodGet,
		URL:         srv.URL,
		QueryParams: map[string][]string{"apiKey": {"s3cret"}},
	}, nil)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if strings.Contains(err.Error(), "s3cret") {
		t.Fatalf("api key leaked in error: %v", err)
	}
}

func TestRedactURL(t *testing.T) {
	c := NewClient(WithRedactedParams("apiKey"))
	got := c.RedactURL("https://api.polygon.io/v3/reference/tickers/AAPL?apiKey=abc&date=2024-01-02")
	if strings.Contains(got, "abc") || !strings.Contains(got, "date=2024-01-02") {
		t.Fatalf("unexpected redaction %q", got)
	}
}
