package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFieldsAreStructured(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug").With(String("database", "stocks"))
	l.Warn("unit skipped",
		String("ticker", "AAPL"),
		Int("rows", 3),
		Int64("t", 1700000000000),
		Float64("value", 9500.5),
		Bool("retry", false),
		Duration("elapsed", 1500*time.Millisecond),
		Strings("tickers", []string{"AAPL", "MSFT"}),
		Error(errors.New("boom")),
	)

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	want := map[string]interface{}{
		"level":    "warn",
		"message":  "unit skipped",
		"database": "stocks",
		"ticker":   "AAPL",
		"rows":     float64(3),
		"t":        float64(1700000000000),
		"value":    9500.5,
		"retry":    false,
		"elapsed":  float64(1500),
		"tickers":  "AAPL, MSFT",
		"error":    "boom",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: got %v want %v", k, got[k], v)
		}
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")
	l.Info("hidden")
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %s", buf.String())
	}
	l.Error("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected error line, got %s", buf.String())
	}
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Info("database created", String("database", "stocks"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"database":"stocks"`) {
		t.Fatalf("unexpected log file %s", data)
	}

	if _, err := New(&Config{Level: "loud"}); err == nil {
		t.Fatalf("expected invalid level error")
	}
}
