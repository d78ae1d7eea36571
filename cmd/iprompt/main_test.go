package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"iprompt/internal/translation"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Fatalf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestOutputTo(t *testing.T) {
	data := map[string]any{"title": "Greeting", "tags": []string{"a"}}

	var js bytes.Buffer
	if err := outputTo(&js, "json", data); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if !strings.Contains(js.String(), "\n  \"tags\": [") {
		t.Fatalf("json not indented: %q", js.String())
	}

	var ym bytes.Buffer
	if err := outputTo(&ym, "yaml", data); err != nil {
		t.Fatalf("yaml output: %v", err)
	}
	if !strings.Contains(ym.String(), "title: Greeting") || !strings.Contains(ym.String(), "  - a") {
		t.Fatalf("unexpected yaml: %q", ym.String())
	}

	if err := outputTo(&ym, "xml", data); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestMaskedSettings(t *testing.T) {
	s := translation.DefaultSettings()
	s.Configs = map[string]translation.ProviderConfig{
		"litellm": {Provider: "openai/gpt-4o-mini", APIKey: "sk-1234567890abcd"},
		"short":   {APIKey: "abc"},
	}
	s.History = []translation.HistoryEntry{{ID: "h1"}}

	got := maskedSettings(s)
	if key := got.Configs["litellm"].APIKey; key != "sk-****abcd" {
		t.Fatalf("masked key = %q", key)
	}
	if key := got.Configs["short"].APIKey; key != "***" {
		t.Fatalf("masked short key = %q", key)
	}
	if got.History != nil {
		t.Fatal("expected history omitted")
	}
}

func TestServeMux(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(newServeMux("/health", "/metrics", func() time.Time { return now }))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["status"] != "ok" || body["timestamp"] != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected health body: %v", body)
	}

	mresp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer mresp.Body.Close()
	if mresp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", mresp.StatusCode)
	}
}
