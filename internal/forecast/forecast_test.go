package forecast

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const sample = `{
  "location": {"name": "Zurich"},
  "forecast": {"forecastday": [{
    "date": "2026-10-19",
    "day": {"maxtemp_c": 19.5, "mintemp_c": -4.6, "condition": {"text": "Sunny", "code": 1000}}
  }]}
}`

func TestDecode(t *testing.T) {
	f, err := Decode(strings.NewReader(sample), true)
	if err != nil {
		t.Fatal(err)
	}
	if f.Code != 1000 || f.TempMin != -4 || f.TempMax != 20 || !f.Day || f.Location != "Zurich" {
		t.Errorf("Decode = %+v", f)
	}
}

func TestDecodeRounding(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"20.4", 20},
		{"20.5", 21},
		{"0", 0},
		{"-0.4", 0},
		{"-5.0", -4},
		{"-5.6", -5},
	}
	for _, tt := range tests {
		doc := `{"forecast":{"forecastday":[{"day":{"mintemp_c":` + tt.in +
			`,"maxtemp_c":0,"condition":{"code":1003}}}]}}`
		f, err := Decode(strings.NewReader(doc), false)
		if err != nil {
			t.Fatalf("%s: %v", tt.in, err)
		}
		if f.TempMin != tt.want {
			t.Errorf("mintemp_c %s -> %d, want %d", tt.in, f.TempMin, tt.want)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	docs := map[string]string{
		"not json":      `<html>`,
		"no forecast":   `{}`,
		"empty days":    `{"forecast":{"forecastday":[]}}`,
		"no day":        `{"forecast":{"forecastday":[{}]}}`,
		"no min":        `{"forecast":{"forecastday":[{"day":{"maxtemp_c":1,"condition":{"code":1000}}}]}}`,
		"no condition":  `{"forecast":{"forecastday":[{"day":{"mintemp_c":1,"maxtemp_c":1}}]}}`,
		"no code":       `{"forecast":{"forecastday":[{"day":{"mintemp_c":1,"maxtemp_c":1,"condition":{}}}]}}`,
		"string number": `{"forecast":{"forecastday":[{"day":{"mintemp_c":"1","maxtemp_c":1,"condition":{"code":1000}}}]}}`,
	}
	for name, doc := range docs {
		if _, err := Decode(strings.NewReader(doc), true); !errors.Is(err, ErrDecode) {
			t.Errorf("%s: err = %v, want ErrDecode", name, err)
		}
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("key") != "k3y" || q.Get("q") != "Zurich" || q.Get("days") != "1" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sample))
	}))
	defer srv.Close()

	c := NewClient("k3y", "Zurich", false)
	c.URL = srv.URL + "/v1/forecast.json"
	f, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.Day || f.Code != 1000 || f.FetchedAt.IsZero() {
		t.Errorf("Fetch = %+v", f)
	}
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient("k", "x", true)
	c.URL = srv.URL
	_, err := c.Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("err = %v, want a 403 status error", err)
	}
}

func TestFetchUsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.Header().Set("ETag", `"v1"`)
			w.Write([]byte(sample))
		case 2:
			if r.Header.Get("If-None-Match") != `"v1"` {
				t.Errorf("If-None-Match = %q", r.Header.Get("If-None-Match"))
			}
			w.WriteHeader(http.StatusNotModified)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := NewClient("k", "Zurich", true)
	c.URL = srv.URL
	c.CacheDir = t.TempDir()
	for i := 0; i < 3; i++ {
		f, err := c.Fetch(context.Background())
		if err != nil {
			t.Fatalf("fetch %d: %v", i+1, err)
		}
		if f.Code != 1000 {
			t.Errorf("fetch %d: code = %d", i+1, f.Code)
		}
	}
}

func TestFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sample))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient("k", "x", true)
	c.URL = srv.URL
	if _, err := c.Fetch(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("https://api.weatherapi.com/v1/forecast.json?key=secret&q=Zurich")
	if strings.Contains(got, "secret") || !strings.HasPrefix(got, "https://api.weatherapi.com/v1/forecast.json?q=") {
		t.Errorf("redactURL = %q", got)
	}
}
