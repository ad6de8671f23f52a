package alert

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendGridSinkSend(t *testing.T) {
	var got sgMail
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding mail payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewSendGridSink("sg-key")
	sink.url = srv.URL

	if err := sink.Send("bot@example.com", "owner@example.com", "order filled", "AAPL buy filled at 187"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if auth != "Bearer sg-key" {
		t.Errorf("Authorization = %q, want bearer key", auth)
	}
	if got.From.Email != "bot@example.com" {
		t.Errorf("from = %q, want bot@example.com", got.From.Email)
	}
	if len(got.Personalizations) != 1 || got.Personalizations[0].To[0].Email != "owner@example.com" {
		t.Errorf("to = %+v, want owner@example.com", got.Personalizations)
	}
	if got.Subject != "order filled" {
		t.Errorf("subject = %q, want %q", got.Subject, "order filled")
	}
}

func TestSendGridSinkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sink := NewSendGridSink("bad-key")
	sink.url = srv.URL

	if err := sink.Send("a@b.c", "d@e.f", "s", "b"); err == nil {
		t.Fatal("Send should surface a non-2xx response as an error")
	}
}
