package alerting

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestMailgunNotifierSuccess(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/mg.example.com/messages") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "api" || pass != "key-test" {
			t.Fatalf("basic auth missing or wrong: %s/%s", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		form = r.PostForm
		w.Write([]byte(`{"id":"<msg@mg>","message":"Queued"}`))
	}))
	defer srv.Close()

	n := NewMailgunNotifier("key-test", "mg.example.com", "alerts@mg.example.com", srv.URL, time.Second, zerolog.Nop())
	err := n.Send(context.Background(), "Pending Txs threshold breached", "<p>hi</p>", []string{"a@example.com", "b@example.com"})
	if err != nil {
		t.Fatalf("Send should succeed: %v", err)
	}

	if got := form["to"]; len(got) != 1 || got[0] != "a@example.com,b@example.com" {
		t.Fatalf("recipients not joined: %#v", got)
	}
	if got := form["subject"]; len(got) != 1 || got[0] == "" {
		t.Fatalf("subject missing: %#v", got)
	}
}

func TestMailgunNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := NewMailgunNotifier("bad-key", "mg.example.com", "", srv.URL, time.Second, zerolog.Nop())
	if err := n.Send(context.Background(), "s", "b", []string{"a@example.com"}); err == nil {
		t.Fatal("401 should return an error")
	}
}

func TestMailgunNotifierRequiresRecipients(t *testing.T) {
	n := NewMailgunNotifier("key", "mg.example.com", "", "http://unused", time.Second, zerolog.Nop())
	if err := n.Send(context.Background(), "s", "b", nil); err == nil {
		t.Fatal("empty recipient list should error")
	}
}
