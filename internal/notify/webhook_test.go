package notify_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"confdb/internal/config"
	"confdb/internal/core"
	"confdb/internal/notify"
)

type receivedEvent struct {
	Event       string   `json:"event"`
	ProjectName string   `json:"project_name"`
	ProjectID   string   `json:"project_id"`
	Users       []string `json:"users"`
	Approvers   []string `json:"approvers"`
	RejectedBy  string   `json:"rejected_by"`
	Reason      string   `json:"reason"`
}

func webhookServer(t *testing.T) (*httptest.Server, chan receivedEvent) {
	t.Helper()
	events := make(chan receivedEvent, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event receivedEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			t.Errorf("decoding webhook body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		events <- event
	}))
	t.Cleanup(srv.Close)
	return srv, events
}

func nextEvent(t *testing.T, events chan receivedEvent) receivedEvent {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("no webhook event arrived")
		return receivedEvent{}
	}
}

func TestWebhookNotifier(t *testing.T) {
	t.Parallel()
	srv, events := webhookServer(t)
	notifier, err := notify.NewWebhookNotifier(config.NotifierConfig{WebhookURL: srv.URL}, core.NewNopLogger())
	if err != nil {
		t.Fatalf("NewWebhookNotifier() error = %v", err)
	}

	t.Run("submitted", func(t *testing.T) {
		notifier.ProjectSubmitted([]string{"alice"}, "LCLS Upgrade", "prj-1")
		event := nextEvent(t, events)
		if event.Event != "project_submitted" || event.ProjectName != "LCLS Upgrade" || event.ProjectID != "prj-1" {
			t.Errorf("event = %+v", event)
		}
		if len(event.Users) != 1 || event.Users[0] != "alice" {
			t.Errorf("users = %v, want [alice]", event.Users)
		}
	})

	t.Run("rejected carries the reason", func(t *testing.T) {
		notifier.ProjectRejected([]string{"alice"}, "LCLS Upgrade", "prj-1", "carol", "z location looks wrong")
		event := nextEvent(t, events)
		if event.Event != "project_rejected" || event.RejectedBy != "carol" || event.Reason != "z location looks wrong" {
			t.Errorf("event = %+v", event)
		}
	})

	t.Run("approver list change carries both lists", func(t *testing.T) {
		notifier.ApproverListChanged([]string{"alice"}, "LCLS Upgrade", "prj-1", []string{"bob", "dave"})
		event := nextEvent(t, events)
		if event.Event != "approver_list_changed" {
			t.Errorf("event = %+v", event)
		}
		if len(event.Approvers) != 2 || event.Approvers[0] != "bob" {
			t.Errorf("approvers = %v", event.Approvers)
		}
	})

	t.Run("identities always valid", func(t *testing.T) {
		if !notifier.ValidateIdentity("anyone") {
			t.Error("ValidateIdentity() = false")
		}
	})
}

func TestNewWebhookNotifierRequiresURL(t *testing.T) {
	t.Parallel()
	if _, err := notify.NewWebhookNotifier(config.NotifierConfig{}, core.NewNopLogger()); err == nil {
		t.Error("NewWebhookNotifier() accepted an empty url")
	}
}

func TestNewNotifierFromConfig(t *testing.T) {
	t.Parallel()
	logger := core.NewNopLogger()

	if n, err := notify.NewNotifierFromConfig(config.NotifierConfig{}, logger); err != nil || n == nil {
		t.Errorf("empty type: %v, %v, want the no-op notifier", n, err)
	}
	if n, err := notify.NewNotifierFromConfig(config.NotifierConfig{Type: "none"}, logger); err != nil || n == nil {
		t.Errorf("none: %v, %v", n, err)
	}
	if _, err := notify.NewNotifierFromConfig(config.NotifierConfig{Type: "carrier-pigeon"}, logger); err == nil {
		t.Error("unknown type accepted")
	}
	if _, err := notify.NewNotifierFromConfig(config.NotifierConfig{Type: "email"}, logger); err == nil {
		t.Error("email without server settings accepted")
	}
	if n, err := notify.NewNotifierFromConfig(config.NotifierConfig{
		Type:          "email",
		EmailServer:   "smtp.example.com:587",
		EmailFromUser: "confdb@example.com",
	}, logger); err != nil || n == nil {
		t.Errorf("email: %v, %v", n, err)
	}
}
