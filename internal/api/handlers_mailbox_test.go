package api

import (
	"testing"

	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/models"
)

func TestMailbox_RateLimitAndSummary(t *testing.T) {
	srv, _ := setupTestServer(t)
	c := seedAPICrew(t, srv)

	for i, sev := range []models.MailboxSeverity{models.SeverityInfo, models.SeverityWarning, models.SeverityCodeRed} {
		rec := doRequest(srv, "POST", "/api/mailbox", crew.MailboxRequest{
			FromAgentID: c.worker.ID, Subject: "heads up", Severity: sev,
		})
		if rec.Code != 201 {
			t.Fatalf("post %d: got %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	rec := doRequest(srv, "POST", "/api/mailbox", crew.MailboxRequest{FromAgentID: c.worker.ID, Subject: "one more"})
	if rec.Code != 429 {
		t.Fatalf("fourth post: got %d, want 429", rec.Code)
	}

	rec = doRequest(srv, "GET", "/api/teams/"+c.manager.ID+"/mailbox/summary", nil)
	var sum crew.MailboxSummary
	parseJSON(t, rec, &sum)
	if sum.UnreadCount != 3 || sum.CodeRedCount != 1 || sum.WarningCount != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}

	rec = doRequest(srv, "GET", "/api/teams/"+c.manager.ID+"/mailbox?unread=true", nil)
	var entries []crew.MailboxView
	parseJSON(t, rec, &entries)
	if len(entries) != 3 {
		t.Fatalf("expected 3 unread entries, got %d", len(entries))
	}

	rec = doRequest(srv, "POST", "/api/mailbox/"+entries[0].ID+"/read", nil)
	var rr ReadResponse
	parseJSON(t, rec, &rr)
	if !rr.Changed {
		t.Error("first read should change the entry")
	}
}

func TestMailbox_CoreCrewRejected(t *testing.T) {
	srv, _ := setupTestServer(t)
	c := seedAPICrew(t, srv)

	rec := doRequest(srv, "POST", "/api/mailbox", crew.MailboxRequest{FromAgentID: c.guard.ID, Subject: "x"})
	if rec.Code != 400 {
		t.Errorf("core crew post: got %d, want 400", rec.Code)
	}
}
