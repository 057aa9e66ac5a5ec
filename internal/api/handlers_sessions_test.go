package api

import (
	"testing"

	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/models"
)

func TestPrivateSessionFlow(t *testing.T) {
	srv, _ := setupTestServer(t)
	c := seedAPICrew(t, srv)

	rec := doRequest(srv, "POST", "/api/sessions", crew.StartSessionRequest{HumanID: c.human.ID, AgentID: c.guard.ID})
	if rec.Code != 201 {
		t.Fatalf("start: got %d: %s", rec.Code, rec.Body.String())
	}
	var sess models.PrivateSession
	parseJSON(t, rec, &sess)
	if sess.Channel != "web" || sess.TimeoutMinutes != 30 {
		t.Errorf("unexpected defaults: channel=%s timeout=%d", sess.Channel, sess.TimeoutMinutes)
	}

	rec = doRequest(srv, "POST", "/api/sessions/"+sess.ID+"/messages",
		PrivateMessageRequest{FromID: c.guard.ID, Text: "direct line"})
	if rec.Code != 201 {
		t.Fatalf("private send: got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(srv, "POST", "/api/sessions/"+sess.ID+"/messages",
		PrivateMessageRequest{FromID: c.worker.ID, Text: "let me in"})
	if rec.Code != 403 {
		t.Errorf("outsider send: got %d, want 403", rec.Code)
	}

	rec = doRequest(srv, "GET", "/api/sessions/active?human_id="+c.human.ID+"&agent_id="+c.guard.ID, nil)
	if rec.Code != 200 {
		t.Errorf("active lookup: got %d", rec.Code)
	}

	rec = doRequest(srv, "POST", "/api/sessions/"+sess.ID+"/end", nil)
	var res crew.EndSessionResult
	parseJSON(t, rec, &res)
	if rec.Code != 200 || res.AlreadyEnded {
		t.Fatalf("end: got %d %+v", rec.Code, res)
	}

	rec = doRequest(srv, "POST", "/api/sessions/"+sess.ID+"/end", EndSessionRequest{EndedBy: "system"})
	parseJSON(t, rec, &res)
	if !res.AlreadyEnded {
		t.Error("second end should report already_ended")
	}

	rec = doRequest(srv, "GET", "/api/sessions/active?human_id="+c.human.ID+"&agent_id="+c.guard.ID, nil)
	if rec.Code != 404 {
		t.Errorf("active after end: got %d, want 404", rec.Code)
	}

	rec = doRequest(srv, "POST", "/api/sessions/sweep", nil)
	var swept map[string]int
	parseJSON(t, rec, &swept)
	if swept["closed"] != 0 {
		t.Errorf("sweep: got %v", swept)
	}
}

func TestStartSession_RequiresHuman(t *testing.T) {
	srv, _ := setupTestServer(t)
	c := seedAPICrew(t, srv)

	rec := doRequest(srv, "POST", "/api/sessions", crew.StartSessionRequest{HumanID: c.boss.ID, AgentID: c.guard.ID})
	if rec.Code != 400 {
		t.Errorf("got %d, want 400\nbody: %s", rec.Code, rec.Body.String())
	}
}
