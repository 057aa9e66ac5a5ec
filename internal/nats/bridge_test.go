package nats

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/models"
	"github.com/helmcode/crew-bus/internal/protocol"
	"github.com/helmcode/crew-bus/internal/routing"
)

type fakeHandler struct {
	handlers map[string]func([]byte) []byte
}

func (f *fakeHandler) Handle(subject, _ string, h func([]byte) []byte) error {
	f.handlers[subject] = h
	return nil
}

type fakeEngine struct {
	sendErr error
	lastReq crew.SendRequest
}

func (f *fakeEngine) SendMessage(_ context.Context, req crew.SendRequest) (*crew.SendResult, error) {
	f.lastReq = req
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &crew.SendResult{MessageID: "msg-1"}, nil
}

func (f *fakeEngine) SendPrivateMessage(_ context.Context, sessionID, _, _ string) (*models.Message, error) {
	if sessionID == "" {
		return nil, &crew.StateError{Msg: "No active session "}
	}
	return &models.Message{ID: "pm-1"}, nil
}

func call(t *testing.T, h *fakeHandler, subject string, req interface{}) protocol.Reply {
	t.Helper()
	fn, ok := h.handlers[subject]
	if !ok {
		t.Fatalf("no handler on %s", subject)
	}
	data, _ := json.Marshal(req)
	var reply protocol.Reply
	if err := json.Unmarshal(fn(data), &reply); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	return reply
}

func TestBridge_Send(t *testing.T) {
	h := &fakeHandler{handlers: map[string]func([]byte) []byte{}}
	engine := &fakeEngine{}
	b := NewBridge(BridgeConfig{Prefix: "crewbus"}, h, engine, nil)
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	reply := call(t, h, "crewbus.rpc.send", protocol.SendRequest{FromID: "a", ToID: "b",
		MessageType: "report", Subject: "hi", Priority: "high"})
	if !reply.OK || reply.MessageID != "msg-1" {
		t.Errorf("unexpected reply: %+v", reply)
	}
	if engine.lastReq.Priority != models.PriorityHigh || engine.lastReq.Type != models.MessageTypeReport {
		t.Errorf("request not mapped: %+v", engine.lastReq)
	}

	engine.sendErr = &crew.PermissionError{Reason: "Message blocked: nope", Blocked: true,
		Decision: routing.Deny(routing.StepRoleTable, "nope")}
	reply = call(t, h, "crewbus.rpc.send", protocol.SendRequest{FromID: "a", ToID: "b", MessageType: "report"})
	if reply.OK || !reply.Blocked || reply.Error != "Message blocked: nope" {
		t.Errorf("unexpected blocked reply: %+v", reply)
	}
}

func TestBridge_PrivateSendAndBadInput(t *testing.T) {
	h := &fakeHandler{handlers: map[string]func([]byte) []byte{}}
	b := NewBridge(BridgeConfig{Prefix: "crewbus"}, h, &fakeEngine{}, nil)
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	reply := call(t, h, "crewbus.rpc.private", protocol.PrivateSendRequest{SessionID: "s1", FromID: "h", Text: "hey"})
	if !reply.OK || reply.MessageID != "pm-1" {
		t.Errorf("unexpected reply: %+v", reply)
	}

	reply = call(t, h, "crewbus.rpc.private", protocol.PrivateSendRequest{FromID: "h", Text: "hey"})
	if reply.OK || reply.Blocked || reply.Error == "" {
		t.Errorf("expected plain error reply, got %+v", reply)
	}

	var out protocol.Reply
	if err := json.Unmarshal(h.handlers["crewbus.rpc.send"]([]byte("{not json")), &out); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if out.OK || out.Error == "" {
		t.Errorf("expected invalid request reply, got %+v", out)
	}
}

func TestBridge_InvalidPrefix(t *testing.T) {
	h := &fakeHandler{handlers: map[string]func([]byte) []byte{}}
	b := NewBridge(BridgeConfig{Prefix: "bad.prefix"}, h, &fakeEngine{}, nil)
	if err := b.Start(); err == nil {
		t.Fatal("expected error for a prefix containing a dot")
	}
}
