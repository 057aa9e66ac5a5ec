package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/helmcode/crew-bus/internal/crew"
	"github.com/helmcode/crew-bus/internal/models"
	"github.com/helmcode/crew-bus/internal/protocol"
)

// Engine is the part of the crew service the bridge drives.
type Engine interface {
	SendMessage(ctx context.Context, req crew.SendRequest) (*crew.SendResult, error)
	SendPrivateMessage(ctx context.Context, sessionID, fromID, text string) (*models.Message, error)
}

// Handler registers request handlers. *Client satisfies it.
type Handler interface {
	Handle(subject, queue string, handler func(data []byte) []byte) error
}

// BridgeConfig holds configuration for the request bridge.
type BridgeConfig struct {
	Prefix  string
	Queue   string
	Timeout time.Duration
}

// Bridge accepts send requests from messaging-app bridges over NATS
// request/reply and runs them through the engine, so remote senders get the
// same routing and audit as API callers.
type Bridge struct {
	config BridgeConfig
	client Handler
	engine Engine
	logger *slog.Logger
}

// NewBridge creates a Bridge with the given components.
func NewBridge(config BridgeConfig, client Handler, engine Engine, logger *slog.Logger) *Bridge {
	if config.Queue == "" {
		config.Queue = "crewbus"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{config: config, client: client, engine: engine, logger: logger}
}

// Start registers the send and private-send handlers.
func (b *Bridge) Start() error {
	handlers := map[string]func(data []byte) protocol.Reply{
		protocol.MethodSend:        b.handleSend,
		protocol.MethodPrivateSend: b.handlePrivateSend,
	}
	for method, h := range handlers {
		subject, err := protocol.RPCSubject(b.config.Prefix, method)
		if err != nil {
			return fmt.Errorf("building %s subject: %w", method, err)
		}
		h := h
		if err := b.client.Handle(subject, b.config.Queue, func(data []byte) []byte {
			return encodeReply(h(data))
		}); err != nil {
			return err
		}
	}
	b.logger.Info("bridge started", "prefix", b.config.Prefix, "queue", b.config.Queue)
	return nil
}

func (b *Bridge) handleSend(data []byte) protocol.Reply {
	var req protocol.SendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.Reply{Error: "invalid request: " + err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.config.Timeout)
	defer cancel()

	res, err := b.engine.SendMessage(ctx, crew.SendRequest{
		FromID:   req.FromID,
		ToID:     req.ToID,
		Type:     models.MessageType(req.MessageType),
		Subject:  req.Subject,
		Body:     req.Body,
		Priority: models.Priority(req.Priority),
	})
	if err != nil {
		b.logger.Info("bridged send rejected", "from", req.FromID, "to", req.ToID, "error", err)
		return errorReply(err)
	}
	return protocol.Reply{OK: true, MessageID: res.MessageID}
}

func (b *Bridge) handlePrivateSend(data []byte) protocol.Reply {
	var req protocol.PrivateSendRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return protocol.Reply{Error: "invalid request: " + err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.config.Timeout)
	defer cancel()

	msg, err := b.engine.SendPrivateMessage(ctx, req.SessionID, req.FromID, req.Text)
	if err != nil {
		b.logger.Info("bridged private send rejected", "session_id", req.SessionID, "error", err)
		return errorReply(err)
	}
	return protocol.Reply{OK: true, MessageID: msg.ID}
}

func errorReply(err error) protocol.Reply {
	return protocol.Reply{Error: err.Error(), Blocked: errors.Is(err, crew.ErrBlocked)}
}

func encodeReply(r protocol.Reply) []byte {
	data, err := json.Marshal(r)
	if err != nil {
		return []byte(`{"ok":false,"error":"encoding reply"}`)
	}
	return data
}
