package server

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/nedpals/nfc-session/nfc"
	"github.com/nedpals/nfc-session/protocol"
)

// sessionHandler exposes the controller's arm and status operations to
// WebSocket clients.
type sessionHandler struct {
	server   *Server
	validate *validator.Validate
}

func (h *sessionHandler) register(registry *HandlerRegistry) {
	registry.Handle(protocol.WSTypeArmRead, h.handleArmRead)
	registry.Handle(protocol.WSTypeArmWrite, h.handleArmWrite)
	registry.Handle(protocol.WSTypeDisarm, h.handleDisarm)
	registry.Handle(protocol.WSTypeSuspend, h.handleSuspend)
	registry.Handle(protocol.WSTypeResume, h.handleResume)
	registry.Handle(protocol.WSTypeStatus, h.handleStatus)
}

func (h *sessionHandler) handleArmRead(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	pending, err := h.server.config.Controller.ArmForRead()
	if err != nil {
		return client.SendError(req.ID, protocol.ErrorCode(err), err.Error())
	}
	if err := client.Respond(req.ID, protocol.WSTypeArmRead, map[string]any{"armed": nfc.OpRead.String()}); err != nil {
		return err
	}
	h.deliverResult(ctx, client, req.ID, pending)
	return nil
}

func (h *sessionHandler) handleArmWrite(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	var payload protocol.ArmWritePayload
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			return client.SendError(req.ID, protocol.ErrCodeInvalidPayload, "Invalid armWrite payload")
		}
	}
	if err := h.validate.Struct(payload); err != nil {
		return client.SendError(req.ID, protocol.ErrCodeInvalidPayload, err.Error())
	}

	data := payload.Bytes()
	pending, err := h.server.config.Controller.ArmForWrite(data)
	if err != nil {
		return client.SendError(req.ID, protocol.ErrorCode(err), err.Error())
	}
	if err := client.Respond(req.ID, protocol.WSTypeArmWrite, map[string]any{
		"armed": nfc.OpWrite.String(),
		"bytes": len(data),
	}); err != nil {
		return err
	}
	h.deliverResult(ctx, client, req.ID, pending)
	return nil
}

func (h *sessionHandler) handleDisarm(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	h.server.config.Controller.Disarm()
	return client.Respond(req.ID, protocol.WSTypeDisarm, h.server.Status())
}

func (h *sessionHandler) handleSuspend(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	if err := h.server.config.Controller.Suspend(); err != nil {
		return client.SendError(req.ID, protocol.ErrorCode(err), err.Error())
	}
	return client.Respond(req.ID, protocol.WSTypeSuspend, h.server.Status())
}

func (h *sessionHandler) handleResume(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	if err := h.server.config.Controller.Resume(); err != nil {
		return client.SendError(req.ID, protocol.ErrorCode(err), err.Error())
	}
	return client.Respond(req.ID, protocol.WSTypeResume, h.server.Status())
}

func (h *sessionHandler) handleStatus(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	return client.Respond(req.ID, protocol.WSTypeStatus, h.server.Status())
}

// deliverResult sends the outcome of pending to client once it resolves,
// unless the client disconnects first. Re-arming the same request does not
// deliver it twice.
func (h *sessionHandler) deliverResult(ctx context.Context, client *Client, requestID string, pending *nfc.Pending) {
	if !client.watch(pending) {
		return
	}
	go func() {
		defer client.unwatch(pending)
		res, err := pending.Wait(ctx)
		if ctx.Err() != nil {
			return
		}
		msg := protocol.WebSocketMessage{
			ID:      requestID,
			Type:    protocol.ResultType(pending.Op()),
			Payload: protocol.FromResult(pending.Op(), res, err),
		}
		if sendErr := client.Send(msg); sendErr != nil {
			client.logger.Warn().Err(sendErr).Msg("Failed to deliver result")
		}
	}()
}
