package irisfast

import (
	"context"
	"errors"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"go.uber.org/zap"
)

// Egress abstracts message/image sending over HTTP or WebSocket.
type Egress interface {
	SendText(ctx context.Context, room, message string) error
	SendImage(ctx context.Context, room, imageBase64 string) error
}

var errWSEgressUnavailable = errors.New("ws egress not available")

const (
	EgressHTTP = "http"
	EgressWS   = "ws"
	EgressAuto = "auto"
)

// NewEgress picks the reply path. In auto mode the websocket is used while
// connected and a failed frame is resent once over HTTP.
func NewEgress(mode string, dryrun bool, c *Client, ws *WebSocket) Egress {
	switch mode {
	case EgressWS:
		return &wsEgress{ws: ws, dryrun: dryrun}
	case EgressAuto:
		return &autoEgress{ws: &wsEgress{ws: ws, dryrun: dryrun}, http: c}
	default:
		return c
	}
}

type wsEgress struct {
	ws     *WebSocket
	dryrun bool
}

func (w *wsEgress) SendText(ctx context.Context, room, message string) error {
	return w.send(ctx, ReplyRequest{Type: "text", Room: room, Data: message})
}

func (w *wsEgress) SendImage(ctx context.Context, room, imageBase64 string) error {
	return w.send(ctx, ReplyRequest{Type: "image", Room: room, Data: imageBase64})
}

func (w *wsEgress) send(ctx context.Context, req ReplyRequest) error {
	if w == nil || w.ws == nil {
		return errWSEgressUnavailable
	}
	if w.dryrun {
		obslog.L().Info("ws_egress_dryrun", zap.String("type", req.Type), zap.String("room", req.Room))
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return w.ws.WriteJSON(ctx, &req)
}

type autoEgress struct {
	ws   *wsEgress
	http *Client
}

func (a *autoEgress) SendText(ctx context.Context, room, message string) error {
	return a.send(ctx, ReplyRequest{Type: "text", Room: room, Data: message})
}

func (a *autoEgress) SendImage(ctx context.Context, room, imageBase64 string) error {
	return a.send(ctx, ReplyRequest{Type: "image", Room: room, Data: imageBase64})
}

func (a *autoEgress) send(ctx context.Context, req ReplyRequest) error {
	if a.ws.ws != nil && a.ws.ws.Connected() {
		err := a.ws.send(ctx, req)
		if err == nil {
			return nil
		}
		obslog.L().Warn("egress_fallback", zap.String("type", req.Type), zap.String("room", req.Room), zap.Error(err))
	}
	return a.http.reply(ctx, req)
}
