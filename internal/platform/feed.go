package platform

import (
	"context"
	"encoding/json"
	"time"

	"github.com/davecgh/go-spew/spew"
	mapset "github.com/deckarep/golang-set"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voicespawn/backend/internal/cctx"
)

const (
	eventPresenceTransition = "PRESENCE_TRANSITION"
	eventRoomDeleted        = "ROOM_DELETED"

	reconnectDelay = 5 * time.Second
)

// Room kinds whose deletions are worth forwarding. Everything else is
// filtered at this boundary so the handler only ever sees voice-like
// rooms.
var voiceRoomKinds = mapset.NewSet(RoomKindVoice, RoomKindStage)

type eventEnvelope struct {
	Type string          `json:"t"`
	Data json.RawMessage `json:"d"`
}

// Feed consumes the platform's realtime gateway over a websocket and
// dispatches decoded events to a handler. Every event runs on its own
// goroutine; the feed never waits for a handler to finish.
type Feed struct {
	GatewayURL string
	Token      string
	Handler    EventHandler
	Debug      bool
}

// Run connects and consumes events until ctx is cancelled. Connection
// loss is logged and retried after a fixed delay; event handling errors
// never propagate here.
func (f *Feed) Run(ctx context.Context) error {
	for {
		if err := f.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zap.L().Error("gateway connection lost", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *Feed) consume(ctx context.Context) (err error) {
	dialer := websocket.Dialer{
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}

	headers := map[string][]string{
		"Authorization": {"Bot " + f.Token},
	}

	conn, _, err := dialer.DialContext(ctx, f.GatewayURL, headers)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// Unblock ReadMessage when the context goes away.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	zap.L().Info("connected to gateway", zap.String("url", f.GatewayURL))

	for {
		var raw []byte
		if _, raw, err = conn.ReadMessage(); err != nil {
			return
		}

		var envelope eventEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			zap.L().Warn("undecodable gateway frame", zap.Error(err))
			continue
		}

		f.dispatch(ctx, envelope)
	}
}

func (f *Feed) dispatch(ctx context.Context, envelope eventEnvelope) {
	eventID := uuid.New().String()
	log := zap.L().With(zap.String("event_id", eventID), zap.String("event_type", envelope.Type))

	if f.Debug {
		log.Debug("gateway event", zap.String("dump", spew.Sdump(envelope)))
	}

	switch envelope.Type {
	case eventPresenceTransition:
		var ev PresenceTransition
		if err := json.Unmarshal(envelope.Data, &ev); err != nil {
			log.Warn("undecodable presence transition", zap.Error(err))
			return
		}
		if ev.OldRoomID == "" && ev.NewRoomID == "" {
			// Mute/deafen style updates; no membership change.
			return
		}

		go f.Handler.HandlePresenceTransition(ctxWithEventID(ctx, eventID), ev)

	case eventRoomDeleted:
		var ev RoomDeleted
		if err := json.Unmarshal(envelope.Data, &ev); err != nil {
			log.Warn("undecodable room deletion", zap.Error(err))
			return
		}
		if !voiceRoomKinds.Contains(ev.Kind) {
			return
		}

		go f.Handler.HandleRoomDeleted(ctxWithEventID(ctx, eventID), ev)

	default:
		// Heartbeats and event types this service does not care about.
	}
}

func ctxWithEventID(parent context.Context, eventID string) context.Context {
	return cctx.WithValues(parent, cctx.EventID, eventID)
}
