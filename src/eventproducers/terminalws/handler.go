package terminalws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/quantfire/signal-dispatch/src/eventmodels"
	pubsub "github.com/quantfire/signal-dispatch/src/eventpubsub"
	"github.com/quantfire/signal-dispatch/src/eventservices"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 90 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// terminalHandler owns one websocket session per terminal. The first message
// must be a hello naming the terminal; everything after that is heartbeats
// and execution reports, re-published onto the bus. Fire commands flow the
// other way through the registry's send channel.
func terminalHandler(registry *eventservices.TerminalRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Errorf("terminalws: failed to upgrade connection: %v", err)
			return
		}

		hello, err := readHello(conn)
		if err != nil {
			log.Warnf("terminalws: handshake failed: %v", err)
			conn.Close()
			return
		}

		log.Infof("terminalws: terminal %v connected", hello.TerminalID)

		entry := registry.Register(hello.TerminalID)
		go writePump(conn, entry)
		readPump(r.Context(), conn, hello.TerminalID)

		registry.Unregister(hello.TerminalID, entry)
		conn.Close()
		log.Infof("terminalws: terminal %v disconnected", hello.TerminalID)
	}
}

func readHello(conn *websocket.Conn) (*eventmodels.TerminalHelloDTO, error) {
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var hello eventmodels.TerminalHelloDTO
	if err := conn.ReadJSON(&hello); err != nil {
		return nil, err
	}

	if hello.Type != eventmodels.TerminalMessageHello || hello.TerminalID == "" {
		return nil, errInvalidHello
	}

	return &hello, nil
}

var errInvalidHello = &websocket.CloseError{Code: websocket.ClosePolicyViolation, Text: "first message must be a hello with a terminal_id"}

func readPump(ctx context.Context, conn *websocket.Conn, terminalID string) {
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("terminalws: read error from terminal %v: %v", terminalID, err)
			}
			return
		}

		dispatchMessage(ctx, terminalID, data)
	}
}

func dispatchMessage(ctx context.Context, terminalID string, data []byte) {
	var envelope eventmodels.TerminalMessageDTO
	if err := json.Unmarshal(data, &envelope); err != nil {
		log.Warnf("terminalws: dropping unparseable message from terminal %v: %v", terminalID, err)
		return
	}

	switch envelope.Type {
	case eventmodels.TerminalMessageHeartbeat:
		var hb eventmodels.HeartbeatDTO
		if err := json.Unmarshal(envelope.Raw, &hb); err != nil {
			log.Warnf("terminalws: dropping malformed heartbeat from terminal %v: %v", terminalID, err)
			return
		}

		hb.TerminalID = terminalID
		pubsub.Publish("terminalws", pubsub.TerminalHeartbeatEvent, eventmodels.TerminalHeartbeatEvent{
			Ctx:       ctx,
			Heartbeat: hb,
		})

	case eventmodels.TerminalMessageFill:
		var result eventmodels.ExecutionResultDTO
		if err := json.Unmarshal(envelope.Raw, &result); err != nil {
			log.Warnf("terminalws: dropping malformed execution result from terminal %v: %v", terminalID, err)
			return
		}

		pubsub.Publish("terminalws", pubsub.ExecutionConfirmedEvent, eventmodels.ExecutionConfirmedEvent{
			Ctx:        ctx,
			TerminalID: terminalID,
			Result:     result,
		})

	case eventmodels.TerminalMessageClose:
		var closeEv eventmodels.CloseEventDTO
		if err := json.Unmarshal(envelope.Raw, &closeEv); err != nil {
			log.Warnf("terminalws: dropping malformed close event from terminal %v: %v", terminalID, err)
			return
		}

		pubsub.Publish("terminalws", pubsub.PositionClosedEvent, eventmodels.PositionClosedEvent{
			Ctx:        ctx,
			TerminalID: terminalID,
			Close:      closeEv,
		})

	default:
		log.Warnf("terminalws: unknown message type %v from terminal %v", envelope.Type, terminalID)
	}
}

func writePump(conn *websocket.Conn, entry *eventservices.TerminalConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd, ok := <-entry.SendCh:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))

			if !ok {
				// Registry closed the channel: a reconnect replaced us.
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "replaced"))
				return
			}

			if err := conn.WriteJSON(cmd); err != nil {
				log.Warnf("terminalws: failed to send fire %v to terminal %v: %v", cmd.FireID, entry.TerminalID, err)
				return
			}

			log.Infof("terminalws: sent fire %v to terminal %v", cmd.FireID, entry.TerminalID)

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func SetupHandler(router *mux.Router, registry *eventservices.TerminalRegistry) {
	router.HandleFunc("", terminalHandler(registry))
}
