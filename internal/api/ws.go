package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rashomon-app/rashomon/internal/database"
	"github.com/rashomon-app/rashomon/internal/session"
	"github.com/rashomon-app/rashomon/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// DiscussionCommand is what the browser sends over the discussion socket.
type DiscussionCommand struct {
	Kind string `json:"kind"` // send|leave
	Text string `json:"text,omitempty"`
}

// repoTranscriptStore adapts the repository to the coordinator's
// fire-and-forget persistence contract.
type repoTranscriptStore struct {
	db        database.RashomonRepository
	contentId int
}

func (t *repoTranscriptStore) AppendMessage(_ context.Context, msg types.ChatMessage) error {
	userId, err := strconv.Atoi(msg.SenderId)
	if err != nil {
		return err
	}

	return t.db.AppendChatMessage(database.AppendChatMessageParams{
		MessageId: msg.Id,
		ContentId: t.contentId,
		UserId:    userId,
		Body:      msg.Text,
		CreatedAt: msg.Timestamp,
	})
}

// serveDiscussion hosts one participant's discussion session: it upgrades
// the connection, enters the room on the participant's behalf and relays
// commands in and view events out until either side goes away.
func (s *RashomonApp) serveDiscussion(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("content_id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	content, err := s.db.GetContentByExternalId(externalId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	store := &repoTranscriptStore{db: s.db, contentId: content.Id}
	coord := session.NewCoordinator(s.log, s.broker, store, s.stats)

	if err := coord.Enter(content.ExternalId, strconv.Itoa(user.Id)); err != nil {
		s.log.Printf("enter room %q: %v", content.ExternalId, err)
		conn.Close()
		return
	}

	done := make(chan struct{})
	go s.writeDiscussion(conn, coord, done)
	go s.readDiscussion(conn, coord, done)
}

func (s *RashomonApp) readDiscussion(conn *websocket.Conn, coord *session.Coordinator, done chan struct{}) {
	defer func() {
		close(done)
		coord.Leave()
		conn.Close()
		s.log.Println("discussion read exiting")
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.log.Printf("ws: read: %v", err)
			}
			return
		}

		var cmd DiscussionCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.log.Println("error parsing command:", err)
			continue
		}

		switch cmd.Kind {
		case "send":
			coord.Send(cmd.Text)
		case "leave":
			return
		default:
			s.log.Printf("unknown discussion command %q", cmd.Kind)
		}
	}
}

func (s *RashomonApp) writeDiscussion(conn *websocket.Conn, coord *session.Coordinator, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
		s.log.Println("discussion write exiting")
	}()

	for {
		select {
		case ev := <-coord.Events():
			bytes, err := json.Marshal(ev)
			if err != nil {
				s.log.Println("failed to serialize view event:", err)
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, bytes); err != nil {
				return
			}

			if ev.Kind == "expired" {
				// the session is over; tell the browser to go back to the
				// read view and close cleanly
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session expired"))
				return
			}
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
