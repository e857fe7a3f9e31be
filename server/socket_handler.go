package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	apiError "github.com/tutorlinkhq/tutorlink/errors"
	"github.com/tutorlinkhq/tutorlink/models"
	"github.com/tutorlinkhq/tutorlink/realtime"
	"github.com/tutorlinkhq/tutorlink/services/jwt"
)

const socketReadTimeout = 60 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin filtering is handled by the CORS layer for the REST routes;
		// the socket identifies in-band before any data flows.
		return true
	},
}

// Inbound events: identify, joinConversation, typing, sendMessage,
// seenConversation.
type inboundFrame struct {
	Type           string `json:"type"`
	Token          string `json:"token,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Body           string `json:"body,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type ackFrame struct {
	Type           string `json:"type"`
	UserID         uint   `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type newMessageFrame struct {
	Type    string                 `json:"type"`
	Message models.MessageResponse `json:"message"`
}

type typingFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	FromUserID     uint   `json:"from_user_id"`
}

type seenFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	UserID         uint   `json:"user_id"`
}

// handleChatSocket upgrades the connection and processes frames until the
// client disconnects. A connection is unidentified until a valid identify
// frame arrives; every other event is rejected before that.
func (s *Server) handleChatSocket() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response; just log and return.
			log.Printf("websocket upgrade failed: %v", err)
			return
		}

		conn := realtime.NewConn(ws)
		s.Hub.Register(conn)
		defer func() {
			s.Hub.Unregister(conn)
			conn.Close(websocket.CloseNormalClosure, "session closed")
		}()

		ws.SetReadLimit(1 << 20)
		_ = ws.SetReadDeadline(time.Now().Add(socketReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(socketReadTimeout))
		})

		s.sendFrame(conn, ackFrame{Type: "connected"})

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
					!errors.Is(err, websocket.ErrCloseSent) {
					log.Printf("websocket read: %v", err)
				}
				return
			}

			var frame inboundFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				s.replyError(conn, apiError.CodeInvalidArgument, "invalid payload")
				continue
			}

			switch frame.Type {
			case "identify":
				s.handleIdentify(conn, frame)
			case "joinConversation":
				s.handleJoinConversation(conn, frame)
			case "typing":
				s.handleTyping(conn, frame)
			case "sendMessage":
				s.handleSocketSendMessage(conn, frame)
			case "seenConversation":
				s.handleSeenConversation(conn, frame)
			default:
				s.replyError(conn, apiError.CodeInvalidArgument, "unknown frame type")
			}
		}
	}
}

// handleIdentify validates the token and binds the connection to its user in
// the presence registry. A later identify for the same user replaces the
// older connection.
func (s *Server) handleIdentify(conn *realtime.Conn, frame inboundFrame) {
	if frame.Token == "" {
		s.replyError(conn, apiError.CodeInvalidArgument, "token is required")
		return
	}

	claims, err := jwt.ValidateAndGetClaims(frame.Token, s.Config.JWTSecret)
	if err != nil {
		s.replyError(conn, apiError.CodeUnauthorized, "invalid token")
		return
	}
	idValue, ok := claims["id"].(float64)
	if !ok {
		s.replyError(conn, apiError.CodeUnauthorized, "invalid token")
		return
	}
	userID := uint(idValue)

	if _, err := s.UserRepository.FindUserByID(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.replyError(conn, apiError.CodeUnauthorized, "unknown user")
		} else {
			log.Printf("identify: user lookup failed: %v", err)
			s.replyError(conn, apiError.CodeUnavailable, "try again later")
		}
		return
	}

	s.Hub.Identify(conn, userID)
	s.sendFrame(conn, ackFrame{Type: "identified", UserID: userID})
}

// handleJoinConversation subscribes the connection to the conversation's
// room, but only after the store confirms the user is a participant. Room
// membership is never taken on trust.
func (s *Server) handleJoinConversation(conn *realtime.Conn, frame inboundFrame) {
	userID := conn.UserID()
	if userID == 0 {
		s.replyError(conn, apiError.CodeUnauthorized, "identify first")
		return
	}
	conversationID, err := uuid.Parse(frame.ConversationID)
	if err != nil {
		s.replyError(conn, apiError.CodeInvalidArgument, "invalid conversation id")
		return
	}

	if _, apiErr := s.ConversationService.GetConversation(conversationID); apiErr != nil {
		s.replyError(conn, apiErr.Code, apiErr.Message)
		return
	}
	if apiErr := s.ConversationService.AuthorizeParticipant(conversationID, userID); apiErr != nil {
		s.replyError(conn, apiErr.Code, apiErr.Message)
		return
	}

	s.Hub.Join(conversationID.String(), conn)
	s.sendFrame(conn, ackFrame{Type: "joined", ConversationID: frame.ConversationID})
}

// handleTyping relays a typing notice to the other room subscribers. Nothing
// is persisted and delivery is not guaranteed.
func (s *Server) handleTyping(conn *realtime.Conn, frame inboundFrame) {
	userID := conn.UserID()
	if userID == 0 {
		s.replyError(conn, apiError.CodeUnauthorized, "identify first")
		return
	}
	if frame.ConversationID == "" {
		return
	}

	payload, err := json.Marshal(typingFrame{
		Type:           "typing",
		ConversationID: frame.ConversationID,
		FromUserID:     userID,
	})
	if err != nil {
		return
	}
	s.Hub.Broadcast(frame.ConversationID, payload, conn.ID)
}

// handleSocketSendMessage persists through the message service and only then
// fans out. A failed persistence attempt is reported to the origin alone;
// nothing reaches the room.
func (s *Server) handleSocketSendMessage(conn *realtime.Conn, frame inboundFrame) {
	userID := conn.UserID()
	if userID == 0 {
		s.replyError(conn, apiError.CodeUnauthorized, "identify first")
		return
	}
	conversationID, err := uuid.Parse(frame.ConversationID)
	if err != nil {
		s.replyError(conn, apiError.CodeInvalidArgument, "invalid conversation id")
		return
	}

	msg, apiErr := s.MessageService.SendMessage(userID, conversationID, frame.Body)
	if apiErr != nil {
		s.replyError(conn, apiErr.Code, apiErr.Message)
		return
	}

	// Durable now; every subscriber gets the broadcast, the sender's own
	// connections included.
	s.broadcastNewMessage(msg, "")
	s.notifyOfflineParticipants(msg)
}

// handleSeenConversation runs the same seen semantics as the synchronous
// list path, then tells the rest of the room so read receipts can update.
func (s *Server) handleSeenConversation(conn *realtime.Conn, frame inboundFrame) {
	userID := conn.UserID()
	if userID == 0 {
		s.replyError(conn, apiError.CodeUnauthorized, "identify first")
		return
	}
	conversationID, err := uuid.Parse(frame.ConversationID)
	if err != nil {
		s.replyError(conn, apiError.CodeInvalidArgument, "invalid conversation id")
		return
	}

	if apiErr := s.MessageService.MarkConversationSeen(userID, conversationID); apiErr != nil {
		s.replyError(conn, apiErr.Code, apiErr.Message)
		return
	}

	payload, err := json.Marshal(seenFrame{
		Type:           "messagesSeen",
		ConversationID: frame.ConversationID,
		UserID:         userID,
	})
	if err != nil {
		return
	}
	s.Hub.Broadcast(frame.ConversationID, payload, conn.ID)
}

// broadcastNewMessage fans a persisted message out to the conversation room.
func (s *Server) broadcastNewMessage(msg *models.MessageResponse, excludeConnID string) {
	payload, err := json.Marshal(newMessageFrame{Type: "newMessage", Message: *msg})
	if err != nil {
		log.Printf("broadcastNewMessage: encode failed: %v", err)
		return
	}
	s.Hub.Broadcast(msg.ConversationID.String(), payload, excludeConnID)
}

// notifyOfflineParticipants pushes a notification to participants with no
// identified connection. Offline clients still converge through the
// synchronous list path; this is purely a nudge.
func (s *Server) notifyOfflineParticipants(msg *models.MessageResponse) {
	if s.Notifications == nil || !s.Notifications.Enabled() {
		return
	}

	ids, apiErr := s.ConversationService.ParticipantIDs(msg.ConversationID)
	if apiErr != nil {
		return
	}
	offline := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == msg.Sender.ID || s.Hub.IsOnline(id) {
			continue
		}
		offline = append(offline, id)
	}
	if len(offline) == 0 {
		return
	}

	users, err := s.UserRepository.FindUsersByIDs(offline)
	if err != nil {
		log.Printf("notifyOfflineParticipants: %v", err)
		return
	}
	for i := range users {
		s.Notifications.PushNewMessage(users[i].DeviceToken, msg.Sender.Fullname, msg.Body)
	}
}

func (s *Server) sendFrame(conn *realtime.Conn, frame interface{}) {
	if payload, err := json.Marshal(frame); err == nil {
		_ = conn.Send(payload)
	}
}

func (s *Server) replyError(conn *realtime.Conn, code string, message string) {
	s.sendFrame(conn, errorFrame{Type: "error", Code: code, Error: message})
}
