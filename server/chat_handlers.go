package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	errs "github.com/tutorlinkhq/tutorlink/errors"
	"github.com/tutorlinkhq/tutorlink/models"
	"github.com/tutorlinkhq/tutorlink/server/response"
)

// handleStartConversation finds or creates the private conversation between
// the caller and the partner. Safe to call repeatedly: the same conversation
// comes back every time.
func (s *Server) handleStartConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserID(c)
		if !ok {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}

		var req models.StartConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errs.InvalidArgument("partner id is required"))
			return
		}

		conv, apiErr := s.ConversationService.StartPrivateConversation(userID, req.PartnerID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "conversation retrieved", http.StatusOK, conv, nil)
	}
}

func (s *Server) handleListConversations() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserID(c)
		if !ok {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}

		convs, apiErr := s.ConversationService.ListUserConversations(userID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "conversations retrieved", http.StatusOK, convs, nil)
	}
}

func (s *Server) handleSendMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserID(c)
		if !ok {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}

		conversationID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errs.InvalidArgument("invalid conversation id"))
			return
		}

		var req models.SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errs.InvalidArgument("message text is required"))
			return
		}

		msg, apiErr := s.MessageService.SendMessage(userID, conversationID, req.Body)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}

		// The message is durable at this point; fan-out is best effort.
		s.broadcastNewMessage(msg, "")
		s.notifyOfflineParticipants(msg)

		response.JSON(c, "message sent", http.StatusCreated, msg, nil)
	}
}

// handleGetConversationMessages returns the conversation in ascending order.
// As a side effect every message not yet observed by the caller is marked
// seen and the caller's unread counter resets to zero.
func (s *Server) handleGetConversationMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserID(c)
		if !ok {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}

		conversationID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errs.InvalidArgument("invalid conversation id"))
			return
		}

		msgs, apiErr := s.MessageService.GetConversationMessages(userID, conversationID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "messages retrieved", http.StatusOK, msgs, nil)
	}
}
