package services

import (
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/tutorlinkhq/tutorlink/db"
	apiError "github.com/tutorlinkhq/tutorlink/errors"
	"github.com/tutorlinkhq/tutorlink/models"
)

// MessageService creates messages, marks them seen and lists them in order.
// Both the synchronous API and the realtime gateway go through it, so the two
// entry points cannot diverge on seen/unread semantics.
type MessageService interface {
	SendMessage(senderID uint, conversationID uuid.UUID, body string) (*models.MessageResponse, *apiError.Error)
	GetConversationMessages(callerID uint, conversationID uuid.UUID) ([]models.MessageResponse, *apiError.Error)
	MarkConversationSeen(callerID uint, conversationID uuid.UUID) *apiError.Error
}

type messageService struct {
	msgRepo       db.MessageRepository
	userRepo      db.UserRepository
	conversations ConversationService
}

func NewMessageService(msgRepo db.MessageRepository, userRepo db.UserRepository, conversations ConversationService) MessageService {
	return &messageService{
		msgRepo:       msgRepo,
		userRepo:      userRepo,
		conversations: conversations,
	}
}

// SendMessage persists the message with the sender as its only observer and
// applies the conversation side effects. The returned message carries the
// sender's display fields.
func (s *messageService) SendMessage(senderID uint, conversationID uuid.UUID, body string) (*models.MessageResponse, *apiError.Error) {
	if conversationID == uuid.Nil {
		return nil, apiError.InvalidArgument("conversation id is required")
	}
	if strings.TrimSpace(body) == "" {
		return nil, apiError.InvalidArgument("message text is required")
	}

	if _, apiErr := s.conversations.GetConversation(conversationID); apiErr != nil {
		return nil, apiErr
	}
	if apiErr := s.conversations.AuthorizeParticipant(conversationID, senderID); apiErr != nil {
		return nil, apiErr
	}

	sender, err := s.userRepo.FindUserByID(senderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.Forbidden("sender is not a known user")
		}
		log.Printf("SendMessage: sender lookup failed: %v", err)
		return nil, apiError.ErrStoreUnavailable
	}

	// CreatedAt is left for the store to stamp at insert; the commit order is
	// the message order.
	msg := &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
	}
	if err := s.msgRepo.SaveMessage(msg); err != nil {
		log.Printf("SendMessage: save failed: %v", err)
		return nil, apiError.ErrStoreUnavailable
	}
	// The message is durable from here on. A side-effect failure still
	// surfaces as Unavailable, so a client retry would duplicate the message.
	// TODO: fold the side effects into the SaveMessage transaction.
	if apiErr := s.conversations.ApplyNewMessageSideEffects(msg); apiErr != nil {
		return nil, apiErr
	}

	msg.Sender = *sender
	msg.Seen = []models.MessageSeen{{MessageID: msg.ID, UserID: senderID}}
	resp := msg.ToResponse()
	return &resp, nil
}

// GetConversationMessages marks everything the caller has not observed as
// seen, zeroes the caller's unread counter and returns the conversation in
// ascending order. Other participants' seen state is never touched.
func (s *messageService) GetConversationMessages(callerID uint, conversationID uuid.UUID) ([]models.MessageResponse, *apiError.Error) {
	if conversationID == uuid.Nil {
		return nil, apiError.InvalidArgument("conversation id is required")
	}
	if _, apiErr := s.conversations.GetConversation(conversationID); apiErr != nil {
		return nil, apiErr
	}
	if apiErr := s.conversations.AuthorizeParticipant(conversationID, callerID); apiErr != nil {
		return nil, apiErr
	}

	if err := s.msgRepo.MarkAllSeen(conversationID, callerID); err != nil {
		log.Printf("GetConversationMessages: mark seen failed: %v", err)
		return nil, apiError.ErrStoreUnavailable
	}
	if apiErr := s.conversations.ResetUnread(conversationID, callerID); apiErr != nil {
		return nil, apiErr
	}

	msgs, err := s.msgRepo.ListByConversation(conversationID)
	if err != nil {
		log.Printf("GetConversationMessages: list failed: %v", err)
		return nil, apiError.ErrStoreUnavailable
	}

	responses := make([]models.MessageResponse, 0, len(msgs))
	for i := range msgs {
		responses = append(responses, msgs[i].ToResponse())
	}
	return responses, nil
}

// MarkConversationSeen is the realtime seen path. It shares the synchronous
// path's semantics: seen rows are unioned and the unread counter reset.
func (s *messageService) MarkConversationSeen(callerID uint, conversationID uuid.UUID) *apiError.Error {
	if conversationID == uuid.Nil {
		return apiError.InvalidArgument("conversation id is required")
	}
	if _, apiErr := s.conversations.GetConversation(conversationID); apiErr != nil {
		return apiErr
	}
	if apiErr := s.conversations.AuthorizeParticipant(conversationID, callerID); apiErr != nil {
		return apiErr
	}

	if err := s.msgRepo.MarkAllSeen(conversationID, callerID); err != nil {
		log.Printf("MarkConversationSeen: mark seen failed: %v", err)
		return apiError.ErrStoreUnavailable
	}
	return s.conversations.ResetUnread(conversationID, callerID)
}
