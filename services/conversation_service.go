package services

import (
	"log"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/tutorlinkhq/tutorlink/config"
	"github.com/tutorlinkhq/tutorlink/db"
	apiError "github.com/tutorlinkhq/tutorlink/errors"
	"github.com/tutorlinkhq/tutorlink/models"
)

// ConversationService owns conversation lifecycle, participant authorization
// and the unread bookkeeping applied around message sends.
type ConversationService interface {
	StartPrivateConversation(callerID uint, partnerID uint) (*models.ConversationResponse, *apiError.Error)
	ListUserConversations(callerID uint) ([]models.ConversationResponse, *apiError.Error)
	GetConversation(conversationID uuid.UUID) (*models.Conversation, *apiError.Error)
	AuthorizeParticipant(conversationID uuid.UUID, userID uint) *apiError.Error
	ApplyNewMessageSideEffects(msg *models.Message) *apiError.Error
	ResetUnread(conversationID uuid.UUID, userID uint) *apiError.Error
	ParticipantIDs(conversationID uuid.UUID) ([]uint, *apiError.Error)
}

type conversationService struct {
	Config   *config.Config
	convRepo db.ConversationRepository
	userRepo db.UserRepository
}

func NewConversationService(convRepo db.ConversationRepository, userRepo db.UserRepository, conf *config.Config) ConversationService {
	return &conversationService{
		Config:   conf,
		convRepo: convRepo,
		userRepo: userRepo,
	}
}

// StartPrivateConversation returns the existing conversation for the pair or
// creates one. Creation is idempotent: the pair-key unique index serializes
// racing creators and the loser fetches the winner's row.
func (s *conversationService) StartPrivateConversation(callerID uint, partnerID uint) (*models.ConversationResponse, *apiError.Error) {
	if partnerID == 0 {
		return nil, apiError.InvalidArgument("partner id is required")
	}
	if partnerID == callerID {
		return nil, apiError.InvalidArgument("cannot start a conversation with yourself")
	}

	if _, err := s.userRepo.FindUserByID(partnerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.NotFound("user not found")
		}
		log.Printf("StartPrivateConversation: partner lookup failed: %v", err)
		return nil, apiError.ErrStoreUnavailable
	}

	pairKey := models.PairKey(callerID, partnerID)
	conv, err := s.convRepo.FindPrivateByPairKey(pairKey)
	if err == nil {
		return s.toResponse(conv, callerID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("StartPrivateConversation: lookup failed: %v", err)
		return nil, apiError.ErrStoreUnavailable
	}

	conv = &models.Conversation{
		ID:      uuid.New(),
		PairKey: pairKey,
	}
	err = s.convRepo.CreatePrivate(conv, []uint{callerID, partnerID})
	if err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Printf("StartPrivateConversation: create failed: %v", err)
			return nil, apiError.ErrStoreUnavailable
		}
		// Lost the race; the winner's conversation is the one to return.
	}

	conv, err = s.convRepo.FindPrivateByPairKey(pairKey)
	if err != nil {
		log.Printf("StartPrivateConversation: re-fetch failed: %v", err)
		return nil, apiError.ErrStoreUnavailable
	}
	return s.toResponse(conv, callerID)
}

func (s *conversationService) ListUserConversations(callerID uint) ([]models.ConversationResponse, *apiError.Error) {
	convs, err := s.convRepo.ListForUser(callerID)
	if err != nil {
		log.Printf("ListUserConversations: %v", err)
		return nil, apiError.ErrStoreUnavailable
	}

	responses := make([]models.ConversationResponse, 0, len(convs))
	for i := range convs {
		resp, apiErr := s.toResponse(&convs[i], callerID)
		if apiErr != nil {
			return nil, apiErr
		}
		responses = append(responses, *resp)
	}
	return responses, nil
}

func (s *conversationService) GetConversation(conversationID uuid.UUID) (*models.Conversation, *apiError.Error) {
	conv, err := s.convRepo.FindConversationByID(conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.NotFound("conversation not found")
		}
		log.Printf("GetConversation: %v", err)
		return nil, apiError.ErrStoreUnavailable
	}
	return conv, nil
}

func (s *conversationService) AuthorizeParticipant(conversationID uuid.UUID, userID uint) *apiError.Error {
	ok, err := s.convRepo.IsParticipant(conversationID, userID)
	if err != nil {
		log.Printf("AuthorizeParticipant: %v", err)
		return apiError.ErrStoreUnavailable
	}
	if !ok {
		return apiError.Forbidden("not a participant in this conversation")
	}
	return nil
}

// ApplyNewMessageSideEffects moves the last-message pointer and bumps every
// other participant's unread counter. The increment is one atomic UPDATE at
// the store, so interleaved sends never lose counts.
func (s *conversationService) ApplyNewMessageSideEffects(msg *models.Message) *apiError.Error {
	if err := s.convRepo.IncrementUnreadExcept(msg.ConversationID, msg.SenderID); err != nil {
		log.Printf("ApplyNewMessageSideEffects: increment failed: %v", err)
		return apiError.ErrStoreUnavailable
	}
	if err := s.convRepo.SetLastMessage(msg.ConversationID, msg.ID, msg.CreatedAt); err != nil {
		log.Printf("ApplyNewMessageSideEffects: last message update failed: %v", err)
		return apiError.ErrStoreUnavailable
	}
	return nil
}

func (s *conversationService) ResetUnread(conversationID uuid.UUID, userID uint) *apiError.Error {
	if err := s.convRepo.ResetUnread(conversationID, userID); err != nil {
		log.Printf("ResetUnread: %v", err)
		return apiError.ErrStoreUnavailable
	}
	return nil
}

func (s *conversationService) ParticipantIDs(conversationID uuid.UUID) ([]uint, *apiError.Error) {
	ids, err := s.convRepo.ParticipantIDs(conversationID)
	if err != nil {
		log.Printf("ParticipantIDs: %v", err)
		return nil, apiError.ErrStoreUnavailable
	}
	return ids, nil
}

func (s *conversationService) toResponse(conv *models.Conversation, callerID uint) (*models.ConversationResponse, *apiError.Error) {
	unread, err := s.convRepo.UnreadCount(conv.ID, callerID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("toResponse: unread lookup failed: %v", err)
		return nil, apiError.ErrStoreUnavailable
	}

	partners := make([]models.Participant, 0, len(conv.Participants))
	for i := range conv.Participants {
		partners = append(partners, conv.Participants[i].AsParticipant())
	}

	resp := &models.ConversationResponse{
		ID:          conv.ID,
		Partners:    partners,
		UnreadCount: unread,
		CreatedAt:   conv.CreatedAt,
		UpdatedAt:   conv.UpdatedAt,
	}
	if conv.LastMessage != nil {
		last := conv.LastMessage.ToResponse()
		resp.LastMessage = &last
	}
	return resp, nil
}
