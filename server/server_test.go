package server

import (
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tutorlinkhq/tutorlink/config"
	apiError "github.com/tutorlinkhq/tutorlink/errors"
	"github.com/tutorlinkhq/tutorlink/models"
	"github.com/tutorlinkhq/tutorlink/realtime"
)

// Stub collaborators for handler tests. One conversation, a fixed participant
// set, and enough recording to assert on what the gateway did.

type stubUserRepo struct {
	users map[uint]models.User
}

func (r *stubUserRepo) FindUserByID(id uint) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r *stubUserRepo) FindUsersByIDs(ids []uint) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type stubConversationService struct {
	conv         *models.Conversation
	participants map[uint]bool

	mu          sync.Mutex
	resetCalls  []uint
	sideEffects int
}

func (s *stubConversationService) StartPrivateConversation(callerID uint, partnerID uint) (*models.ConversationResponse, *apiError.Error) {
	if partnerID == callerID {
		return nil, apiError.InvalidArgument("cannot start a conversation with yourself")
	}
	return &models.ConversationResponse{ID: s.conv.ID}, nil
}

func (s *stubConversationService) ListUserConversations(callerID uint) ([]models.ConversationResponse, *apiError.Error) {
	if !s.participants[callerID] {
		return []models.ConversationResponse{}, nil
	}
	return []models.ConversationResponse{{ID: s.conv.ID}}, nil
}

func (s *stubConversationService) GetConversation(conversationID uuid.UUID) (*models.Conversation, *apiError.Error) {
	if conversationID != s.conv.ID {
		return nil, apiError.NotFound("conversation not found")
	}
	return s.conv, nil
}

func (s *stubConversationService) AuthorizeParticipant(conversationID uuid.UUID, userID uint) *apiError.Error {
	if conversationID != s.conv.ID || !s.participants[userID] {
		return apiError.Forbidden("not a participant in this conversation")
	}
	return nil
}

func (s *stubConversationService) ApplyNewMessageSideEffects(msg *models.Message) *apiError.Error {
	s.mu.Lock()
	s.sideEffects++
	s.mu.Unlock()
	return nil
}

func (s *stubConversationService) ResetUnread(conversationID uuid.UUID, userID uint) *apiError.Error {
	s.mu.Lock()
	s.resetCalls = append(s.resetCalls, userID)
	s.mu.Unlock()
	return nil
}

func (s *stubConversationService) ParticipantIDs(conversationID uuid.UUID) ([]uint, *apiError.Error) {
	var ids []uint
	for id := range s.participants {
		ids = append(ids, id)
	}
	return ids, nil
}

type stubMessageService struct {
	conversations *stubConversationService

	mu        sync.Mutex
	sent      []models.MessageResponse
	seenCalls []uint
}

func (s *stubMessageService) SendMessage(senderID uint, conversationID uuid.UUID, body string) (*models.MessageResponse, *apiError.Error) {
	if body == "" {
		return nil, apiError.InvalidArgument("message text is required")
	}
	if _, apiErr := s.conversations.GetConversation(conversationID); apiErr != nil {
		return nil, apiErr
	}
	if apiErr := s.conversations.AuthorizeParticipant(conversationID, senderID); apiErr != nil {
		return nil, apiErr
	}
	msg := models.MessageResponse{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Sender:         models.Participant{ID: senderID},
		Body:           body,
		SeenBy:         []uint{senderID},
		CreatedAt:      time.Now().UTC(),
	}
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()
	return &msg, nil
}

func (s *stubMessageService) GetConversationMessages(callerID uint, conversationID uuid.UUID) ([]models.MessageResponse, *apiError.Error) {
	if _, apiErr := s.conversations.GetConversation(conversationID); apiErr != nil {
		return nil, apiErr
	}
	if apiErr := s.conversations.AuthorizeParticipant(conversationID, callerID); apiErr != nil {
		return nil, apiErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MessageResponse{}, s.sent...), nil
}

func (s *stubMessageService) MarkConversationSeen(callerID uint, conversationID uuid.UUID) *apiError.Error {
	if _, apiErr := s.conversations.GetConversation(conversationID); apiErr != nil {
		return apiErr
	}
	if apiErr := s.conversations.AuthorizeParticipant(conversationID, callerID); apiErr != nil {
		return apiErr
	}
	s.mu.Lock()
	s.seenCalls = append(s.seenCalls, callerID)
	s.mu.Unlock()
	return nil
}

type testFixture struct {
	server  *Server
	httpSrv *httptest.Server
	convSvc *stubConversationService
	msgSvc  *stubMessageService
	convID  uuid.UUID
}

const testJWTSecret = "test-secret"

func newTestFixture() *testFixture {
	gin.SetMode(gin.TestMode)

	convID := uuid.New()
	conv := &models.Conversation{ID: convID}
	convSvc := &stubConversationService{
		conv:         conv,
		participants: map[uint]bool{1: true, 2: true},
	}
	msgSvc := &stubMessageService{conversations: convSvc}

	s := &Server{
		Config: &config.Config{JWTSecret: testJWTSecret},
		UserRepository: &stubUserRepo{users: map[uint]models.User{
			1: {Model: models.Model{ID: 1}, Fullname: "Ada Obi", Username: "ada"},
			2: {Model: models.Model{ID: 2}, Fullname: "Ben Musa", Username: "ben"},
			3: {Model: models.Model{ID: 3}, Fullname: "Chi Eze", Username: "chi"},
		}},
		ConversationService: convSvc,
		MessageService:      msgSvc,
		Hub:                 realtime.NewHub(),
	}

	router := gin.New()
	s.defineRoutes(router)

	return &testFixture{
		server:  s,
		httpSrv: httptest.NewServer(router),
		convSvc: convSvc,
		msgSvc:  msgSvc,
		convID:  convID,
	}
}

func (f *testFixture) close() {
	f.server.Hub.Close()
	f.httpSrv.Close()
}
