package services_test

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tutorlinkhq/tutorlink/models"
)

// fakeStore is an in-memory stand-in for the gorm repositories. It mirrors
// the store's concurrency contract: every mutation happens under one lock, so
// increments behave like the single-statement UPDATEs they model, and the
// pair-key index is enforced the way the unique constraint would.
type fakeStore struct {
	mu           sync.Mutex
	users        map[uint]models.User
	convs        map[uuid.UUID]*models.Conversation
	byPairKey    map[string]uuid.UUID
	participants map[uuid.UUID]map[uint]*models.ConversationParticipant
	messages     map[uuid.UUID][]*models.Message
	seen         map[uuid.UUID]map[uint]bool

	findUserErr error
	createErr   error
	saveErr     error
	lookupErr   error
}

func newFakeStore(users ...models.User) *fakeStore {
	s := &fakeStore{
		users:        make(map[uint]models.User),
		convs:        make(map[uuid.UUID]*models.Conversation),
		byPairKey:    make(map[string]uuid.UUID),
		participants: make(map[uuid.UUID]map[uint]*models.ConversationParticipant),
		messages:     make(map[uuid.UUID][]*models.Message),
		seen:         make(map[uuid.UUID]map[uint]bool),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeStore) FindUserByID(id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findUserErr != nil {
		return nil, s.findUserErr
	}
	u, ok := s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (s *fakeStore) FindUsersByIDs(ids []uint) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *fakeStore) CreatePrivate(conv *models.Conversation, participantIDs []uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, exists := s.byPairKey[conv.PairKey]; exists {
		return gorm.ErrDuplicatedKey
	}

	now := time.Now().UTC()
	stored := *conv
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.convs[conv.ID] = &stored
	s.byPairKey[conv.PairKey] = conv.ID

	rows := make(map[uint]*models.ConversationParticipant, len(participantIDs))
	for _, id := range participantIDs {
		rows[id] = &models.ConversationParticipant{ConversationID: conv.ID, UserID: id, CreatedAt: now}
	}
	s.participants[conv.ID] = rows
	return nil
}

func (s *fakeStore) FindPrivateByPairKey(pairKey string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	id, ok := s.byPairKey[pairKey]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s.loadConversationLocked(id), nil
}

func (s *fakeStore) FindConversationByID(id uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s.loadConversationLocked(id), nil
}

func (s *fakeStore) ListForUser(userID uint) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Conversation
	for id, rows := range s.participants {
		if _, ok := rows[userID]; ok {
			out = append(out, *s.loadConversationLocked(id))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *fakeStore) IsParticipant(conversationID uuid.UUID, userID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.participants[conversationID][userID]
	return ok, nil
}

func (s *fakeStore) ParticipantIDs(conversationID uuid.UUID) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint
	for id := range s.participants[conversationID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *fakeStore) UnreadCount(conversationID uuid.UUID, userID uint) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.participants[conversationID][userID]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	return row.UnreadCount, nil
}

func (s *fakeStore) UnreadCounts(conversationID uuid.UUID) (map[uint]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[uint]int)
	for id, row := range s.participants[conversationID] {
		counts[id] = row.UnreadCount
	}
	return counts, nil
}

func (s *fakeStore) IncrementUnreadExcept(conversationID uuid.UUID, senderID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, row := range s.participants[conversationID] {
		if id != senderID {
			row.UnreadCount++
		}
	}
	return nil
}

func (s *fakeStore) ResetUnread(conversationID uuid.UUID, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.participants[conversationID][userID]; ok {
		row.UnreadCount = 0
	}
	if conv, ok := s.convs[conversationID]; ok {
		conv.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *fakeStore) SetLastMessage(conversationID uuid.UUID, messageID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.convs[conversationID]; ok {
		id := messageID
		conv.LastMessageID = &id
		conv.UpdatedAt = at
	}
	return nil
}

func (s *fakeStore) SaveMessage(msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	// Like the real store, a zero CreatedAt is stamped at insert and written
	// back into the caller's struct.
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	stored := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &stored)
	s.seen[msg.ID] = map[uint]bool{msg.SenderID: true}
	return nil
}

func (s *fakeStore) ListByConversation(conversationID uuid.UUID) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		loaded := *m
		loaded.Sender = s.users[m.SenderID]
		for userID := range s.seen[m.ID] {
			loaded.Seen = append(loaded.Seen, models.MessageSeen{MessageID: m.ID, UserID: userID})
		}
		sort.Slice(loaded.Seen, func(i, j int) bool { return loaded.Seen[i].UserID < loaded.Seen[j].UserID })
		out = append(out, loaded)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *fakeStore) MarkAllSeen(conversationID uuid.UUID, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[conversationID] {
		s.seen[m.ID][userID] = true
	}
	return nil
}

func (s *fakeStore) loadConversationLocked(id uuid.UUID) *models.Conversation {
	conv := *s.convs[id]
	for userID := range s.participants[id] {
		if u, ok := s.users[userID]; ok {
			conv.Participants = append(conv.Participants, u)
		}
	}
	sort.Slice(conv.Participants, func(i, j int) bool {
		return conv.Participants[i].ID < conv.Participants[j].ID
	})
	if conv.LastMessageID != nil {
		for _, m := range s.messages[id] {
			if m.ID == *conv.LastMessageID {
				last := *m
				last.Sender = s.users[m.SenderID]
				conv.LastMessage = &last
				break
			}
		}
	}
	return &conv
}
