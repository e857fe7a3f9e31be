package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is created once and never mutated afterwards; only seen rows are
// added. CreatedAt is assigned at persistence time and, together with the ID
// tie-break, defines the total order within a conversation.
type Message struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID     `gorm:"type:uuid;not null;index" json:"conversation_id"`
	SenderID       uint          `gorm:"not null" json:"sender_id"`
	Sender         User          `gorm:"foreignKey:SenderID" json:"-"`
	Body           string        `gorm:"not null" json:"body"`
	Seen           []MessageSeen `gorm:"foreignKey:MessageID" json:"-"`
	CreatedAt      time.Time     `json:"created_at"`
}

// MessageSeen records that one participant has observed one message. Rows are
// inserted idempotently and never deleted.
type MessageSeen struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey" json:"message_id"`
	UserID    uint      `gorm:"primaryKey" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageResponse is the API shape for a message with the sender's display
// fields populated and the seen set flattened to user IDs.
type MessageResponse struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	Sender         Participant `json:"sender"`
	Body           string      `json:"body"`
	SeenBy         []uint      `json:"seen_by"`
	CreatedAt      time.Time   `json:"created_at"`
}

type SendMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

// ToResponse flattens the gorm associations into the API shape.
func (m *Message) ToResponse() MessageResponse {
	seenBy := make([]uint, 0, len(m.Seen))
	for _, s := range m.Seen {
		seenBy = append(seenBy, s.UserID)
	}
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         m.Sender.AsParticipant(),
		Body:           m.Body,
		SeenBy:         seenBy,
		CreatedAt:      m.CreatedAt,
	}
}
