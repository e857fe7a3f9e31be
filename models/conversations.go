package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation is the durable record of a two-party messaging thread. The
// pair key is the ordered "lo:hi" form of the two participant IDs; its unique
// index guarantees at most one private conversation per unordered pair and
// settles concurrent creation races at the store.
type Conversation struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PairKey       string     `gorm:"uniqueIndex;not null" json:"-"`
	IsGroup       bool       `gorm:"not null;default:false" json:"is_group"`
	Participants  []User     `gorm:"many2many:conversation_participants;" json:"participants"`
	LastMessageID *uuid.UUID `gorm:"type:uuid" json:"-"`
	LastMessage   *Message   `gorm:"foreignKey:LastMessageID" json:"last_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ConversationParticipant is the join row carrying the per-participant unread
// counter. One row exists for every participant from the moment the
// conversation is created, so the counter key set always equals the
// participant set. The counter is only ever touched through single-statement
// atomic increments and resets.
type ConversationParticipant struct {
	ConversationID uuid.UUID `gorm:"type:uuid;primaryKey" json:"conversation_id"`
	UserID         uint      `gorm:"primaryKey" json:"user_id"`
	UnreadCount    int       `gorm:"not null;default:0" json:"unread_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// PairKey returns the canonical unordered-pair key for a private conversation.
func PairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// ConversationResponse is the API shape for a conversation as seen by one
// caller: display fields only, with the caller's own unread count.
type ConversationResponse struct {
	ID          uuid.UUID        `json:"id"`
	Partners    []Participant    `json:"participants"`
	LastMessage *MessageResponse `json:"last_message,omitempty"`
	UnreadCount int              `json:"unread_count"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type StartConversationRequest struct {
	PartnerID uint `json:"partner_id" binding:"required"`
}
