package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/tutorlinkhq/tutorlink/models"
)

// ConversationRepository persists conversations and their per-participant
// unread counters. Counters are mutated exclusively through the single-
// statement increment/reset operations below; nothing in this repository
// reads a counter back to write a computed value.
type ConversationRepository interface {
	CreatePrivate(conv *models.Conversation, participantIDs []uint) error
	FindPrivateByPairKey(pairKey string) (*models.Conversation, error)
	FindConversationByID(id uuid.UUID) (*models.Conversation, error)
	ListForUser(userID uint) ([]models.Conversation, error)
	IsParticipant(conversationID uuid.UUID, userID uint) (bool, error)
	ParticipantIDs(conversationID uuid.UUID) ([]uint, error)
	UnreadCount(conversationID uuid.UUID, userID uint) (int, error)
	UnreadCounts(conversationID uuid.UUID) (map[uint]int, error)
	IncrementUnreadExcept(conversationID uuid.UUID, senderID uint) error
	ResetUnread(conversationID uuid.UUID, userID uint) error
	SetLastMessage(conversationID uuid.UUID, messageID uuid.UUID, at time.Time) error
}

type conversationRepo struct {
	DB *gorm.DB
}

func NewConversationRepo(db *GormDB) ConversationRepository {
	return &conversationRepo{db.DB}
}

// CreatePrivate inserts the conversation and one counter row per participant
// in a single transaction. A duplicate pair key surfaces as
// gorm.ErrDuplicatedKey so the caller can fetch the race winner instead.
func (r *conversationRepo) CreatePrivate(conv *models.Conversation, participantIDs []uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Participants").Create(conv).Error; err != nil {
			return err
		}
		for _, id := range participantIDs {
			p := models.ConversationParticipant{ConversationID: conv.ID, UserID: id}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *conversationRepo) FindPrivateByPairKey(pairKey string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.DB.Preload("Participants").
		Preload("LastMessage").
		Preload("LastMessage.Sender").
		Where("pair_key = ? AND is_group = ?", pairKey, false).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "could not look up conversation by pair key")
	}
	return &conv, nil
}

func (r *conversationRepo) FindConversationByID(id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.DB.Preload("Participants").First(&conv, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "could not load conversation")
	}
	return &conv, nil
}

func (r *conversationRepo) ListForUser(userID uint) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.DB.
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", userID).
		Preload("Participants").
		Preload("LastMessage").
		Preload("LastMessage.Sender").
		Order("conversations.updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, errors.Wrap(err, "could not list conversations")
	}
	return convs, nil
}

func (r *conversationRepo) IsParticipant(conversationID uuid.UUID, userID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "could not check participant")
	}
	return count > 0, nil
}

func (r *conversationRepo) ParticipantIDs(conversationID uuid.UUID) ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "could not list participant ids")
	}
	return ids, nil
}

func (r *conversationRepo) UnreadCount(conversationID uuid.UUID, userID uint) (int, error) {
	var row models.ConversationParticipant
	err := r.DB.Where("conversation_id = ? AND user_id = ?", conversationID, userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
		return 0, errors.Wrap(err, "could not read unread count")
	}
	return row.UnreadCount, nil
}

func (r *conversationRepo) UnreadCounts(conversationID uuid.UUID) (map[uint]int, error) {
	var rows []models.ConversationParticipant
	err := r.DB.Where("conversation_id = ?", conversationID).Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "could not read unread counts")
	}
	counts := make(map[uint]int, len(rows))
	for _, row := range rows {
		counts[row.UserID] = row.UnreadCount
	}
	return counts, nil
}

// IncrementUnreadExcept bumps every counter but the sender's in one UPDATE.
// Concurrent sends on the same conversation serialize at the store row, so
// no increment is ever lost.
func (r *conversationRepo) IncrementUnreadExcept(conversationID uuid.UUID, senderID uint) error {
	err := r.DB.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id <> ?", conversationID, senderID).
		UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error
	if err != nil {
		return errors.Wrap(err, "could not increment unread counts")
	}
	return nil
}

func (r *conversationRepo) ResetUnread(conversationID uuid.UUID, userID uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			UpdateColumn("unread_count", 0).Error
		if err != nil {
			return errors.Wrap(err, "could not reset unread count")
		}
		err = tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			UpdateColumn("updated_at", time.Now().UTC()).Error
		if err != nil {
			return errors.Wrap(err, "could not touch conversation")
		}
		return nil
	})
}

func (r *conversationRepo) SetLastMessage(conversationID uuid.UUID, messageID uuid.UUID, at time.Time) error {
	err := r.DB.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		UpdateColumns(map[string]interface{}{
			"last_message_id": messageID,
			"updated_at":      at,
		}).Error
	if err != nil {
		return errors.Wrap(err, "could not update last message")
	}
	return nil
}
