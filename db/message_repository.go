package db

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tutorlinkhq/tutorlink/models"
)

type MessageRepository interface {
	SaveMessage(msg *models.Message) error
	ListByConversation(conversationID uuid.UUID) ([]models.Message, error)
	MarkAllSeen(conversationID uuid.UUID, userID uint) error
}

type messageRepo struct {
	DB *gorm.DB
}

func NewMessageRepo(db *GormDB) MessageRepository {
	return &messageRepo{db.DB}
}

// SaveMessage persists the message together with the sender's own seen row.
func (r *messageRepo) SaveMessage(msg *models.Message) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Sender", "Seen").Create(msg).Error; err != nil {
			return err
		}
		seen := models.MessageSeen{MessageID: msg.ID, UserID: msg.SenderID}
		return tx.Create(&seen).Error
	})
	if err != nil {
		return errors.Wrap(err, "could not save message")
	}
	return nil
}

// ListByConversation returns messages in their authoritative total order:
// persistence timestamp ascending, message id as the tie-break.
func (r *messageRepo) ListByConversation(conversationID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	err := r.DB.
		Where("conversation_id = ?", conversationID).
		Preload("Sender").
		Preload("Seen").
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, errors.Wrap(err, "could not list messages")
	}
	return msgs, nil
}

// MarkAllSeen adds the user to the seen set of every message in the
// conversation they have not observed yet. The insert ignores conflicts, so
// repeated calls and racing readers converge on the same set-union result
// without touching other participants' rows.
func (r *messageRepo) MarkAllSeen(conversationID uuid.UUID, userID uint) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		seenSub := tx.Model(&models.MessageSeen{}).
			Select("message_id").
			Where("user_id = ?", userID)

		var unseen []uuid.UUID
		err := tx.Model(&models.Message{}).
			Where("conversation_id = ?", conversationID).
			Where("id NOT IN (?)", seenSub).
			Pluck("id", &unseen).Error
		if err != nil {
			return err
		}
		if len(unseen) == 0 {
			return nil
		}

		rows := make([]models.MessageSeen, 0, len(unseen))
		for _, id := range unseen {
			rows = append(rows, models.MessageSeen{MessageID: id, UserID: userID})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
	if err != nil {
		return errors.Wrap(err, "could not mark messages seen")
	}
	return nil
}
