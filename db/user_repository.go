package db

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/tutorlinkhq/tutorlink/models"
)

// UserRepository is the read side of the user directory. Account writes
// belong to the identity subsystem.
type UserRepository interface {
	FindUserByID(id uint) (*models.User, error)
	FindUsersByIDs(ids []uint) ([]models.User, error)
}

type userRepo struct {
	DB *gorm.DB
}

func NewUserRepo(db *GormDB) UserRepository {
	return &userRepo{db.DB}
}

func (u *userRepo) FindUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := u.DB.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "could not load user")
	}
	return &user, nil
}

func (u *userRepo) FindUsersByIDs(ids []uint) ([]models.User, error) {
	var users []models.User
	if err := u.DB.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "could not load users")
	}
	return users, nil
}
