package models

import (
	"context"
	"errors"
	"time"

	"github.com/tiendaluna/pos_backend/config"
	"github.com/tiendaluna/pos_backend/utils"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"username"`
	Password  string    `gorm:"type:varchar(255);not null" json:"-"`
	FullName  string    `gorm:"type:varchar(255)" json:"full_name"`
	IsAdmin   *bool     `gorm:"not null;default:false" json:"is_admin"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name"`
	IsAdmin  bool   `json:"is_admin"`
}

var ErrInvalidCredentials = errors.New("invalid username or password")

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if err := utils.ValidateUnique[User](ctx, "username", input.Username, 0); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		Username: input.Username,
		Password: string(hashed),
		FullName: input.FullName,
		IsActive: utils.NewTrue(),
	}
	if input.IsAdmin {
		user.IsAdmin = utils.NewTrue()
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, translateDBError(err)
	}
	return &user, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	return utils.FetchModel[User](ctx, id)
}

// Login returns a signed token for an active user with matching credentials.
// The same error covers unknown usernames and wrong passwords.
func Login(ctx context.Context, username string, password string) (string, error) {

	var user User
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("username = ? AND is_active = ?", username, true).
		First(&user).Error
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if err := utils.ComparePassword(user.Password, password); err != nil {
		return "", ErrInvalidCredentials
	}

	return utils.JwtGenerate(user.ID, user.Username, utils.DereferencePtr(user.IsAdmin, false))
}
