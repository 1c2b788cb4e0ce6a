//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	apperrors "market-live/errors"
)

type IUserRepository interface {
	CreateUser(email, hashedPassword string) (string, error)
	GetUserByEmail(email string) (User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// User is the repository-level representation of an account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

type userRecord struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	PasswordHash string   `json:"password_hash"`
	Roles        []string `json:"roles"`
	CreatedAt    int64    `json:"created_at"`
}

// CreateUser persists the account and returns the newly generated user ID.
func (u UserRepository) CreateUser(email, hashedPassword string) (string, error) {
	newID := uuid.New().String()
	record := userRecord{
		ID:           newID,
		Email:        email,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    time.Now().Unix(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		key := userKey(email)
		if _, err = txn.Get(key); err == nil {
			return apperrors.ErrUserAlreadyExists
		}
		return txn.Set(key, data)
	})

	return newID, err
}

func (u UserRepository) GetUserByEmail(email string) (User, error) {
	var record userRecord

	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(email))
		if err != nil {
			return err // Handled as ErrInvalidCredentials by the auth service
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		return User{}, err
	}

	return User{
		ID:           record.ID,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		Roles:        record.Roles,
		CreatedAt:    time.Unix(record.CreatedAt, 0).UTC(),
	}, nil
}
