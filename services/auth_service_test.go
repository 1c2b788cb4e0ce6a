package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"market-live/auth"
	"market-live/errors"
	"market-live/mocks"
	"market-live/repositories"
)

func TestAuthService_Register(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	svc := NewAuthService(mockRepo, 24*time.Hour)

	t.Run("should register successfully when input is valid", func(t *testing.T) {
		req := require.New(t)
		email := "test@example.com"
		password := "ComplexPass123!" // Must satisfy the complexity rules
		expectedUserID := "user-uuid"

		// Expect CreateUser to be called with a hashed password (not the plain one)
		mockRepo.EXPECT().
			CreateUser(email, gomock.Any()).
			DoAndReturn(func(_, hashed string) (string, error) {
				require.NotEqual(t, password, hashed)
				return expectedUserID, nil
			}).
			Times(1)

		token, userID, err := svc.Register(email, password)

		req.NoError(err)
		req.NotEmpty(token)
		req.Equal(expectedUserID, userID)
	})

	t.Run("should fail when password complexity is not met", func(t *testing.T) {
		req := require.New(t)
		email := "test@example.com"
		password := "simple" // Fails validation

		// Repository should NEVER be called
		mockRepo.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Times(0)

		token, _, err := svc.Register(email, password)

		req.Error(err)
		req.ErrorIs(err, errors.ErrInvalidPassword)
		req.Empty(token)
	})

	t.Run("should fail when user already exists in repository", func(t *testing.T) {
		req := require.New(t)
		email := "duplicate@example.com"
		password := "ComplexPass123!"

		mockRepo.EXPECT().
			CreateUser(email, gomock.Any()).
			Return("", errors.ErrUserAlreadyExists).
			Times(1)

		_, _, err := svc.Register(email, password)

		req.ErrorIs(err, errors.ErrUserAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockIUserRepository(ctrl)
	svc := NewAuthService(mockRepo, 24*time.Hour)

	t.Run("should login successfully with correct credentials", func(t *testing.T) {
		req := require.New(t)
		email := "user@example.com"
		password := "ComplexPass123!"

		hashed, err := auth.HashPassword(password)
		req.NoError(err)

		mockRepo.EXPECT().
			GetUserByEmail(email).
			Return(repositories.User{ID: "user-uuid", Email: email, PasswordHash: hashed, Roles: []string{"user"}}, nil).
			Times(1)

		token, userID, err := svc.Login(email, password)

		req.NoError(err)
		req.NotEmpty(token)
		req.Equal("user-uuid", userID)

		// The token must validate and carry the user identity
		claims, err := auth.ValidateToken(string(token))
		req.NoError(err)
		req.Equal("user-uuid", claims.UserID)
	})

	t.Run("should fail with wrong password", func(t *testing.T) {
		req := require.New(t)
		email := "user@example.com"

		hashed, err := auth.HashPassword("ComplexPass123!")
		req.NoError(err)

		mockRepo.EXPECT().
			GetUserByEmail(email).
			Return(repositories.User{ID: "user-uuid", PasswordHash: hashed}, nil).
			Times(1)

		_, _, err = svc.Login(email, "WrongPass456?")
		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should return a generic error for unknown users", func(t *testing.T) {
		req := require.New(t)

		mockRepo.EXPECT().
			GetUserByEmail("ghost@example.com").
			Return(repositories.User{}, errors.ErrNotFound).
			Times(1)

		_, _, err := svc.Login("ghost@example.com", "ComplexPass123!")

		// No user enumeration: same error as a bad password
		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})
}
