package services

import (
	"fmt"
	"time"

	"market-live/auth"
	"market-live/errors"
	"market-live/repositories"
)

type IAuthService interface {
	Login(email, password string) (Token, string, error)
	Register(email, password string) (Token, string, error)
}

type AuthService struct {
	userRepository repositories.IUserRepository
	tokenDuration  time.Duration
}

type Token string

func NewAuthService(repo repositories.IUserRepository, tokenDuration time.Duration) IAuthService {
	return &AuthService{userRepository: repo, tokenDuration: tokenDuration}
}

func (s *AuthService) Register(email, password string) (Token, string, error) {
	valReq := auth.RegisterRequest{
		Email:    email,
		Password: password,
	}

	// 1. Validate business rules (email format, password complexity)
	// We check this before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", "", fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	// 2. Hash the password using Argon2id
	// Done in the service layer to keep the repository unaware of plain passwords.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", "", fmt.Errorf("hashing failed: %w", err)
	}

	// 3. Persist the user with the generated hash
	userID, err := s.userRepository.CreateUser(email, hashedPassword)
	if err != nil {
		return "", "", err // Propagates ErrUserAlreadyExists if email is taken
	}

	// 4. Generate the initial session token
	token, err := auth.GenerateToken(userID, []string{"user"}, s.tokenDuration)
	if err != nil {
		return "", "", errors.ErrTokenGeneration
	}

	return Token(token), userID, nil
}

func (s *AuthService) Login(email, password string) (Token, string, error) {
	// 1. Retrieve user by email from storage
	user, err := s.userRepository.GetUserByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return "", "", errors.ErrInvalidCredentials
	}

	// 2. Compare the provided password with the stored hash
	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", "", errors.ErrInvalidCredentials
	}

	// 3. Issue the JWT token
	token, err := auth.GenerateToken(user.ID, user.Roles, s.tokenDuration)
	if err != nil {
		return "", "", errors.ErrTokenGeneration
	}

	return Token(token), user.ID, nil
}
