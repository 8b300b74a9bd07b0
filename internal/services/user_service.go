package services

import (
	"context"
	"strings"
	"time"

	"github.com/mcnijman/go-emailaddress"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/synergysphere/server/internal/apperrors"
	"github.com/synergysphere/server/internal/models"
	"github.com/synergysphere/server/internal/validation"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// UserService encapsulates the business logic for user accounts.
type UserService struct {
	repo UserStore
	now  func() time.Time
}

func NewUserService(repo UserStore) *UserService {
	return &UserService{
		repo: repo,
		now:  time.Now,
	}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := emailaddress.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", apperrors.NewValidationError("invalid registration").WithField("email", "must be a valid email address")
	}
	return strings.ToLower(addr.String()), nil
}

// Register creates a user with a bcrypt-hashed password and default notification preferences.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	logrus.Info("Registering new user")

	input.Username = strings.TrimSpace(input.Username)
	if err := validation.Struct("invalid registration", input); err != nil {
		logrus.WithError(err).Warn("Invalid registration input")
		return nil, err
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		logrus.WithError(err).Error("Password hashing failed")
		return nil, err
	}

	user := &models.User{
		Username:          input.Username,
		Email:             email,
		HashedPassword:    string(hashedPwd),
		Role:              models.RoleUser,
		NotificationPrefs: models.NotificationPrefs{Email: true, Push: true},
		LastActiveAt:      s.now(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		logrus.WithError(err).Warn("User registration failed")
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"userID": user.ID.Hex(),
		"role":   user.Role,
	}).Info("User registered successfully")
	return user, nil
}

// Authenticate verifies the email and password. Unknown email and wrong password fail the same way.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, apperrors.NewUnauthorizedError("invalid credentials")
	}

	user, err := s.repo.FindByEmail(ctx, normalized)
	if apperrors.IsNotFound(err) {
		logrus.WithField("email", normalized).Warn("User not found")
		return nil, apperrors.NewUnauthorizedError("invalid credentials")
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		logrus.WithField("email", normalized).Warn("Invalid credentials")
		return nil, apperrors.NewUnauthorizedError("invalid credentials")
	}

	logrus.WithField("userID", user.ID.Hex()).Info("User authenticated successfully")
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.repo.FindByID(ctx, id)
}

// ListUsers returns the public profile of every user.
func (s *UserService) ListUsers(ctx context.Context) ([]models.PublicUser, error) {
	users, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.PublicUser, 0, len(users))
	for i := range users {
		out = append(out, users[i].Public())
	}
	return out, nil
}

func (s *UserService) UpdateLastActive(ctx context.Context, id primitive.ObjectID) error {
	return s.repo.UpdateLastActive(ctx, id, s.now())
}

func (s *UserService) UpdatePreferences(ctx context.Context, id primitive.ObjectID, prefs models.NotificationPrefs) (*models.User, error) {
	if err := s.repo.UpdatePreferences(ctx, id, prefs); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}
