package app

import (
	"context"
	"errors"
	"time"

	"bid-settlement-service/internal/domain/shared"
	"bid-settlement-service/internal/ports/inbound"
	"bid-settlement-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// UserService implements the account use cases
type UserService struct {
	userRepo       outbound.UserRepository
	defaultBalance decimal.Decimal
	clock          func() time.Time
	logger         zerolog.Logger
}

type UserServiceParams struct {
	UserRepo       outbound.UserRepository
	DefaultBalance decimal.Decimal
	Clock          func() time.Time
	Logger         zerolog.Logger
}

func NewUserService(params UserServiceParams) *UserService {
	service := &UserService{
		userRepo:       params.UserRepo,
		defaultBalance: params.DefaultBalance,
		clock:          params.Clock,
		logger:         params.Logger.With().Str("component", "user_service").Logger(),
	}
	if service.clock == nil {
		service.clock = time.Now
	}
	return service
}

// CreateUser registers a user with the requested or default balance
func (s *UserService) CreateUser(ctx context.Context, req inbound.CreateUserRequest) (*shared.User, error) {
	balance := s.defaultBalance
	if req.Balance != nil {
		balance = *req.Balance
	}

	user, err := shared.NewUser(req.Username, balance, s.clock())
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, shared.ErrUsernameTaken) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("username", user.Username).Msg("Failed to create user")
		return nil, shared.Unavailable(err)
	}

	s.logger.Info().
		Str("user_id", user.ID.String()).
		Str("username", user.Username).
		Str("balance", user.Balance.String()).
		Msg("User created")
	return user, nil
}

// GetUser retrieves a user by ID
func (s *UserService) GetUser(ctx context.Context, userID uuid.UUID) (*shared.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) {
			return nil, err
		}
		return nil, shared.Unavailable(err)
	}
	return user, nil
}
