package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vishwadoshi-19/zense-staff/internal/domain"
	"github.com/vishwadoshi-19/zense-staff/internal/store"
)

const otpRateScope = "send_otp"

// ChallengeStore persists pending OTP challenges.
type ChallengeStore interface {
	SaveChallenge(ctx context.Context, c store.Challenge, ttl time.Duration) error
	GetChallenge(ctx context.Context, id string) (*store.Challenge, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
	DeleteChallenge(ctx context.Context, id string) error
}

// RateLimiter counts hits against a subject.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, window time.Duration) (int, int, error)
}

// OTPSender delivers a one-time code to a phone.
type OTPSender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// AccountStore is the slice of the user repository sign-in needs.
type AccountStore interface {
	GetUserByPhone(ctx context.Context, phone string) (*domain.User, error)
	CreateUserAndEnqueueEvent(ctx context.Context, user *domain.User, exchange, routingKey string, payload interface{}) (*domain.User, error)
	TouchUser(ctx context.Context, id string) error
}

// AuthConfig tunes OTP issuance and verification.
type AuthConfig struct {
	OTPTTL      time.Duration
	MaxAttempts int
	RateLimit   int
	RateWindow  time.Duration
	DevCode     string
	Exchange    string
}

// VerifyResult is returned after a successful verification.
type VerifyResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *domain.User `json:"user"`
	IsNewUser bool         `json:"isNewUser"`
}

// AuthService implements phone sign-in with one-time codes.
type AuthService struct {
	challenges ChallengeStore
	limiter    RateLimiter
	sender     OTPSender
	accounts   AccountStore
	tokens     *TokenIssuer
	notifier   SessionNotifier
	cfg        AuthConfig
	logger     *slog.Logger
	hashCost   int
}

func NewAuthService(
	challenges ChallengeStore,
	limiter RateLimiter,
	sender OTPSender,
	accounts AccountStore,
	tokens *TokenIssuer,
	notifier SessionNotifier,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthService {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &AuthService{
		challenges: challenges,
		limiter:    limiter,
		sender:     sender,
		accounts:   accounts,
		tokens:     tokens,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		hashCost:   bcrypt.DefaultCost,
	}
}

// SendOTP issues a code for phone and returns the verification id.
func (s *AuthService) SendOTP(ctx context.Context, rawPhone string) (string, error) {
	phone := domain.NormalizePhone(rawPhone)
	if phone == "" {
		return "", ErrInvalidPhone
	}

	if s.cfg.RateLimit > 0 && s.limiter != nil {
		count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, otpRateScope, phone, s.cfg.RateWindow)
		if err != nil {
			// Redis trouble should not lock people out of signing in.
			s.logger.Warn("otp rate limiter unavailable", "error", err)
		} else if count > s.cfg.RateLimit {
			return "", &RateLimitError{RetryAfterSeconds: retryAfter}
		}
	}

	code := s.cfg.DevCode
	if code == "" {
		generated, err := generateCode()
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		code = generated
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash code: %w", err)
	}

	challenge := store.Challenge{
		ID:       uuid.NewString(),
		Phone:    phone,
		CodeHash: string(hash),
	}
	if err := s.challenges.SaveChallenge(ctx, challenge, s.cfg.OTPTTL); err != nil {
		return "", fmt.Errorf("save challenge: %w", err)
	}

	if s.cfg.DevCode != "" {
		s.logger.Info("otp dev code in use; sms skipped", "verification_id", challenge.ID)
		return challenge.ID, nil
	}
	if err := s.sender.SendOTP(ctx, phone, code); err != nil {
		_ = s.challenges.DeleteChallenge(ctx, challenge.ID)
		return "", fmt.Errorf("send otp: %w", err)
	}

	s.logger.Info("otp sent", "verification_id", challenge.ID)
	return challenge.ID, nil
}

// VerifyOTP checks code against the challenge, creates the status record on
// first sign-in and returns a session token.
func (s *AuthService) VerifyOTP(ctx context.Context, verificationID, code string) (*VerifyResult, error) {
	verificationID = strings.TrimSpace(verificationID)
	code = strings.TrimSpace(code)
	if verificationID == "" || code == "" {
		return nil, &InputError{Message: "verificationId and otp are required"}
	}

	challenge, err := s.challenges.GetChallenge(ctx, verificationID)
	if err != nil {
		return nil, err
	}
	if challenge.Attempts >= s.cfg.MaxAttempts {
		_ = s.challenges.DeleteChallenge(ctx, verificationID)
		return nil, ErrTooManyAttempts
	}

	if bcrypt.CompareHashAndPassword([]byte(challenge.CodeHash), []byte(code)) != nil {
		attempts, incErr := s.challenges.IncrementAttempts(ctx, verificationID)
		if incErr != nil {
			s.logger.Warn("failed to record otp attempt", "verification_id", verificationID, "error", incErr)
		}
		if attempts >= s.cfg.MaxAttempts {
			_ = s.challenges.DeleteChallenge(ctx, verificationID)
			return nil, ErrTooManyAttempts
		}
		return nil, ErrInvalidOTP
	}

	if err := s.challenges.DeleteChallenge(ctx, verificationID); err != nil {
		s.logger.Warn("failed to delete used challenge", "verification_id", verificationID, "error", err)
	}

	user, err := s.findOrCreateUser(ctx, challenge.Phone)
	if err != nil {
		return nil, err
	}

	token, claims, err := s.tokens.Issue(user.ID, user.Phone)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Notify(ctx, user.ID)
	}

	return &VerifyResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      user,
		IsNewUser: user.Status == domain.StatusUnregistered,
	}, nil
}

func (s *AuthService) findOrCreateUser(ctx context.Context, phone string) (*domain.User, error) {
	existing, err := s.accounts.GetUserByPhone(ctx, phone)
	if err == nil {
		if touchErr := s.accounts.TouchUser(ctx, existing.ID); touchErr != nil {
			s.logger.Warn("failed to touch user", "user_id", existing.ID, "error", touchErr)
		}
		return existing, nil
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:        uuid.NewString(),
		Phone:     phone,
		Role:      domain.RoleStaff,
		Status:    domain.StatusUnregistered,
		LastStep:  domain.StepDetails,
		Profile:   domain.Profile{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	event := domain.UserCreatedEvent{UserID: user.ID, Phone: phone, CreatedAt: now}

	created, err := s.accounts.CreateUserAndEnqueueEvent(ctx, user, s.cfg.Exchange, domain.RoutingKeyUserCreated, event)
	if errors.Is(err, store.ErrUserExists) {
		// Lost a race with a concurrent verification for the same phone.
		return s.accounts.GetUserByPhone(ctx, phone)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user created", "user_id", created.ID)
	return created, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
