package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codebyjuno/slotcal/internal/apperror"
	"github.com/codebyjuno/slotcal/internal/captcha"
	"github.com/codebyjuno/slotcal/internal/ephemeral"
	"github.com/codebyjuno/slotcal/internal/session"
)

// requiredAnswers is the number of security question answers each workflow
// stage expects. Users always carry exactly this many questions.
const requiredAnswers = 3

// AuthService defines the business logic contract for the two-phase
// registration and login workflows. Handlers call these methods -- they
// never touch the repositories or ephemeral stores directly.
type AuthService interface {
	RegisterStage1(ctx context.Context, req RegisterStage1Request) (registrationID string, err error)
	RegisterStage2(ctx context.Context, req RegisterStage2Request) error
	LoginStep1(ctx context.Context, req LoginStep1Request) (loginID string, questions []string, err error)
	LoginStep2(ctx context.Context, req LoginStep2Request) (token string, user *PublicUser, err error)
	Logout(ctx context.Context, token string) error
}

// authService implements AuthService over a user repository, the captcha
// service, the session registry, and two pending-record stores.
type authService struct {
	repo          UserRepository
	captcha       *captcha.Service
	sessions      *session.Registry
	pendingRegs   ephemeral.Store[PendingRegistration]
	pendingLogins ephemeral.Store[PendingLogin]

	registrationTTL time.Duration
	loginTTL        time.Duration
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(
	repo UserRepository,
	captchaSvc *captcha.Service,
	sessions *session.Registry,
	pendingRegs ephemeral.Store[PendingRegistration],
	pendingLogins ephemeral.Store[PendingLogin],
	registrationTTL, loginTTL time.Duration,
) AuthService {
	return &authService{
		repo:            repo,
		captcha:         captchaSvc,
		sessions:        sessions,
		pendingRegs:     pendingRegs,
		pendingLogins:   pendingLogins,
		registrationTTL: registrationTTL,
		loginTTL:        loginTTL,
	}
}

// RegisterStage1 validates the registration fields, hashes the password,
// and parks a pending registration. Nothing durable is written here -- the
// user record is only created once stage 2 supplies the security answers.
func (s *authService) RegisterStage1(ctx context.Context, req RegisterStage1Request) (string, error) {
	if req.Name == "" || req.Email == "" || req.Password == "" || req.ConfirmPassword == "" {
		return "", apperror.NewValidation("all fields required")
	}
	if req.Password != req.ConfirmPassword {
		return "", apperror.NewValidation("passwords do not match")
	}

	email := normalizeEmail(req.Email)

	// Check if email is already taken before doing expensive hashing.
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return "", apperror.NewDependency(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return "", apperror.NewConflict("email already registered")
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return "", apperror.NewDependency(fmt.Errorf("hashing password: %w", err))
	}

	registrationID := uuid.NewString()
	pending := PendingRegistration{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.pendingRegs.Put(ctx, registrationID, pending, s.registrationTTL); err != nil {
		return "", apperror.NewDependency(fmt.Errorf("storing pending registration: %w", err))
	}

	slog.Info("registration stage 1 complete",
		slog.String("registration_id", registrationID),
		slog.String("email", email),
	)

	return registrationID, nil
}

// RegisterStage2 consumes the pending registration exactly once and creates
// the durable user with normalized security answers. A retried call with
// the same id observes "expired" -- it can never create a second user.
func (s *authService) RegisterStage2(ctx context.Context, req RegisterStage2Request) error {
	if req.RegistrationID == "" || len(req.Answers) != requiredAnswers {
		return apperror.NewValidation("invalid payload")
	}

	pending, ok, err := s.pendingRegs.Take(ctx, req.RegistrationID)
	if err != nil {
		return apperror.NewDependency(fmt.Errorf("consuming pending registration: %w", err))
	}
	if !ok {
		// "Never existed" and "expired" read identically on purpose.
		return apperror.NewUnauthorized("registration not found or expired")
	}

	questions := make([]SecurityQuestion, len(req.Answers))
	for i, a := range req.Answers {
		questions[i] = SecurityQuestion{
			Question: a.Question,
			Answer:   normalizeAnswer(a.Answer),
		}
	}

	user := &User{
		ID:           uuid.NewString(),
		Name:         pending.Name,
		Email:        pending.Email,
		PasswordHash: pending.PasswordHash,
		Questions:    questions,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return apperror.NewDependency(fmt.Errorf("creating user: %w", err))
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return nil
}

// LoginStep1 verifies the captcha, then the credentials, and parks a pending
// login. The captcha is consumed whatever the outcome, so one challenge is
// never worth more than one attempt. Credential failures are reported with
// one undifferentiated message.
func (s *authService) LoginStep1(ctx context.Context, req LoginStep1Request) (string, []string, error) {
	if req.Username == "" || req.Password == "" || req.CaptchaID == "" || req.CaptchaAnswer == "" {
		return "", nil, apperror.NewValidation("missing fields")
	}

	if err := s.captcha.Verify(ctx, req.CaptchaID, req.CaptchaAnswer); err != nil {
		return "", nil, err
	}

	user, err := s.repo.FindByEmail(ctx, normalizeEmail(req.Username))
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code == 404 {
			// Don't reveal whether the email exists.
			return "", nil, apperror.NewUnauthorized("invalid username or password")
		}
		return "", nil, apperror.NewDependency(fmt.Errorf("finding user: %w", err))
	}

	if !verifyPassword(req.Password, user.PasswordHash) {
		return "", nil, apperror.NewUnauthorized("invalid username or password")
	}

	loginID := uuid.NewString()
	if err := s.pendingLogins.Put(ctx, loginID, PendingLogin{UserID: user.ID}, s.loginTTL); err != nil {
		return "", nil, apperror.NewDependency(fmt.Errorf("storing pending login: %w", err))
	}

	questions := make([]string, len(user.Questions))
	for i, q := range user.Questions {
		questions[i] = q.Question
	}

	slog.Info("login step 1 complete",
		slog.String("login_id", loginID),
		slog.String("user_id", user.ID),
	)

	return loginID, questions, nil
}

// LoginStep2 checks the security answers positionally and all-or-nothing,
// and on success consumes the pending login and mints a session token.
// Wrong answers leave the pending login intact: unlike the captcha, the
// login id stays retryable until its TTL elapses.
func (s *authService) LoginStep2(ctx context.Context, req LoginStep2Request) (string, *PublicUser, error) {
	if req.LoginID == "" || len(req.Answers) != requiredAnswers {
		return "", nil, apperror.NewValidation("invalid payload")
	}

	pending, ok, err := s.pendingLogins.Get(ctx, req.LoginID)
	if err != nil {
		return "", nil, apperror.NewDependency(fmt.Errorf("reading pending login: %w", err))
	}
	if !ok {
		return "", nil, apperror.NewUnauthorized("login session expired or not found")
	}

	user, err := s.repo.FindByID(ctx, pending.UserID)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code == 404 {
			return "", nil, apperror.NewNotFound("user not found")
		}
		return "", nil, apperror.NewDependency(fmt.Errorf("finding user: %w", err))
	}

	// Positional, all-or-nothing: answers[i] must match questions[i].
	if len(user.Questions) != requiredAnswers || !answersMatch(user.Questions, req.Answers) {
		return "", nil, apperror.NewUnauthorized("security answers do not match")
	}

	// Consume only on success. Take arbitrates concurrent correct
	// submissions for the same id: exactly one caller wins the record.
	if _, taken, err := s.pendingLogins.Take(ctx, req.LoginID); err != nil {
		return "", nil, apperror.NewDependency(fmt.Errorf("consuming pending login: %w", err))
	} else if !taken {
		return "", nil, apperror.NewUnauthorized("login session expired or not found")
	}

	token, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return "", nil, err
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return token, user.Public(), nil
}

// Logout revokes the session token. Unknown tokens are ignored so logout
// is always safe to call.
func (s *authService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, token)
}

// answersMatch compares submitted answers against stored normalized ones,
// position by position.
func answersMatch(questions []SecurityQuestion, answers []string) bool {
	if len(questions) != len(answers) {
		return false
	}
	for i, q := range questions {
		if q.Answer != normalizeAnswer(answers[i]) {
			return false
		}
	}
	return true
}

// normalizeEmail lowercases and trims an email for storage and comparison.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizeAnswer trims and lowercases a security answer.
func normalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}
