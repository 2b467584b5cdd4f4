package users

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"animeshelf/internal/database"
	"animeshelf/internal/validation"
	"animeshelf/models"
	"animeshelf/services/profiles"
	"animeshelf/utils"
)

var (
	ErrEmailInUse              = errors.New("email already in use")
	ErrInvalidCredential       = errors.New("invalid email or password")
	ErrEmailNotVerified        = errors.New("email not verified")
	ErrUnauthenticated         = errors.New("unauthenticated")
	ErrInvalidVerificationCode = errors.New("invalid verification code")
	ErrAccountNotFound         = errors.New("account not found")
)

const defaultSessionTTL = 30 * 24 * time.Hour

// Session is an authenticated sign-in. It is carried explicitly through
// request context rather than held globally.
type Session struct {
	UserID    string    `json:"userId"`
	TokenID   string    `json:"-"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RegisterInput is the payload of a registration request.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Username string `json:"username" validate:"required,min=1,max=32"`
}

// Mailer delivers verification codes.
type Mailer interface {
	SendVerification(ctx context.Context, email, code string) error
}

// LogMailer writes verification codes to the log instead of sending mail.
type LogMailer struct{}

func (LogMailer) SendVerification(_ context.Context, email, code string) error {
	log.Printf("[users] verification code for %s: %s", email, code)
	return nil
}

// Options configures a Service.
type Options struct {
	Secret               []byte
	SessionTTL           time.Duration
	RequireVerifiedEmail bool
	Mailer               Mailer
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// Service manages accounts and sessions.
type Service struct {
	accounts        *database.AccountRepository
	sessions        *database.SessionRepository
	mailer          Mailer
	secret          []byte
	ttl             time.Duration
	requireVerified bool
	cost            int
	now             func() time.Time
}

// NewService constructs a Service over the database repositories.
func NewService(db *database.DB, opts Options) (*Service, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if len(opts.Secret) == 0 {
		return nil, errors.New("session secret is required")
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.Mailer == nil {
		opts.Mailer = LogMailer{}
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		accounts:        db.Accounts,
		sessions:        db.Sessions,
		mailer:          opts.Mailer,
		secret:          opts.Secret,
		ttl:             opts.SessionTTL,
		requireVerified: opts.RequireVerifiedEmail,
		cost:            opts.BcryptCost,
		now:             time.Now,
	}, nil
}

// Register creates the account together with an empty profile document and
// sends the verification code.
func (s *Service) Register(ctx context.Context, in RegisterInput) (models.Account, error) {
	in.Email = normalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if err := validation.Struct(in); err != nil {
		return models.Account{}, err
	}

	if _, err := s.accounts.GetByEmail(ctx, in.Email); err == nil {
		return models.Account{}, ErrEmailInUse
	} else if !errors.Is(err, database.ErrNotFound) {
		return models.Account{}, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return models.Account{}, fmt.Errorf("hash password: %w", err)
	}
	code, err := utils.GeneratePIN()
	if err != nil {
		return models.Account{}, err
	}

	rec := database.AccountRecord{
		ID:               uuid.NewString(),
		Email:            in.Email,
		Username:         in.Username,
		PasswordHash:     string(hash),
		VerificationCode: code,
		CreatedAt:        s.now().UTC(),
	}
	doc, err := profiles.NewDocument(rec.ID, rec.Username, rec.Email)
	if err != nil {
		return models.Account{}, err
	}
	if err := s.accounts.CreateWithProfile(ctx, rec, doc); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return models.Account{}, ErrEmailInUse
		}
		return models.Account{}, fmt.Errorf("create account: %w", err)
	}

	if err := s.mailer.SendVerification(ctx, rec.Email, code); err != nil {
		// The account exists; the user can request verification again.
		log.Printf("[users] send verification to %s failed: %v", rec.Email, err)
	}
	return toAccount(&rec), nil
}

// VerifyEmail marks the account verified when code matches.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) error {
	rec, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, database.ErrNotFound) {
		return ErrInvalidVerificationCode
	}
	if err != nil {
		return fmt.Errorf("lookup email: %w", err)
	}
	if rec.EmailVerified {
		return nil
	}
	code = strings.TrimSpace(code)
	if !utils.ValidatePIN(code) || subtle.ConstantTimeCompare([]byte(code), []byte(rec.VerificationCode)) != 1 {
		return ErrInvalidVerificationCode
	}
	return s.accounts.MarkVerified(ctx, rec.ID)
}

// SignIn checks the credentials and issues a session token.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	rec, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, database.ErrNotFound) {
		return Session{}, ErrInvalidCredential
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup email: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredential
	}
	if s.requireVerified && !rec.EmailVerified {
		return Session{}, ErrEmailNotVerified
	}

	now := s.now()
	sess := Session{
		UserID:    rec.ID,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(s.ttl).UTC().Truncate(time.Second),
	}
	claims := jwt.RegisteredClaims{
		Subject:   sess.UserID,
		ID:        sess.TokenID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	if err := s.sessions.Create(ctx, sess.TokenID, sess.UserID, sess.ExpiresAt); err != nil {
		return Session{}, err
	}
	sess.Token = token
	return sess, nil
}

// SignOut revokes the session; its token stops authenticating.
func (s *Service) SignOut(ctx context.Context, sess Session) error {
	if sess.TokenID == "" {
		return ErrUnauthenticated
	}
	return s.sessions.Revoke(ctx, sess.TokenID)
}

// Authenticate resolves a bearer token to its session.
func (s *Service) Authenticate(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrUnauthenticated
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Session{}, ErrUnauthenticated
	}

	userID, err := s.sessions.Active(ctx, claims.ID)
	if errors.Is(err, database.ErrNotFound) {
		return Session{}, ErrUnauthenticated
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}
	if userID != claims.Subject {
		return Session{}, ErrUnauthenticated
	}
	return Session{
		UserID:    userID,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Account returns the account with id.
func (s *Service) Account(ctx context.Context, id string) (models.Account, error) {
	rec, err := s.accounts.GetByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return models.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("get account: %w", err)
	}
	return toAccount(rec), nil
}

// PurgeExpiredSessions drops expired sessions.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.sessions.PurgeExpired(ctx)
}

func toAccount(rec *database.AccountRecord) models.Account {
	return models.Account{
		ID:            rec.ID,
		Email:         rec.Email,
		Username:      rec.Username,
		EmailVerified: rec.EmailVerified,
		CreatedAt:     rec.CreatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
