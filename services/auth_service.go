package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kendall-kelly/portfolio-chat-api/models"
	"golang.org/x/crypto/bcrypt"
	jose "gopkg.in/go-jose/go-jose.v2"
	"gopkg.in/go-jose/go-jose.v2/jwt"
	"gorm.io/gorm"
)

// AdminScope is granted to every token issued by Login
const AdminScope = "chat:admin"

// ErrLoginDisabled is returned when no signing secret is configured
var ErrLoginDisabled = errors.New("local login is disabled")

// TokenConfig holds the signing parameters for admin access tokens
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	Expiry   time.Duration
}

// LoginResult is returned to the admin dashboard after a successful login
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
}

// AuthService manages the admin account and issues access tokens
type AuthService interface {
	EnsureAdmin(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (*LoginResult, error)
}

// GormAuthService stores admin accounts in the users table
type GormAuthService struct {
	db     *gorm.DB
	tokens TokenConfig
	now    func() time.Time
}

var authServiceInstance AuthService

// NewGormAuthService creates an auth service backed by db
func NewGormAuthService(db *gorm.DB, tokens TokenConfig) *GormAuthService {
	return &GormAuthService{db: db, tokens: tokens, now: time.Now}
}

// InitAuthService initializes the process-wide auth service
func InitAuthService(db *gorm.DB, tokens TokenConfig) AuthService {
	authServiceInstance = NewGormAuthService(db, tokens)
	return authServiceInstance
}

// GetAuthService returns the initialized auth service instance
func GetAuthService() AuthService {
	return authServiceInstance
}

// SetAuthService sets the auth service instance (primarily for testing)
func SetAuthService(service AuthService) {
	authServiceInstance = service
}

// EnsureAdmin creates the admin account if it does not exist yet. An existing
// account keeps its password.
func (s *GormAuthService) EnsureAdmin(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		slog.WarnContext(ctx, "admin credentials not configured, skipping admin seed")
		return nil
	}

	var existing models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up admin user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	user := models.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	slog.InfoContext(ctx, "admin user created", "username", username)
	return nil
}

// Login checks the credentials and returns a signed HS256 token
func (s *GormAuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if s.tokens.Secret == "" {
		return nil, ErrLoginDisabled
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.tokens.Expiry)
	token, err := IssueToken(s.tokens, user.Username, user.Role, issuedAt, expiresAt)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Username:  user.Username,
		Role:      user.Role,
	}, nil
}

// IssueToken signs an access token for subject with the given role
func IssueToken(tokens TokenConfig, subject, role string, issuedAt, expiresAt time.Time) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte(tokens.Secret)},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create token signer: %w", err)
	}

	registered := jwt.Claims{
		Issuer:   tokens.Issuer,
		Subject:  subject,
		Audience: jwt.Audience{tokens.Audience},
		IssuedAt: jwt.NewNumericDate(issuedAt),
		Expiry:   jwt.NewNumericDate(expiresAt),
	}
	custom := map[string]interface{}{
		"role":  role,
		"scope": AdminScope,
	}

	token, err := jwt.Signed(signer).Claims(registered).Claims(custom).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}
