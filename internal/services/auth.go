package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ai-shifu/shifu-backend/internal/apierr"
	"github.com/ai-shifu/shifu-backend/internal/logger"
	"github.com/ai-shifu/shifu-backend/internal/repos"
	"github.com/ai-shifu/shifu-backend/internal/types"
)

// AuthService issues and verifies access tokens for learners.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*types.User, string, error)
	Login(ctx context.Context, email, password string) (*types.User, string, error)
	VerifyToken(ctx context.Context, tokenString string) (*types.User, error)
	GetAccessTTL() time.Duration
}

type authService struct {
	log          *logger.Logger
	userRepo     repos.UserRepo
	jwtSecretKey string
	accessTTL    time.Duration
}

type accessClaims struct {
	jwt.RegisteredClaims
}

func NewAuthService(log *logger.Logger, userRepo repos.UserRepo, jwtSecretKey string, accessTTL time.Duration) AuthService {
	serviceLog := log.With("service", "AuthService")
	return &authService{
		log:          serviceLog,
		userRepo:     userRepo,
		jwtSecretKey: jwtSecretKey,
		accessTTL:    accessTTL,
	}
}

func (as *authService) Register(ctx context.Context, email, password string) (*types.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", apierr.BadRequest("INVALID_EMAIL", fmt.Errorf("invalid email address"))
	}
	if len(password) < 8 {
		return nil, "", apierr.BadRequest("WEAK_PASSWORD", fmt.Errorf("password must be at least 8 characters"))
	}
	exists, exErr := as.userRepo.EmailExists(ctx, nil, email)
	if exErr != nil {
		return nil, "", fmt.Errorf("failed to check existing email: %w", exErr)
	}
	if exists {
		return nil, "", apierr.New(http.StatusConflict, "EMAIL_TAKEN", fmt.Errorf("email already registered"))
	}
	hash, hErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if hErr != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", hErr)
	}
	user := &types.User{
		BID:          uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
	}
	if cErr := as.userRepo.Create(ctx, nil, user); cErr != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", cErr)
	}
	token, tErr := as.generateAccessToken(user)
	if tErr != nil {
		return nil, "", tErr
	}
	as.log.Info("Registered user", "user_bid", user.BID)
	return user, token, nil
}

func (as *authService) Login(ctx context.Context, email, password string) (*types.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, uErr := as.userRepo.GetByEmail(ctx, nil, email)
	if uErr != nil {
		return nil, "", apierr.New(http.StatusUnauthorized, "INVALID_CREDENTIALS", fmt.Errorf("invalid email or password"))
	}
	if cmpErr := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); cmpErr != nil {
		return nil, "", apierr.New(http.StatusUnauthorized, "INVALID_CREDENTIALS", fmt.Errorf("invalid email or password"))
	}
	token, tErr := as.generateAccessToken(user)
	if tErr != nil {
		return nil, "", tErr
	}
	return user, token, nil
}

func (as *authService) VerifyToken(ctx context.Context, tokenString string) (*types.User, error) {
	if tokenString == "" {
		return nil, apierr.New(http.StatusUnauthorized, "MISSING_TOKEN", fmt.Errorf("missing access token"))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(as.jwtSecretKey), nil
	})
	if err != nil {
		return nil, apierr.New(http.StatusUnauthorized, "INVALID_TOKEN", fmt.Errorf("failed to parse token: %w", err))
	}
	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid {
		return nil, apierr.New(http.StatusUnauthorized, "INVALID_TOKEN", fmt.Errorf("invalid or expired token"))
	}
	user, uErr := as.userRepo.GetByBID(ctx, nil, claims.Subject)
	if uErr != nil {
		return nil, apierr.New(http.StatusUnauthorized, "INVALID_TOKEN", fmt.Errorf("token subject not found"))
	}
	return user, nil
}

func (as *authService) generateAccessToken(user *types.User) (string, error) {
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.BID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(as.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(as.jwtSecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

func (as *authService) GetAccessTTL() time.Duration {
	return as.accessTTL
}
