package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"urbansprout/internal/model"
	"urbansprout/internal/repository"
	"urbansprout/internal/utils"
	"urbansprout/pkg/log"
)

// RegisterRequest register request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=20"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password" binding:"required,min=6,max=64"`
}

// LoginRequest login request
type LoginRequest struct {
	Account  string `json:"account" binding:"required"` // username or email
	Password string `json:"password" binding:"required"`
}

// TokenResponse token response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// AuthService authentication service interface
type AuthService interface {
	// Register user
	Register(ctx context.Context, req *RegisterRequest) (*model.User, error)

	// Login user
	Login(ctx context.Context, req *LoginRequest, ip string) (*TokenResponse, error)

	// Logout user
	Logout(ctx context.Context, userID uint64, token string) error

	// Validate token and resolve its user
	ValidateToken(ctx context.Context, token string) (*model.User, error)

	// Refresh token
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// authService authentication service implementation
type authService struct {
	userRepo   repository.UserRepository
	jwtManager *utils.JWTManager
	redis      *redis.Client
	expire     time.Duration
}

// NewAuthService creates an authentication service
func NewAuthService(
	userRepo repository.UserRepository,
	jwtManager *utils.JWTManager,
	redisClient *redis.Client,
	expire time.Duration,
) AuthService {
	return &authService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		redis:      redisClient,
		expire:     expire,
	}
}

// Register registers a user
func (s *authService) Register(ctx context.Context, req *RegisterRequest) (*model.User, error) {
	log.Info("user register", "username", req.Username)

	exists, err := s.userRepo.ExistsByUsername(ctx, req.Username)
	if err != nil {
		log.Error("check username failed", "error", err)
		return nil, errors.New("system error")
	}
	if exists {
		return nil, errors.New("username already exists")
	}

	passwordHash, err := s.hashPassword(req.Password)
	if err != nil {
		log.Error("hash password failed", "error", err)
		return nil, errors.New("system error")
	}

	var email *string
	if req.Email != "" {
		email = &req.Email
	}
	user := &model.User{
		Username:     req.Username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         model.RoleUser,
		Status:       model.UserStatusActive,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		log.Error("create user failed", "error", err)
		return nil, errors.New("registration failed")
	}

	log.Info("user register success", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login logs in a user
func (s *authService) Login(ctx context.Context, req *LoginRequest, ip string) (*TokenResponse, error) {
	log.Info("user login", "account", req.Account, "ip", ip)

	user, err := s.findUserByAccount(ctx, req.Account)
	if err != nil {
		log.Warn("user not found", "account", req.Account)
		return nil, errors.New("username or password incorrect")
	}

	if !user.IsActive() {
		return nil, errors.New("account disabled")
	}

	if err := s.checkLoginAttempts(ctx, user.ID); err != nil {
		return nil, err
	}

	if !s.verifyPassword(req.Password, user.PasswordHash) {
		s.recordLoginFailure(ctx, user.ID)
		return nil, errors.New("username or password incorrect")
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, user.Username, user.Role)
	if err != nil {
		log.Error("generate access token failed", "error", err)
		return nil, errors.New("system error")
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Username)
	if err != nil {
		log.Error("generate refresh token failed", "error", err)
		return nil, errors.New("system error")
	}

	tokenKey := fmt.Sprintf("auth:token:%d", user.ID)
	s.redis.Set(ctx, tokenKey, accessToken, s.expire)

	s.userRepo.UpdateLastLogin(ctx, user.ID, ip)
	s.clearLoginFailures(ctx, user.ID)

	log.Info("user login success", "user_id", user.ID, "username", user.Username)

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.expire.Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// Logout logs out a user
func (s *authService) Logout(ctx context.Context, userID uint64, token string) error {
	tokenKey := fmt.Sprintf("auth:token:%d", userID)
	s.redis.Del(ctx, tokenKey)

	// Blacklist the token until it would have expired anyway.
	blacklistKey := fmt.Sprintf("auth:blacklist:%s", token)
	s.redis.Set(ctx, blacklistKey, "1", s.expire)

	log.Info("user logout", "user_id", userID)
	return nil
}

// ValidateToken validates a token and returns its user. Shared by the
// REST middleware and the websocket handshake.
func (s *authService) ValidateToken(ctx context.Context, token string) (*model.User, error) {
	blacklistKey := fmt.Sprintf("auth:blacklist:%s", token)
	exists, _ := s.redis.Exists(ctx, blacklistKey).Result()
	if exists > 0 {
		return nil, errors.New("token invalid")
	}

	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, errors.New("token invalid")
	}

	if !user.IsActive() {
		return nil, errors.New("account disabled")
	}

	return user, nil
}

// RefreshToken refreshes a token
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	claims, err := s.jwtManager.ValidateToken(refreshToken)
	if err != nil {
		return nil, errors.New("refresh token invalid")
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil || !user.IsActive() {
		return nil, errors.New("refresh token invalid")
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, errors.New("generate token failed")
	}

	tokenKey := fmt.Sprintf("auth:token:%d", user.ID)
	s.redis.Set(ctx, tokenKey, accessToken, s.expire)

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.expire.Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// findUserByAccount finds a user by username or email
func (s *authService) findUserByAccount(ctx context.Context, account string) (*model.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, account)
	if err == nil {
		return user, nil
	}

	user, err = s.userRepo.GetByEmail(ctx, account)
	if err == nil {
		return user, nil
	}

	return nil, errors.New("user not found")
}

// hashPassword hashes a password
func (s *authService) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifyPassword verifies a password
func (s *authService) verifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// checkLoginAttempts checks login attempts
func (s *authService) checkLoginAttempts(ctx context.Context, userID uint64) error {
	key := fmt.Sprintf("auth:login_attempts:%d", userID)
	attempts, _ := s.redis.Get(ctx, key).Int()

	if attempts >= 5 {
		return errors.New("login failed too many times, please try again in 30 minutes")
	}

	return nil
}

// recordLoginFailure records a login failure
func (s *authService) recordLoginFailure(ctx context.Context, userID uint64) {
	key := fmt.Sprintf("auth:login_attempts:%d", userID)
	s.redis.Incr(ctx, key)
	s.redis.Expire(ctx, key, 30*time.Minute)
}

// clearLoginFailures clears login failures
func (s *authService) clearLoginFailures(ctx context.Context, userID uint64) {
	key := fmt.Sprintf("auth:login_attempts:%d", userID)
	s.redis.Del(ctx, key)
}
