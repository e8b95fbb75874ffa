package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/adminlove520/EasyJob/internal/models"
	pgrepo "github.com/adminlove520/EasyJob/internal/repositories/postgres"
	"github.com/adminlove520/EasyJob/internal/utils"
)

const tokenTTL = 24 * time.Hour

type UserService interface {
	Register(ctx context.Context, email, password string) (*models.User, error)
	// Login verifies credentials and returns a signed bearer token.
	Login(ctx context.Context, email, password string) (token string, user *models.User, err error)
	Get(ctx context.Context, id uint) (*models.User, error)
}

type userService struct {
	users     pgrepo.UserRepository
	jwtSecret []byte
}

func NewUserService(users pgrepo.UserRepository, jwtSecret string) UserService {
	return &userService{users: users, jwtSecret: []byte(jwtSecret)}
}

func (s *userService) Register(ctx context.Context, email, password string) (*models.User, error) {
	const op = "UserService.Register"

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, utils.E(utils.CodeInvalidArgument, op, "a valid email is required", nil)
	}
	if len(password) < 8 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "password must be at least 8 characters", nil)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, utils.E(utils.CodeConflict, op, "email already registered", nil)
	} else if !utils.IsNotFound(err) {
		return nil, utils.E(utils.CodeInternal, op, "failed to check email", err)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to hash password", err)
	}

	row := &models.User{
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
	}
	if err := s.users.Insert(ctx, row); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create user", err)
	}
	return row, nil
}

func (s *userService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	const op = "UserService.Login"

	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if utils.IsNotFound(err) {
			return "", nil, utils.E(utils.CodeUnauthorized, op, "invalid email or password", nil)
		}
		return "", nil, utils.E(utils.CodeInternal, op, "failed to load user", err)
	}
	if err := utils.CheckPassword(user.PasswordHash, password); err != nil {
		return "", nil, utils.E(utils.CodeUnauthorized, op, "invalid email or password", nil)
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(uint64(user.ID), 10),
		"role": string(user.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, utils.E(utils.CodeInternal, op, "failed to sign token", err)
	}

	if err := s.users.TouchSignIn(ctx, user.ID, now); err != nil {
		return "", nil, utils.E(utils.CodeInternal, op, "failed to record sign-in", err)
	}
	user.LastSignInAt = &now
	return token, user, nil
}

func (s *userService) Get(ctx context.Context, id uint) (*models.User, error) {
	const op = "UserService.Get"

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if utils.IsNotFound(err) {
			return nil, utils.E(utils.CodeNotFound, op, "user not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load user", err)
	}
	return user, nil
}
