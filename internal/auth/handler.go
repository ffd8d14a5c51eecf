package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/susubank/susubank/internal/httpx"
	"github.com/susubank/susubank/internal/identity"
)

// Handler exposes auth endpoints for register/login/refresh/logout.
type Handler struct {
	ids *identity.Service
	svc *Service
}

// NewHandler constructs an auth handler.
func NewHandler(ids *identity.Service, svc *Service) *Handler {
	return &Handler{ids: ids, svc: svc}
}

type registerRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Phone     string `json:"phone" validate:"omitempty,max=20"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type userResponse struct {
	ID        string     `json:"id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone,omitempty"`
	Role      string     `json:"role"`
	IsActive  bool       `json:"is_active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func newUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      u.Role,
		IsActive:  u.IsActive,
		LastLogin: u.LastLogin,
		CreatedAt: u.CreatedAt,
	}
}

// Register onboards a customer. Staff accounts are provisioned out of band.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := httpx.ParseBody(c, &req); err != nil {
		return err
	}
	user, err := h.ids.Register(c.UserContext(), identity.Registration{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Password:  req.Password,
		Role:      identity.RoleCustomer,
	})
	switch {
	case errors.Is(err, identity.ErrUserExists):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrWeakPassword):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case err != nil:
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"user": newUserResponse(user)})
}

// Login validates credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := httpx.ParseBody(c, &req); err != nil {
		return err
	}
	user, err := h.ids.Authenticate(c.UserContext(), identity.Credentials{Email: req.Email, Password: req.Password})
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, identity.ErrInactiveUser):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case err != nil:
		return err
	}
	pair, err := h.svc.Login(user)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user": newUserResponse(user), "tokens": pair})
}

// Refresh issues a new token pair using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := httpx.ParseBody(c, &req); err != nil {
		return err
	}
	pair, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrTokenRevoked) {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"tokens": pair})
}

// Logout invalidates every token of the authenticated user.
func (h *Handler) Logout(c *fiber.Ctx) error {
	uid, err := httpx.ActorID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Logout(c.UserContext(), uid); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, err := httpx.ActorID(c)
	if err != nil {
		return err
	}
	user, err := h.ids.Get(c.UserContext(), uid)
	if errors.Is(err, identity.ErrUserNotFound) {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user": newUserResponse(user)})
}
