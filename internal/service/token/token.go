package token

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/akovalyov/shop-backend/internal/models"
)

const (
	accessTTL  = 15 * time.Minute
	refreshTTL = 7 * 24 * time.Hour
)

type Service struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte
}

func (s *Service) SignAccess(userID uint, role string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(accessTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.JWTSecret)
}

// SignRefresh issues a refresh token and stores it so it can be revoked.
func (s *Service) SignRefresh(userID uint, role string) (string, error) {
	exp := time.Now().Add(refreshTTL)
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  exp.Unix(),
		"typ":  "refresh",
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.RefreshSecret)
	if err != nil {
		return "", err
	}

	row := models.RefreshToken{
		Token:     raw,
		UserID:    userID,
		Role:      role,
		ExpiresAt: exp.Unix(),
	}
	if err := s.DB.Create(&row).Error; err != nil {
		return "", fmt.Errorf("save refresh token: %w", err)
	}
	return raw, nil
}

func (s *Service) Revoke(raw string) error {
	return s.DB.Model(&models.RefreshToken{}).
		Where("token = ?", raw).
		Update("revoked", true).Error
}

func (s *Service) validateRefresh(raw string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return s.RefreshSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, errors.New("invalid refresh token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || claims["typ"] != "refresh" {
		return nil, errors.New("invalid refresh token")
	}

	var row models.RefreshToken
	if err := s.DB.Where("token = ?", raw).First(&row).Error; err != nil {
		return nil, errors.New("unknown refresh token")
	}
	if row.Revoked {
		return nil, errors.New("refresh token revoked")
	}
	return claims, nil
}

// Rotate exchanges a valid refresh token for a fresh access+refresh pair.
func (s *Service) Rotate(raw string) (string, string, jwt.MapClaims, error) {
	claims, err := s.validateRefresh(raw)
	if err != nil {
		return "", "", nil, err
	}

	userID := uint(claims["sub"].(float64))
	role, _ := claims["role"].(string)

	newAccess, err := s.SignAccess(userID, role)
	if err != nil {
		return "", "", nil, err
	}
	newRefresh, err := s.SignRefresh(userID, role)
	if err != nil {
		return "", "", nil, err
	}
	if err := s.Revoke(raw); err != nil {
		return "", "", nil, err
	}
	return newAccess, newRefresh, claims, nil
}

func CreateCookie(name, value, path string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func setUserContext(c echo.Context, claims jwt.MapClaims) {
	c.Set("userID", uint(claims["sub"].(float64)))
	role, _ := claims["role"].(string)
	c.Set("role", role)
}

// CurrentUserID returns the authenticated user id, or nil for anonymous
// requests.
func CurrentUserID(c echo.Context) *uint {
	if v, ok := c.Get("userID").(uint); ok {
		return &v
	}
	return nil
}

func CurrentRole(c echo.Context) string {
	if v, ok := c.Get("role").(string); ok {
		return v
	}
	return ""
}

func (s *Service) authenticate(c echo.Context) error {
	asCookie, err := c.Cookie("accessToken")
	if err == nil {
		parsed, perr := jwt.Parse(asCookie.Value, func(t *jwt.Token) (interface{}, error) {
			return s.JWTSecret, nil
		})
		if perr == nil && parsed.Valid {
			setUserContext(c, parsed.Claims.(jwt.MapClaims))
			return nil
		}
		if !errors.Is(perr, jwt.ErrTokenExpired) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}
	}

	rfCookie, err := c.Cookie("refreshToken")
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
	}
	newAccess, newRefresh, claims, err := s.Rotate(rfCookie.Value)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "cannot rotate token: "+err.Error())
	}

	c.SetCookie(CreateCookie("accessToken", newAccess, "/", time.Now().Add(accessTTL)))
	c.SetCookie(CreateCookie("refreshToken", newRefresh, "/", time.Now().Add(refreshTTL)))
	setUserContext(c, claims)
	return nil
}

// RequireAuth rejects anonymous requests, refreshing the access token from the
// refresh cookie when it has expired.
func (s *Service) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.authenticate(c); err != nil {
			return err
		}
		return next(c)
	}
}

// OptionalAuth resolves the user identity when credentials are present and
// lets the request through as anonymous otherwise. Guest checkout depends on
// this.
func (s *Service) OptionalAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		_ = s.authenticate(c)
		return next(c)
	}
}

func (s *Service) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return s.RequireAuth(func(c echo.Context) error {
		if CurrentRole(c) != "admin" {
			return echo.NewHTTPError(http.StatusForbidden, "not enough rights")
		}
		return next(c)
	})
}
