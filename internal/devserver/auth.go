package devserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/chatclient/internal/api"
)

const userContextKey = "user"

const tokenTTL = 15 * 24 * time.Hour

// Claims is the payload of the session token.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// IssueToken signs a session token for userID.
func IssueToken(secret []byte, userID string, now time.Time) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies a session token and returns the user id it carries.
func ParseToken(secret []byte, token string) (string, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", errors.New("token has no user id")
	}
	return claims.UserID, nil
}

// Auth protects routes with the session cookie and stores the caller in the
// context.
func Auth(secret []byte, store *Store) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(api.AuthCookie)
			if err != nil || cookie.Value == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized - No Token Provided")
			}

			userID, err := ParseToken(secret, cookie.Value)
			if err != nil {
				FromContext(c.Request().Context()).Debug("Rejected token", "error", err)
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized - Invalid Token")
			}

			user, ok := store.User(userID)
			if !ok {
				return echo.NewHTTPError(http.StatusNotFound, "User not found")
			}

			c.Set(userContextKey, user)
			return next(c)
		}
	}
}
