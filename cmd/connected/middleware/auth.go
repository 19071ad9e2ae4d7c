package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	commonmw "github.com/lyzr/connected/common/middleware"
	"github.com/lyzr/connected/common/models"
)

const tokenIssuer = "connected"

// Claims is the token payload; the identity is UserID, or Subject when empty
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the user id carried by the claims
func (c *Claims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Authenticator resolves the caller identity from a bearer token or,
// when allowed, the X-User-ID header
type Authenticator struct {
	secret      []byte
	allowHeader bool
}

// NewAuthenticator creates an authenticator; an empty secret disables tokens
func NewAuthenticator(secret string, allowHeader bool) *Authenticator {
	return &Authenticator{secret: []byte(secret), allowHeader: allowHeader}
}

// GenerateToken signs an HS256 token for userID
func (a *Authenticator) GenerateToken(userID string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("token signing is not configured")
	}
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ValidateToken parses and verifies a token string
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("token verification is not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Identity() != "" {
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

// ExtractIdentity stores the caller identity in the echo context.
// Anonymous requests pass through so session-scoped calls keep working;
// a token that is present but invalid is rejected.
func (a *Authenticator) ExtractIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token := bearerToken(c); token != "" {
				claims, err := a.ValidateToken(token)
				if err != nil {
					return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
						Error: "invalid bearer token",
						Code:  models.CodeUnauthorized,
					})
				}
				commonmw.SetIdentity(c, claims.Identity())
				return next(c)
			}

			if a.allowHeader {
				if userID := c.Request().Header.Get("X-User-ID"); userID != "" {
					commonmw.SetIdentity(c, userID)
				}
			}
			return next(c)
		}
	}
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter that browser websockets have to use
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return c.QueryParam("access_token")
}

// GetIdentity retrieves the caller identity, "" when anonymous
func GetIdentity(c echo.Context) string {
	return commonmw.Identity(c)
}

// RequireIdentity ensures an identity exists in context.
// Returns an error response if not found.
func RequireIdentity(c echo.Context) (string, error) {
	userID := GetIdentity(c)
	if userID == "" {
		err := c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error: "authentication required (bearer token or X-User-ID header missing)",
			Code:  models.CodeUnauthorized,
		})
		if err == nil {
			err = errUnauthenticated
		}
		return "", err
	}
	return userID, nil
}

var errUnauthenticated = errors.New("unauthenticated")
