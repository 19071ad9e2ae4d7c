package middleware

import "github.com/labstack/echo/v4"

// IdentityKey is the echo context key holding the authenticated user id
const IdentityKey = "user_id"

// SetIdentity stores the caller identity for downstream middleware and handlers
func SetIdentity(c echo.Context, userID string) {
	c.Set(IdentityKey, userID)
}

// Identity returns the caller identity, or "" when unauthenticated
func Identity(c echo.Context) string {
	userID, _ := c.Get(IdentityKey).(string)
	return userID
}
