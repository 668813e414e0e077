// Package middleware provides authentication, logging and request guarding middleware for the application.
package middleware

import (
	"strconv"
	"strings"

	"gamelend/internal/config"
	"gamelend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const identityLocal = "identity"

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthenticatedError(msg))
}

// AuthRequired is a middleware that resolves the caller identity from a bearer token.
// The token is issued elsewhere; this service only verifies it.
func AuthRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return unauthorized(c, "Authorization header required")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return unauthorized(c, "Invalid authorization header format")
	}

	identity, err := ParseIdentity(parts[1])
	if err != nil {
		return unauthorized(c, err.Error())
	}

	c.Locals("accountID", identity.AccountID)
	c.Locals(identityLocal, identity)

	return c.Next()
}

// ParseIdentity validates an HMAC-signed token and turns its claims into an Identity.
// Expected claims: "sub" (account id as string), "email", "roles" (list of strings).
func ParseIdentity(tokenString string) (models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return models.Identity{}, fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
	}

	subStr, ok := claims["sub"].(string)
	if !ok {
		return models.Identity{}, fiber.NewError(fiber.StatusUnauthorized, "Invalid token structure - missing subject")
	}

	accountID, err := strconv.ParseUint(subStr, 10, 32)
	if err != nil || accountID == 0 {
		return models.Identity{}, fiber.NewError(fiber.StatusUnauthorized, "Invalid account ID in token")
	}

	identity := models.Identity{AccountID: uint(accountID)}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				identity.Roles = append(identity.Roles, models.Role(s))
			}
		}
	}
	if len(identity.Roles) == 0 {
		identity.Roles = []models.Role{models.RoleMember}
	}

	return identity, nil
}

// IdentityFrom returns the caller resolved by AuthRequired. The zero Identity
// is returned for anonymous requests; services reject it as unauthenticated.
func IdentityFrom(c *fiber.Ctx) models.Identity {
	if identity, ok := c.Locals(identityLocal).(models.Identity); ok {
		return identity
	}
	return models.Identity{}
}
