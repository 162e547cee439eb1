package middleware

import (
	"strings"

	"calldeck/config"
	"calldeck/models"
	"calldeck/utils"

	"github.com/gofiber/fiber/v2"
)

// Protected authenticates dashboard requests. The access token comes from
// the Authorization header or the access_token cookie; tokens issued before
// the user's token version was bumped are rejected, which is how password
// resets revoke outstanding sessions.
func Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, errMsg := extractToken(c)
		if errMsg != "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": errMsg})
		}

		claims, err := utils.ParseJWTToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		user, status, errMsg := resolveUser(claims)
		if errMsg != "" {
			return c.Status(status).JSON(fiber.Map{"error": errMsg})
		}

		c.Locals("user", user)
		c.Locals("userID", user.ID)
		return c.Next()
	}
}

func extractToken(c *fiber.Ctx) (string, string) {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", "Invalid authorization format"
		}
		return parts[1], ""
	}
	if token := c.Cookies("access_token"); token != "" {
		return token, ""
	}
	return "", "Authorization required"
}

// resolveUser loads the claims' user and checks it is still allowed in.
// Returns the user, or an HTTP status with an error message.
func resolveUser(claims *utils.Claims) (*models.User, int, string) {
	var user models.User
	if err := config.DB.First(&user, claims.UserID).Error; err != nil {
		return nil, fiber.StatusUnauthorized, "User not found"
	}
	if !user.IsActive {
		return nil, fiber.StatusForbidden, "Account is not active"
	}
	if claims.TokenVersion != user.TokenVersion {
		return nil, fiber.StatusUnauthorized, "Invalid token version"
	}
	return &user, 0, ""
}
