package middleware

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"calldeck/config"
	"calldeck/models"
	"calldeck/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newAuthTestApp(t *testing.T) (*fiber.App, *models.User) {
	t.Helper()
	config.AppConfig.JWTSecret = "test-secret"

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	config.DB = db

	user := &models.User{
		TeamID:       1,
		Name:         "Ana Reyes",
		Email:        "ana@example.com",
		PasswordHash: "irrelevant",
		IsActive:     true,
	}
	require.NoError(t, db.Create(user).Error)

	app := fiber.New()
	app.Get("/me", Protected(), func(c *fiber.Ctx) error {
		return c.JSON(c.Locals("user"))
	})
	return app, user
}

func TestProtectedAcceptsBearerToken(t *testing.T) {
	app, user := newAuthTestApp(t)

	access, _, err := utils.GenerateJWTToken(user)
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestProtectedRejectsStaleTokenVersion(t *testing.T) {
	app, user := newAuthTestApp(t)

	access, _, err := utils.GenerateJWTToken(user)
	require.NoError(t, err)

	// Bumping the version revokes every outstanding token.
	require.NoError(t, config.DB.Model(user).Update("token_version", user.TokenVersion+1).Error)

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRequiresToken(t *testing.T) {
	app, _ := newAuthTestApp(t)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
