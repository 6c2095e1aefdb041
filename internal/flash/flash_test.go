package flash

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSetEncodesMessage(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		Set(c, Error, "You must log in first", RedirectMaxAge)
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)

	cookie := findCookie(resp, string(Error))
	require.NotNil(t, cookie)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 30, cookie.MaxAge)
	msg, err := url.QueryUnescape(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "You must log in first", msg)
}

func TestReadClearsMessages(t *testing.T) {
	app := fiber.New()
	app.Get("/flash", func(c *fiber.Ctx) error {
		return c.JSON(Read(c))
	})

	req := httptest.NewRequest("GET", "/flash", nil)
	req.AddCookie(&http.Cookie{Name: string(Success), Value: url.QueryEscape("You are already logged in")})
	resp, err := app.Test(req)
	require.NoError(t, err)

	var got Messages
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "You are already logged in", got.Success)
	assert.Empty(t, got.Error)

	cleared := findCookie(resp, string(Success))
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Nil(t, findCookie(resp, string(Error)), "absent messages are not touched")
}
