package handlers

import (
	"fmt"
	"html"

	"github.com/gofiber/fiber/v2"
)

// Page renders a placeholder for a front-end page. The real pages live in
// the web client; the server only has to gate them.
func Page(title string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Type("html", "utf-8")
		return c.SendString(fmt.Sprintf(
			"<!doctype html><html><head><title>%s | TaskSync</title></head><body data-page=%q><h1>%s</h1></body></html>",
			html.EscapeString(title), c.Path(), html.EscapeString(title),
		))
	}
}
