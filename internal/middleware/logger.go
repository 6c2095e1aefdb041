package middleware

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"tasksync/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorHandler recovers panics and logs every request. Errors from the
// chain are rendered by the app's ErrorHandler here, so the logged status
// is the one the client receives.
func ErrorHandler() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				errMsg := fmt.Sprintf("Recovered from panic: %v", r)
				stack := string(debug.Stack())
				logger.ErrorLogger.Error(errMsg,
					zap.String("path", c.Path()),
					zap.String("stack", stack),
				)
				err = fiber.NewError(fiber.StatusInternalServerError, "Internal server error")
			}
			if err != nil {
				if herr := c.App().ErrorHandler(c, err); herr != nil {
					logger.ErrorLogger.Error("Error handler failed",
						zap.String("path", c.Path()),
						zap.Error(herr),
					)
					c.Status(fiber.StatusInternalServerError)
				}
				err = nil
			}

			// Logging request masuk
			logger.RequestLogger.Info("Incoming request",
				zap.String("method", c.Method()),
				zap.String("url", c.OriginalURL()),
				zap.Int("status", c.Response().StatusCode()),
				zap.Duration("latency", time.Since(start)),
			)
		}()

		return c.Next()
	}
}

// JSONErrorHandler is the fiber.Config ErrorHandler. Errors that reach it
// keep their fiber code (404 for unknown routes, 413 for huge bodies) and
// everything else becomes a generic 500 in the response envelope.
func JSONErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	} else {
		logger.ErrorLogger.Error("Unhandled error",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}

	return c.Status(code).JSON(fiber.Map{
		"message": message,
		"success": false,
		"status":  code,
	})
}
