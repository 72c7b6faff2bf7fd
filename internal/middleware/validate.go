package middleware

import (
	"errors"
	"net/http"

	"github.com/bilgisen/feedcore/internal/logger"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// LocalsValidated is the fiber.Ctx Locals key holding the decoded body or query
const LocalsValidated = "validated"

var validate = validator.New()

// Validate validates s against its struct tags
func Validate(s interface{}) error {
	return validate.Struct(s)
}

func fieldErrors(err error) map[string]string {
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, e := range verrs {
			out[e.Field()] = e.Tag()
		}
	}
	return out
}

// ValidateBody decodes the request body into a fresh T per request,
// validates it and stores a *T in Locals under LocalsValidated
func ValidateBody[T any]() fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := new(T)
		if err := c.BodyParser(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
				"msg":   err.Error(),
			})
		}

		if err := Validate(req); err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":  "Validation failed",
				"fields": fieldErrors(err),
			})
		}

		c.Locals(LocalsValidated, req)
		return c.Next()
	}
}

// ValidateQuery is ValidateBody for query parameters
func ValidateQuery[T any]() fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := new(T)
		if err := c.QueryParser(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid query parameters",
				"msg":   err.Error(),
			})
		}

		if err := Validate(req); err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":  "Invalid query parameters",
				"fields": fieldErrors(err),
			})
		}

		c.Locals(LocalsValidated, req)
		return c.Next()
	}
}

// Validated returns the value stored by ValidateBody or ValidateQuery
func Validated[T any](c *fiber.Ctx) *T {
	v, _ := c.Locals(LocalsValidated).(*T)
	return v
}

// ErrorHandler renders errors as JSON. fiber errors keep their code and
// message; anything else is a 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := http.StatusText(code)

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	logger.Get().Error().
		Err(err).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", code).
		Msg("HTTP error")

	return c.Status(code).JSON(fiber.Map{
		"error": message,
	})
}
