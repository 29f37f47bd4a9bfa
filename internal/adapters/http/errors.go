package http

import "github.com/gofiber/fiber/v2"

// APIError is the JSON body of every non-2xx response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

var errorCodes = map[int]string{
	fiber.StatusBadRequest:          "bad_request",
	fiber.StatusUnauthorized:        "unauthorized",
	fiber.StatusNotFound:            "not_found",
	fiber.StatusInternalServerError: "internal_error",
}

func writeError(c *fiber.Ctx, status int, msg string) error {
	code, ok := errorCodes[status]
	if !ok {
		code = "error"
	}
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   msg,
		RequestID: reqID,
	})
}

func errBadRequest(c *fiber.Ctx, msg string) error {
	return writeError(c, fiber.StatusBadRequest, msg)
}

func errUnauthorized(c *fiber.Ctx, msg string) error {
	return writeError(c, fiber.StatusUnauthorized, msg)
}

func errNotFound(c *fiber.Ctx, msg string) error {
	return writeError(c, fiber.StatusNotFound, msg)
}

func errInternal(c *fiber.Ctx, msg string) error {
	return writeError(c, fiber.StatusInternalServerError, msg)
}
