package instrument

import (
	"errors"
	"math/rand"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"volunteer-backend/internal/config"
	"volunteer-backend/internal/metadata"
)

// Middleware opens a root span per sampled request. The trace id is taken
// from X-Trace-ID when present and echoed back on the response.
func Middleware(cfg config.InstrumentationConfig, rec Recorder) fiber.Handler {
	tracer := NewTracer(rec)
	return func(c *fiber.Ctx) error {
		if !cfg.Enabled || rec == nil {
			return c.Next()
		}

		// Sampling: skip tracing for a proportion of requests
		if cfg.SamplingRate < 1.0 && rand.Float64() >= cfg.SamplingRate {
			return c.Next()
		}

		traceID := c.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set("X-Trace-ID", traceID)

		ctx := WithTrace(c.UserContext(), tracer, traceID)
		ctx, span := StartSpan(ctx, "http", "request")
		span.SetMetadata("method", c.Method())
		span.SetMetadata("path", c.Path())
		if fields := c.Query("fields"); fields != "" {
			span.SetMetadata("fields", fields)
		}
		c.SetUserContext(ctx)

		err := c.Next()

		// auth middleware runs downstream and sets the user
		if user, ok := c.Locals("user").(*metadata.UserContext); ok && user != nil {
			span.SetMetadata("user_id", user.ID)
		}

		status := c.Response().StatusCode()
		if err != nil {
			status = errorStatus(err)
		}
		span.SetMetadata("status_code", status)
		if status >= 400 || err != nil {
			span.SetStatus("error")
		} else {
			span.SetStatus("ok")
		}
		span.End()

		return err
	}
}

// errorStatus is the status the error handler will answer err with.
func errorStatus(err error) int {
	var se interface{ HTTPStatus() int }
	if errors.As(err, &se) {
		return se.HTTPStatus()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}
