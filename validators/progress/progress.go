package progressValidator

import (
	"lms/middleware"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// UpdateProgressBody is the parsed body of a progress update request.
type UpdateProgressBody struct {
	Completed *bool    `json:"completed"`
	LastTime  *float64 `json:"last_time"`
	LastPage  *string  `json:"last_page"`
}

// TimeProgressBody is the parsed body of a time-checkpoint request.
type TimeProgressBody struct {
	LastTime *float64 `json:"last_time"`
}

func parseIDParam(c *fiber.Ctx, name string) (uint, bool) {
	raw := strings.TrimSpace(c.Params(name))
	if raw == "" {
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}

// EnrollmentParam validates the enrollment ID in the URL
func EnrollmentParam() fiber.Handler {
	return func(c *fiber.Ctx) error {
		enrollmentID, ok := parseIDParam(c, "enrollment_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Valid enrollment ID is required in the URL!", nil)
		}

		c.Locals("enrollmentID", enrollmentID)
		return c.Next()
	}
}

// LessonParams validates the enrollment and lesson IDs in the URL
func LessonParams() fiber.Handler {
	return func(c *fiber.Ctx) error {
		enrollmentID, ok := parseIDParam(c, "enrollment_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Valid enrollment ID is required in the URL!", nil)
		}

		lessonID, ok := parseIDParam(c, "lesson_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Valid lesson ID is required in the URL!", nil)
		}

		c.Locals("enrollmentID", enrollmentID)
		c.Locals("lessonID", lessonID)
		return c.Next()
	}
}

// UpdateProgress validates the URL params and the optional request body
func UpdateProgress() fiber.Handler {
	return func(c *fiber.Ctx) error {
		enrollmentID, ok := parseIDParam(c, "enrollment_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Valid enrollment ID is required in the URL!", nil)
		}

		lessonID, ok := parseIDParam(c, "lesson_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Valid lesson ID is required in the URL!", nil)
		}

		reqData := new(UpdateProgressBody)
		if len(c.Body()) > 0 {
			if err := c.BodyParser(reqData); err != nil {
				return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
			}
		}

		if reqData.LastTime != nil && *reqData.LastTime < 0 {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "last_time must not be negative!", nil)
		}

		c.Locals("enrollmentID", enrollmentID)
		c.Locals("lessonID", lessonID)
		c.Locals("validatedProgressUpdate", reqData)
		return c.Next()
	}
}

// TimeProgress validates the URL params and the required last_time field
func TimeProgress() fiber.Handler {
	return func(c *fiber.Ctx) error {
		enrollmentID, ok := parseIDParam(c, "enrollment_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Valid enrollment ID is required in the URL!", nil)
		}

		lessonID, ok := parseIDParam(c, "lesson_id")
		if !ok {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Valid lesson ID is required in the URL!", nil)
		}

		reqData := new(TimeProgressBody)
		if err := c.BodyParser(reqData); err != nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Invalid request body!", nil)
		}

		if reqData.LastTime == nil {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "last_time is required!", nil)
		}
		if *reqData.LastTime < 0 {
			return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "last_time must not be negative!", nil)
		}

		c.Locals("enrollmentID", enrollmentID)
		c.Locals("lessonID", lessonID)
		c.Locals("validatedTimeProgress", reqData)
		return c.Next()
	}
}
