package progressController

import (
	"errors"
	"lms/middleware"
	"lms/services/progress"
	"lms/utils"
	progressValidator "lms/validators/progress"

	"github.com/gofiber/fiber/v2"
)

// Controller exposes the progress service over HTTP.
type Controller struct {
	Service *progress.Service
}

func NewController(service *progress.Service) *Controller {
	return &Controller{Service: service}
}

// mapServiceError translates domain errors into HTTP responses.
func mapServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, progress.ErrNotFoundOrUnauthorized):
		return middleware.JsonResponse(c, fiber.StatusNotFound, false, "Enrollment not found!", nil)
	case errors.Is(err, progress.ErrLessonNotInCourse):
		return middleware.JsonResponse(c, fiber.StatusBadRequest, false, "Lesson does not belong to this course!", nil)
	default:
		return middleware.JsonResponse(c, fiber.StatusInternalServerError, false, "Failed to update progress!", nil)
	}
}

// UpdateLessonProgress handles PUT /progress/:enrollment_id/lessons/:lesson_id
func (ctrl *Controller) UpdateLessonProgress(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	enrollmentID := c.Locals("enrollmentID").(uint)
	lessonID := c.Locals("lessonID").(uint)
	reqData, _ := c.Locals("validatedProgressUpdate").(*progressValidator.UpdateProgressBody)
	if reqData == nil {
		reqData = &progressValidator.UpdateProgressBody{}
	}

	result, err := ctrl.Service.UpdateProgress(c.Context(), enrollmentID, userID, lessonID, progress.UpdateInput{
		Completed: reqData.Completed,
		LastTime:  reqData.LastTime,
		LastPage:  reqData.LastPage,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	if result.JustCompleted {
		go utils.NotifyCourseCompleted(userID, enrollmentID)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Progress updated successfully!", fiber.Map{
		"progress": fiber.Map{
			"enrollment_id":     enrollmentID,
			"lesson_id":         lessonID,
			"completed":         result.LessonProgress.Completed,
			"last_time":         result.LessonProgress.LastTime,
			"overall_progress":  result.OverallProgress,
			"completed_lessons": result.CompletedLessons,
			"total_lessons":     result.TotalLessons,
		},
	})
}

// MarkLessonComplete handles POST /progress/:enrollment_id/lessons/:lesson_id/complete
func (ctrl *Controller) MarkLessonComplete(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	enrollmentID := c.Locals("enrollmentID").(uint)
	lessonID := c.Locals("lessonID").(uint)

	result, err := ctrl.Service.MarkLessonComplete(c.Context(), enrollmentID, userID, lessonID)
	if err != nil {
		return mapServiceError(c, err)
	}

	if result.JustCompleted {
		go utils.NotifyCourseCompleted(userID, enrollmentID)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Lesson marked as completed!", fiber.Map{
		"progress": fiber.Map{
			"enrollment_id":     enrollmentID,
			"lesson_id":         lessonID,
			"completed":         true,
			"overall_progress":  result.OverallProgress,
			"completed_lessons": result.CompletedLessons,
			"total_lessons":     result.TotalLessons,
		},
	})
}

// UpdateTimeProgress handles PUT /progress/:enrollment_id/lessons/:lesson_id/time
func (ctrl *Controller) UpdateTimeProgress(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	enrollmentID := c.Locals("enrollmentID").(uint)
	lessonID := c.Locals("lessonID").(uint)
	reqData := c.Locals("validatedTimeProgress").(*progressValidator.TimeProgressBody)

	lp, err := ctrl.Service.UpdateTimeProgress(c.Context(), enrollmentID, userID, lessonID, *reqData.LastTime)
	if err != nil {
		return mapServiceError(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Time progress saved!", fiber.Map{
		"progress": fiber.Map{
			"enrollment_id": enrollmentID,
			"lesson_id":     lessonID,
			"last_time":     lp.LastTime,
			"updated_at":    lp.UpdatedAt,
		},
	})
}

// GetEnrollmentProgress handles GET /progress/:enrollment_id
func (ctrl *Controller) GetEnrollmentProgress(c *fiber.Ctx) error {
	userID, ok := c.Locals("userId").(uint)
	if !ok {
		return middleware.JsonResponse(c, fiber.StatusUnauthorized, false, "Unauthorized!", nil)
	}

	enrollmentID := c.Locals("enrollmentID").(uint)

	ep, err := ctrl.Service.GetEnrollmentProgress(c.Context(), enrollmentID, userID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return middleware.JsonResponse(c, fiber.StatusOK, true, "Progress fetched successfully!", fiber.Map{
		"enrollment": fiber.Map{
			"id":       ep.Enrollment.ID,
			"progress": ep.Enrollment.Progress,
			"status":   ep.Enrollment.Status,
		},
		"course": fiber.Map{
			"id":         ep.Course.ID,
			"title":      ep.Course.Title,
			"thumbnail":  ep.Course.ThumbnailURL,
			"instructor": ep.Course.Instructor,
		},
		"lesson_progress": ep.LessonProgress,
		"statistics":      ep.Statistics,
	})
}
