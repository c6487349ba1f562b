package progressRoutes

import (
	progressControllers "lms/controllers/progress"
	"lms/middleware"
	progressValidators "lms/validators/progress"

	"github.com/gofiber/fiber/v2"
)

// SetupProgressRoutes sets up all lesson-progress routes
func SetupProgressRoutes(app *fiber.App, ctrl *progressControllers.Controller) {
	progressGroup := app.Group("/progress")

	// Per-lesson progress update (explicit completed flag, playback position)
	progressGroup.Put("/:enrollment_id/lessons/:lesson_id", middleware.JWTMiddleware, progressValidators.UpdateProgress(), ctrl.UpdateLessonProgress)

	// Mark a lesson completed
	progressGroup.Post("/:enrollment_id/lessons/:lesson_id/complete", middleware.JWTMiddleware, progressValidators.LessonParams(), ctrl.MarkLessonComplete)

	// Playback checkpoint (called every few seconds during video playback)
	progressGroup.Put("/:enrollment_id/lessons/:lesson_id/time", middleware.JWTMiddleware, progressValidators.TimeProgress(), ctrl.UpdateTimeProgress)

	// Full progress view for an enrollment
	progressGroup.Get("/:enrollment_id", middleware.JWTMiddleware, progressValidators.EnrollmentParam(), ctrl.GetEnrollmentProgress)
}
