package courseRoutes

import (
	controllers "lms/controllers/course"
	"lms/middleware"
	validators "lms/validators/course"

	"github.com/gofiber/fiber/v2"
)

// SetupAdminCourseRoutes sets up all admin course management routes
func SetupAdminCourseRoutes(app *fiber.App) {
	adminGroup := app.Group("/admin/course", middleware.JWTMiddleware, middleware.RequireRole("ADMIN"))

	// Course management
	adminGroup.Post("/", validators.Course(), controllers.AdminCreateCourse)
	adminGroup.Put("/:id", validators.Course(), controllers.AdminUpdateCourse)
	adminGroup.Patch("/:id/publish", validators.CourseParam(), controllers.AdminPublishCourse)
	adminGroup.Delete("/:id", validators.CourseParam(), controllers.AdminDeleteCourse)

	// Module management
	adminGroup.Post("/:id/module", validators.Module(), controllers.AdminCreateModule)
	adminGroup.Get("/:id/modules", validators.CourseParam(), controllers.AdminListModules)
	adminGroup.Delete("/:course_id/module/:module_id", validators.ModuleParams(), controllers.AdminDeleteModule)

	// Lesson management
	adminGroup.Post("/:course_id/module/:module_id/lesson", validators.Lesson(), controllers.AdminCreateLesson)
	adminGroup.Patch("/:course_id/lesson/:lesson_id/publish", validators.LessonParams(), controllers.AdminPublishLesson)
	adminGroup.Delete("/:course_id/lesson/:lesson_id", validators.LessonParams(), controllers.AdminDeleteLesson)
}
