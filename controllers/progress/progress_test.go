package progressController

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	courseModels "lms/models/course"
	"lms/services/progress"
	progressValidators "lms/validators/progress"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBCounter int64

// stubAuth stands in for the JWT middleware and authenticates as user 7.
func stubAuth(c *fiber.Ctx) error {
	c.Locals("userId", uint(7))
	c.Locals("role", "USER")
	return c.Next()
}

func setupTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:progress_ctrl_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBCounter, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&courseModels.Course{},
		&courseModels.Module{},
		&courseModels.Lesson{},
		&courseModels.Enrollment{},
		&courseModels.LessonProgress{},
	))

	ctrl := NewController(progress.NewService(db, progress.StatusModeRecompute))

	app := fiber.New()
	group := app.Group("/progress")
	group.Put("/:enrollment_id/lessons/:lesson_id", stubAuth, progressValidators.UpdateProgress(), ctrl.UpdateLessonProgress)
	group.Post("/:enrollment_id/lessons/:lesson_id/complete", stubAuth, progressValidators.LessonParams(), ctrl.MarkLessonComplete)
	group.Put("/:enrollment_id/lessons/:lesson_id/time", stubAuth, progressValidators.TimeProgress(), ctrl.UpdateTimeProgress)
	group.Get("/:enrollment_id", stubAuth, progressValidators.EnrollmentParam(), ctrl.GetEnrollmentProgress)

	return app, db
}

// seedEnrollment creates a published course with three lessons (IDs 10-12)
// and an enrollment (ID 5) owned by the stubbed user 7.
func seedEnrollment(t *testing.T, db *gorm.DB) {
	t.Helper()

	course := courseModels.Course{
		Model:       gorm.Model{ID: 1},
		Title:       "Go from Zero",
		Instructor:  "Jane Doe",
		Status:      "ACTIVE",
		IsPublished: true,
	}
	require.NoError(t, db.Create(&course).Error)

	module := courseModels.Module{Model: gorm.Model{ID: 2}, CourseID: 1, Title: "Basics"}
	require.NoError(t, db.Create(&module).Error)

	for i, id := range []uint{10, 11, 12} {
		lesson := courseModels.Lesson{
			Model:       gorm.Model{ID: id},
			ModuleID:    2,
			Title:       fmt.Sprintf("Lesson %d", i+1),
			OrderIndex:  i,
			IsPublished: true,
		}
		require.NoError(t, db.Create(&lesson).Error)
	}

	enrollment := courseModels.Enrollment{
		Model:    gorm.Model{ID: 5},
		UserID:   7,
		CourseID: 1,
		Status:   courseModels.EnrollmentNotStarted,
	}
	require.NoError(t, db.Create(&enrollment).Error)
}

func doRequest(t *testing.T, app *fiber.App, method, target string, body any) (int, map[string]any) {
	t.Helper()

	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, target, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	return resp.StatusCode, parsed
}

func TestMarkLessonComplete_Endpoint(t *testing.T) {
	app, db := setupTestApp(t)
	seedEnrollment(t, db)

	status, body := doRequest(t, app, "POST", "/progress/5/lessons/10/complete", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Lesson marked as completed!", body["message"])

	payload, ok := body["progress"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(5), payload["enrollment_id"])
	assert.Equal(t, float64(10), payload["lesson_id"])
	assert.Equal(t, true, payload["completed"])
	assert.Equal(t, float64(33), payload["overall_progress"])
	assert.Equal(t, float64(1), payload["completed_lessons"])
	assert.Equal(t, float64(3), payload["total_lessons"])
}

func TestUpdateLessonProgress_Endpoint(t *testing.T) {
	app, db := setupTestApp(t)
	seedEnrollment(t, db)

	status, body := doRequest(t, app, "PUT", "/progress/5/lessons/10", map[string]any{
		"completed": true,
		"last_time": 120.5,
	})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	payload := body["progress"].(map[string]any)
	assert.Equal(t, true, payload["completed"])
	assert.Equal(t, 120.5, payload["last_time"])
	assert.Equal(t, float64(33), payload["overall_progress"])

	// Empty body defaults to marking the lesson completed
	status, body = doRequest(t, app, "PUT", "/progress/5/lessons/11", nil)
	require.Equal(t, fiber.StatusOK, status)
	payload = body["progress"].(map[string]any)
	assert.Equal(t, true, payload["completed"])
	assert.Equal(t, float64(67), payload["overall_progress"])
}

func TestUpdateTimeProgress_Endpoint(t *testing.T) {
	app, db := setupTestApp(t)
	seedEnrollment(t, db)

	status, body := doRequest(t, app, "PUT", "/progress/5/lessons/10/time", map[string]any{
		"last_time": 42.5,
	})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	payload := body["progress"].(map[string]any)
	assert.Equal(t, 42.5, payload["last_time"])

	// Checkpoints never move the enrollment aggregate
	var enrollment courseModels.Enrollment
	require.NoError(t, db.First(&enrollment, 5).Error)
	assert.Equal(t, 0, enrollment.Progress)
	assert.Equal(t, courseModels.EnrollmentNotStarted, enrollment.Status)
}

func TestUpdateTimeProgress_MissingLastTime(t *testing.T) {
	app, db := setupTestApp(t)
	seedEnrollment(t, db)

	status, body := doRequest(t, app, "PUT", "/progress/5/lessons/10/time", map[string]any{})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "last_time is required!", body["message"])
}

func TestGetEnrollmentProgress_Endpoint(t *testing.T) {
	app, db := setupTestApp(t)
	seedEnrollment(t, db)

	_, _ = doRequest(t, app, "POST", "/progress/5/lessons/10/complete", nil)

	status, body := doRequest(t, app, "GET", "/progress/5", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	enrollment := body["enrollment"].(map[string]any)
	assert.Equal(t, float64(5), enrollment["id"])
	assert.Equal(t, float64(33), enrollment["progress"])
	assert.Equal(t, courseModels.EnrollmentInProgress, enrollment["status"])

	course := body["course"].(map[string]any)
	assert.Equal(t, "Go from Zero", course["title"])
	assert.Equal(t, "Jane Doe", course["instructor"])

	entries := body["lesson_progress"].([]any)
	assert.Len(t, entries, 3)

	stats := body["statistics"].(map[string]any)
	assert.Equal(t, float64(3), stats["total_lessons"])
	assert.Equal(t, float64(1), stats["completed_lessons"])
	assert.Equal(t, float64(33), stats["progress_percentage"])
}

func TestProgressEndpoints_ErrorMapping(t *testing.T) {
	app, db := setupTestApp(t)
	seedEnrollment(t, db)

	// Enrollment owned by another user
	other := courseModels.Enrollment{Model: gorm.Model{ID: 6}, UserID: 99, CourseID: 1}
	require.NoError(t, db.Create(&other).Error)

	status, body := doRequest(t, app, "POST", "/progress/6/lessons/10/complete", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "Enrollment not found!", body["message"])

	// Lesson from a different course
	foreignModule := courseModels.Module{Model: gorm.Model{ID: 3}, CourseID: 2, Title: "Elsewhere"}
	require.NoError(t, db.Create(&foreignModule).Error)
	foreignLesson := courseModels.Lesson{Model: gorm.Model{ID: 20}, ModuleID: 3, Title: "Foreign", IsPublished: true}
	require.NoError(t, db.Create(&foreignLesson).Error)

	status, body = doRequest(t, app, "POST", "/progress/5/lessons/20/complete", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Lesson does not belong to this course!", body["message"])

	// Malformed URL params
	status, _ = doRequest(t, app, "POST", "/progress/abc/lessons/10/complete", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	status, _ = doRequest(t, app, "GET", "/progress/0", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
}
