package progress

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	courseModels "lms/models/course"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBCounter int64

// setupTestDB opens a fresh in-memory database per test. The named DSN
// with cache=shared keeps gorm's pooled connections on the same database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:progress_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBCounter, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&courseModels.Course{},
		&courseModels.Module{},
		&courseModels.Lesson{},
		&courseModels.Enrollment{},
		&courseModels.LessonProgress{},
	)
	require.NoError(t, err)

	return db
}

// seedCourse creates a published course with one module and the given
// lesson IDs, plus an enrollment with fixed IDs matching the scenario
// used throughout: enrollment 5 owned by user 7.
func seedCourse(t *testing.T, db *gorm.DB, lessonIDs ...uint) {
	t.Helper()

	course := courseModels.Course{
		Model:       gorm.Model{ID: 1},
		Title:       "Go from Zero",
		Instructor:  "Jane Doe",
		Status:      "ACTIVE",
		IsPublished: true,
	}
	require.NoError(t, db.Create(&course).Error)

	module := courseModels.Module{
		Model:    gorm.Model{ID: 2},
		CourseID: course.ID,
		Title:    "Basics",
	}
	require.NoError(t, db.Create(&module).Error)

	for i, id := range lessonIDs {
		lesson := courseModels.Lesson{
			Model:       gorm.Model{ID: id},
			ModuleID:    module.ID,
			Title:       fmt.Sprintf("Lesson %d", i+1),
			OrderIndex:  i,
			IsPublished: true,
		}
		require.NoError(t, db.Create(&lesson).Error)
	}

	enrollment := courseModels.Enrollment{
		Model:    gorm.Model{ID: 5},
		UserID:   7,
		CourseID: course.ID,
		Status:   courseModels.EnrollmentNotStarted,
	}
	require.NoError(t, db.Create(&enrollment).Error)
}

func getEnrollment(t *testing.T, db *gorm.DB, id uint) *courseModels.Enrollment {
	t.Helper()
	var enrollment courseModels.Enrollment
	require.NoError(t, db.First(&enrollment, id).Error)
	return &enrollment
}

func TestMarkLessonComplete_Scenario(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCourse(t, db, 10, 11, 12)
	service := NewService(db, StatusModeRecompute)

	result, err := service.MarkLessonComplete(ctx, 5, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CompletedLessons)
	assert.Equal(t, 3, result.TotalLessons)
	assert.Equal(t, 33, result.OverallProgress)
	assert.False(t, result.JustCompleted)
	assert.Equal(t, courseModels.EnrollmentInProgress, getEnrollment(t, db, 5).Status)

	result, err = service.MarkLessonComplete(ctx, 5, 7, 11)
	require.NoError(t, err)
	assert.Equal(t, 2, result.CompletedLessons)
	assert.Equal(t, 67, result.OverallProgress)

	result, err = service.MarkLessonComplete(ctx, 5, 7, 12)
	require.NoError(t, err)
	assert.Equal(t, 3, result.CompletedLessons)
	assert.Equal(t, 100, result.OverallProgress)
	assert.True(t, result.JustCompleted)

	enrollment := getEnrollment(t, db, 5)
	assert.Equal(t, courseModels.EnrollmentCompleted, enrollment.Status)
	assert.Equal(t, 100, enrollment.Progress)
	require.NotNil(t, enrollment.CompletedAt)
}

func TestMarkLessonComplete_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCourse(t, db, 10, 11, 12)
	service := NewService(db, StatusModeRecompute)

	first, err := service.MarkLessonComplete(ctx, 5, 7, 10)
	require.NoError(t, err)
	second, err := service.MarkLessonComplete(ctx, 5, 7, 10)
	require.NoError(t, err)

	assert.Equal(t, first.OverallProgress, second.OverallProgress)
	assert.Equal(t, first.CompletedLessons, second.CompletedLessons)

	// No duplicate row for the (enrollment, lesson) pair
	var count int64
	require.NoError(t, db.Model(&courseModels.LessonProgress{}).
		Where("enrollment_id = ? AND lesson_id = ?", 5, 10).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, first.LessonProgress.ID, second.LessonProgress.ID)
}

func TestUpdateProgress_Ownership(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCourse(t, db, 10, 11, 12)
	service := NewService(db, StatusModeRecompute)

	// Wrong owner, valid lesson
	_, err := service.UpdateProgress(ctx, 5, 99, 10, UpdateInput{})
	assert.ErrorIs(t, err, ErrNotFoundOrUnauthorized)

	// Wrong owner, invalid lesson: ownership failure wins either way
	_, err = service.UpdateProgress(ctx, 5, 99, 4242, UpdateInput{})
	assert.ErrorIs(t, err, ErrNotFoundOrUnauthorized)

	// Nonexistent enrollment
	_, err = service.UpdateProgress(ctx, 4242, 7, 10, UpdateInput{})
	assert.ErrorIs(t, err, ErrNotFoundOrUnauthorized)
}

func TestUpdateProgress_LessonNotInCourse(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCourse(t, db, 10, 11, 12)
	service := NewService(db, StatusModeRecompute)

	// A lesson that belongs to a different course
	otherCourse := courseModels.Course{Title: "Other", IsPublished: true}
	require.NoError(t, db.Create(&otherCourse).Error)
	otherModule := courseModels.Module{CourseID: otherCourse.ID, Title: "Other module"}
	require.NoError(t, db.Create(&otherModule).Error)
	foreignLesson := courseModels.Lesson{ModuleID: otherModule.ID, Title: "Foreign", IsPublished: true}
	require.NoError(t, db.Create(&foreignLesson).Error)

	_, err := service.UpdateProgress(ctx, 5, 7, foreignLesson.ID, UpdateInput{})
	assert.ErrorIs(t, err, ErrLessonNotInCourse)

	// Nothing was written
	var count int64
	require.NoError(t, db.Model(&courseModels.LessonProgress{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	enrollment := getEnrollment(t, db, 5)
	assert.Equal(t, 0, enrollment.Progress)
	assert.Equal(t, courseModels.EnrollmentNotStarted, enrollment.Status)
}

func TestUpdateProgress_UncompleteLesson(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCourse(t, db, 10, 11, 12)
	service := NewService(db, StatusModeRecompute)

	_, err := service.MarkLessonComplete(ctx, 5, 7, 10)
	require.NoError(t, err)

	notCompleted := false
	result, err := service.UpdateProgress(ctx, 5, 7, 10, UpdateInput{Completed: &notCompleted})
	require.NoError(t, err)
	assert.Equal(t, 0, result.CompletedLessons)
	assert.Equal(t, 0, result.OverallProgress)
	assert.False(t, result.LessonProgress.Completed)
}

func TestUpdateProgress_UnpublishedLessonsExcluded(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCourse(t, db, 10, 11, 12)
	draft := courseModels.Lesson{Model: gorm.Model{ID: 13}, ModuleID: 2, Title: "Draft"}
	require.NoError(t, db.Create(&draft).Error)
	service := NewService(db, StatusModeRecompute)

	// Progress cannot be recorded against a draft lesson
	_, err := service.MarkLessonComplete(ctx, 5, 7, 13)
	assert.ErrorIs(t, err, ErrLessonNotInCourse)

	// A stray completed row for a draft lesson never enters the aggregate
	require.NoError(t, db.Create(&courseModels.LessonProgress{
		EnrollmentID: 5, LessonID: 13, Completed: true,
	}).Error)

	result, err := service.MarkLessonComplete(ctx, 5, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CompletedLessons)
	assert.Equal(t, 3, result.TotalLessons)
	assert.Equal(t, 33, result.OverallProgress)

	for _, lessonID := range []uint{11, 12} {
		result, err = service.MarkLessonComplete(ctx, 5, 7, lessonID)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, result.CompletedLessons)
	assert.Equal(t, 100, result.OverallProgress)
	assert.Equal(t, courseModels.EnrollmentCompleted, getEnrollment(t, db, 5).Status)
}

func TestMarkLessonComplete_KeepsCheckpoint(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCourse(t, db, 10, 11, 12)
	service := NewService(db, StatusModeRecompute)

	_, err := service.UpdateTimeProgress(ctx, 5, 7, 10, 88.0)
	require.NoError(t, err)

	// Completing the lesson without a new position keeps the stored one
	result, err := service.MarkLessonComplete(ctx, 5, 7, 10)
	require.NoError(t, err)
	assert.True(t, result.LessonProgress.Completed)
	require.NotNil(t, result.LessonProgress.LastTime)
	assert.Equal(t, 88.0, *result.LessonProgress.LastTime)

	// An explicit position still overwrites
	newTime := 120.0
	result, err = service.UpdateProgress(ctx, 5, 7, 10, UpdateInput{LastTime: &newTime})
	require.NoError(t, err)
	assert.Equal(t, 120.0, *result.LessonProgress.LastTime)
}

func TestStatusMode_Strict(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCourse(t, db, 10, 11, 12)
	service := NewService(db, StatusModeStrict)

	// Partial progress does not move NOT_STARTED forward in strict mode
	_, err := service.MarkLessonComplete(ctx, 5, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, courseModels.EnrollmentNotStarted, getEnrollment(t, db, 5).Status)

	// An enrollment already IN_PROGRESS stays IN_PROGRESS
	require.NoError(t, db.Model(&courseModels.Enrollment{}).Where("id = ?", 5).
		Update("status", courseModels.EnrollmentInProgress).Error)
	_, err = service.MarkLessonComplete(ctx, 5, 7, 11)
	require.NoError(t, err)
	assert.Equal(t, courseModels.EnrollmentInProgress, getEnrollment(t, db, 5).Status)

	// 100% always forces COMPLETED
	_, err = service.MarkLessonComplete(ctx, 5, 7, 12)
	require.NoError(t, err)
	assert.Equal(t, courseModels.EnrollmentCompleted, getEnrollment(t, db, 5).Status)
}

func TestStatusMode_Recompute(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCourse(t, db, 10, 11, 12)
	service := NewService(db, StatusModeRecompute)

	_, err := service.MarkLessonComplete(ctx, 5, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, courseModels.EnrollmentInProgress, getEnrollment(t, db, 5).Status)
}

func TestCompletedIsTerminal(t *testing.T) {
	for _, mode := range []StatusMode{StatusModeStrict, StatusModeRecompute} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			db := setupTestDB(t)
			seedCourse(t, db, 10, 11, 12)
			service := NewService(db, mode)

			for _, lessonID := range []uint{10, 11, 12} {
				_, err := service.MarkLessonComplete(ctx, 5, 7, lessonID)
				require.NoError(t, err)
			}
			require.Equal(t, courseModels.EnrollmentCompleted, getEnrollment(t, db, 5).Status)

			// A lesson published after completion drops the percentage,
			// but COMPLETED is never taken back
			newLesson := courseModels.Lesson{ModuleID: 2, Title: "Bonus", IsPublished: true}
			require.NoError(t, db.Create(&newLesson).Error)

			notCompleted := false
			result, err := service.UpdateProgress(ctx, 5, 7, newLesson.ID, UpdateInput{Completed: &notCompleted})
			require.NoError(t, err)
			assert.Equal(t, 75, result.OverallProgress)
			assert.False(t, result.JustCompleted)
			assert.Equal(t, courseModels.EnrollmentCompleted, getEnrollment(t, db, 5).Status)
		})
	}
}

func TestUpdateTimeProgress(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCourse(t, db, 10, 11, 12)
	service := NewService(db, StatusModeRecompute)

	lp, err := service.UpdateTimeProgress(ctx, 5, 7, 10, 42.5)
	require.NoError(t, err)
	assert.False(t, lp.Completed)
	require.NotNil(t, lp.LastTime)
	assert.Equal(t, 42.5, *lp.LastTime)

	// Checkpoints never touch the enrollment aggregate
	enrollment := getEnrollment(t, db, 5)
	assert.Equal(t, 0, enrollment.Progress)
	assert.Equal(t, courseModels.EnrollmentNotStarted, enrollment.Status)

	// A later checkpoint updates the same row
	lp2, err := service.UpdateTimeProgress(ctx, 5, 7, 10, 97.0)
	require.NoError(t, err)
	assert.Equal(t, lp.ID, lp2.ID)
	assert.Equal(t, 97.0, *lp2.LastTime)

	// A checkpoint on a completed lesson keeps the completed flag
	_, err = service.MarkLessonComplete(ctx, 5, 7, 11)
	require.NoError(t, err)
	lp3, err := service.UpdateTimeProgress(ctx, 5, 7, 11, 12.0)
	require.NoError(t, err)
	assert.True(t, lp3.Completed)
}

func TestUpdateTimeProgress_Validation(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCourse(t, db, 10, 11, 12)
	service := NewService(db, StatusModeRecompute)

	_, err := service.UpdateTimeProgress(ctx, 5, 99, 10, 1.0)
	assert.ErrorIs(t, err, ErrNotFoundOrUnauthorized)

	otherCourse := courseModels.Course{Title: "Other", IsPublished: true}
	require.NoError(t, db.Create(&otherCourse).Error)
	otherModule := courseModels.Module{CourseID: otherCourse.ID, Title: "Other module"}
	require.NoError(t, db.Create(&otherModule).Error)
	foreignLesson := courseModels.Lesson{ModuleID: otherModule.ID, Title: "Foreign", IsPublished: true}
	require.NoError(t, db.Create(&foreignLesson).Error)

	_, err = service.UpdateTimeProgress(ctx, 5, 7, foreignLesson.ID, 1.0)
	assert.ErrorIs(t, err, ErrLessonNotInCourse)
}

func TestGetEnrollmentProgress(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCourse(t, db, 10, 11, 12)
	service := NewService(db, StatusModeRecompute)

	result, err := service.MarkLessonComplete(ctx, 5, 7, 10)
	require.NoError(t, err)
	_, err = service.UpdateTimeProgress(ctx, 5, 7, 11, 30.0)
	require.NoError(t, err)

	ep, err := service.GetEnrollmentProgress(ctx, 5, 7)
	require.NoError(t, err)

	assert.Equal(t, uint(5), ep.Enrollment.ID)
	assert.Equal(t, "Go from Zero", ep.Course.Title)
	require.Len(t, ep.LessonProgress, 3)

	assert.Equal(t, uint(10), ep.LessonProgress[0].LessonID)
	assert.True(t, ep.LessonProgress[0].Completed)
	assert.False(t, ep.LessonProgress[1].Completed)
	require.NotNil(t, ep.LessonProgress[1].LastTime)
	assert.Equal(t, 30.0, *ep.LessonProgress[1].LastTime)
	assert.False(t, ep.LessonProgress[2].Completed)

	// Statistics derived from the loaded rows agree with the live counts
	// returned by the last mutation
	assert.Equal(t, 3, ep.Statistics.TotalLessons)
	assert.Equal(t, result.CompletedLessons, ep.Statistics.CompletedLessons)
	assert.Equal(t, result.OverallProgress, ep.Statistics.ProgressPercentage)

	// Ownership applies to reads too
	_, err = service.GetEnrollmentProgress(ctx, 5, 99)
	assert.ErrorIs(t, err, ErrNotFoundOrUnauthorized)
}

func TestOverallPercent_Rounding(t *testing.T) {
	// math.Round: half rounds away from zero
	assert.Equal(t, 0, overallPercent(0, 3))
	assert.Equal(t, 33, overallPercent(1, 3))
	assert.Equal(t, 67, overallPercent(2, 3))
	assert.Equal(t, 100, overallPercent(3, 3))
	assert.Equal(t, 13, overallPercent(1, 8)) // 12.5 -> 13
	assert.Equal(t, 50, overallPercent(1, 2))
	assert.Equal(t, 0, overallPercent(0, 0)) // empty course
}

func TestRecomputeEnrollment(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCourse(t, db, 10, 11, 12)
	service := NewService(db, StatusModeRecompute)

	for _, lessonID := range []uint{10, 11, 12} {
		_, err := service.MarkLessonComplete(ctx, 5, 7, lessonID)
		require.NoError(t, err)
	}

	// A lesson added later makes the stored aggregate stale
	newLesson := courseModels.Lesson{ModuleID: 2, Title: "Bonus", IsPublished: true}
	require.NoError(t, db.Create(&newLesson).Error)

	require.NoError(t, service.RecomputeEnrollment(ctx, 5))

	enrollment := getEnrollment(t, db, 5)
	assert.Equal(t, 75, enrollment.Progress)
	assert.Equal(t, 4, enrollment.TotalLessons)
	assert.Equal(t, 3, enrollment.CompletedLessons)
	// Monotone rule: COMPLETED stays
	assert.Equal(t, courseModels.EnrollmentCompleted, enrollment.Status)

	assert.ErrorIs(t, service.RecomputeEnrollment(ctx, 4242), ErrNotFoundOrUnauthorized)
}

func TestRecomputeEnrollment_LessonRemoved(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCourse(t, db, 10, 11, 12)
	service := NewService(db, StatusModeRecompute)

	for _, lessonID := range []uint{10, 11, 12} {
		_, err := service.MarkLessonComplete(ctx, 5, 7, lessonID)
		require.NoError(t, err)
	}

	// Soft-deleting a completed lesson shrinks both sides of the ratio
	require.NoError(t, db.Model(&courseModels.Lesson{}).Where("id = ?", 12).
		Updates(map[string]interface{}{"is_deleted": true, "is_published": false}).Error)

	require.NoError(t, service.RecomputeEnrollment(ctx, 5))

	enrollment := getEnrollment(t, db, 5)
	assert.Equal(t, 2, enrollment.TotalLessons)
	assert.Equal(t, 2, enrollment.CompletedLessons)
	assert.Equal(t, 100, enrollment.Progress)
	assert.Equal(t, courseModels.EnrollmentCompleted, enrollment.Status)
}
