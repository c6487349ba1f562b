package progress

import (
	"context"
	"errors"
	"math"
	"time"

	courseModels "lms/models/course"

	"gorm.io/gorm"
)

// StatusMode controls how partial progress affects Enrollment.Status.
type StatusMode string

const (
	// StatusModeStrict keeps the enrollment's current status on partial
	// progress unless it is already IN_PROGRESS. A NOT_STARTED enrollment
	// stays NOT_STARTED until it reaches 100%.
	StatusModeStrict StatusMode = "strict"

	// StatusModeRecompute always sets IN_PROGRESS while 0 < progress < 100.
	StatusModeRecompute StatusMode = "recompute"
)

// Service owns all lesson-progress and enrollment-aggregate mutations.
// Every write runs inside one transaction: the lesson row upsert and the
// enrollment recompute commit together or not at all.
type Service struct {
	db         *gorm.DB
	statusMode StatusMode
}

func NewService(db *gorm.DB, statusMode StatusMode) *Service {
	if statusMode != StatusModeStrict {
		statusMode = StatusModeRecompute
	}
	return &Service{db: db, statusMode: statusMode}
}

// UpdateInput carries the optional fields of a progress update. A nil
// Completed defaults to true (opening the endpoint marks the lesson done
// unless the client says otherwise). Nil LastTime/LastPage leave the
// stored checkpoint values untouched.
type UpdateInput struct {
	Completed *bool
	LastTime  *float64
	LastPage  *string
}

// Result is returned by UpdateProgress and MarkLessonComplete.
type Result struct {
	LessonProgress   *courseModels.LessonProgress `json:"lesson_progress"`
	OverallProgress  int                          `json:"overall_progress"`
	CompletedLessons int                          `json:"completed_lessons"`
	TotalLessons     int                          `json:"total_lessons"`

	// JustCompleted is true only on the call that moved the enrollment
	// into COMPLETED, so notifications fire once.
	JustCompleted bool `json:"-"`
}

// Statistics for an enrollment, derived from its lesson progress rows.
type Statistics struct {
	TotalLessons       int `json:"total_lessons"`
	CompletedLessons   int `json:"completed_lessons"`
	ProgressPercentage int `json:"progress_percentage"`
}

// LessonProgressEntry is one lesson of the course paired with the
// student's recorded state for it.
type LessonProgressEntry struct {
	LessonID    uint     `json:"lesson_id"`
	LessonTitle string   `json:"lesson_title"`
	Completed   bool     `json:"completed"`
	LastTime    *float64 `json:"last_time"`
}

// EnrollmentProgress is the read model returned by GetEnrollmentProgress.
type EnrollmentProgress struct {
	Enrollment     *courseModels.Enrollment `json:"enrollment"`
	Course         *courseModels.Course     `json:"course"`
	LessonProgress []LessonProgressEntry    `json:"lesson_progress"`
	Statistics     Statistics               `json:"statistics"`
}

// UpdateProgress upserts the (enrollment, lesson) progress row and
// recomputes the enrollment's aggregate percentage and status in one
// transaction. The enrollment must belong to userID and the lesson must
// belong to the enrollment's course.
func (s *Service) UpdateProgress(ctx context.Context, enrollmentID, userID, lessonID uint, in UpdateInput) (*Result, error) {
	completed := true
	if in.Completed != nil {
		completed = *in.Completed
	}

	var result *Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enrollment, err := findEnrollment(tx, enrollmentID, userID)
		if err != nil {
			return err
		}

		if err := checkLessonInCourse(tx, lessonID, enrollment.CourseID); err != nil {
			return err
		}

		lp, err := upsertLessonProgress(tx, enrollmentID, lessonID, func(lp *courseModels.LessonProgress) {
			lp.Completed = completed
			if in.LastTime != nil {
				lp.LastTime = in.LastTime
			}
			if in.LastPage != nil {
				lp.LastPage = in.LastPage
			}
		})
		if err != nil {
			return err
		}

		totalLessons, err := countCourseLessons(tx, enrollment.CourseID)
		if err != nil {
			return err
		}

		completedLessons, err := countCompletedLessons(tx, enrollmentID, enrollment.CourseID)
		if err != nil {
			return err
		}

		percent := overallPercent(completedLessons, totalLessons)
		justCompleted := s.applyStatus(enrollment, percent)

		enrollment.Progress = percent
		enrollment.CompletedLessons = int(completedLessons)
		enrollment.TotalLessons = int(totalLessons)
		if err := tx.Save(enrollment).Error; err != nil {
			return err
		}

		result = &Result{
			LessonProgress:   lp,
			OverallProgress:  percent,
			CompletedLessons: int(completedLessons),
			TotalLessons:     int(totalLessons),
			JustCompleted:    justCompleted,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkLessonComplete marks a single lesson as completed.
func (s *Service) MarkLessonComplete(ctx context.Context, enrollmentID, userID, lessonID uint) (*Result, error) {
	completed := true
	return s.UpdateProgress(ctx, enrollmentID, userID, lessonID, UpdateInput{Completed: &completed})
}

// UpdateTimeProgress persists a playback-position checkpoint. It does not
// touch the completed flag of an existing row and never recomputes the
// enrollment aggregate, so clients can call it every few seconds cheaply.
func (s *Service) UpdateTimeProgress(ctx context.Context, enrollmentID, userID, lessonID uint, lastTime float64) (*courseModels.LessonProgress, error) {
	var result *courseModels.LessonProgress
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enrollment, err := findEnrollment(tx, enrollmentID, userID)
		if err != nil {
			return err
		}

		if err := checkLessonInCourse(tx, lessonID, enrollment.CourseID); err != nil {
			return err
		}

		lp, err := upsertLessonProgress(tx, enrollmentID, lessonID, func(lp *courseModels.LessonProgress) {
			lp.LastTime = &lastTime
		})
		if err != nil {
			return err
		}

		result = lp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetEnrollmentProgress loads the enrollment, its course hierarchy and all
// lesson progress rows, and derives per-lesson state plus statistics from
// the loaded rows.
func (s *Service) GetEnrollmentProgress(ctx context.Context, enrollmentID, userID uint) (*EnrollmentProgress, error) {
	db := s.db.WithContext(ctx)

	enrollment, err := findEnrollment(db, enrollmentID, userID)
	if err != nil {
		return nil, err
	}

	var crs courseModels.Course
	if err := db.Where("id = ? AND is_deleted = ?", enrollment.CourseID, false).First(&crs).Error; err != nil {
		return nil, err
	}

	var modules []courseModels.Module
	if err := db.Where("course_id = ? AND is_deleted = ?", crs.ID, false).
		Order("order_index asc").Find(&modules).Error; err != nil {
		return nil, err
	}

	moduleIDs := make([]uint, len(modules))
	for i, mod := range modules {
		moduleIDs[i] = mod.ID
	}

	var lessons []courseModels.Lesson
	if len(moduleIDs) > 0 {
		if err := db.Where("module_id IN ? AND is_deleted = ? AND is_published = ?", moduleIDs, false, true).
			Order("module_id asc, order_index asc").Find(&lessons).Error; err != nil {
			return nil, err
		}
	}

	var rows []courseModels.LessonProgress
	if err := db.Where("enrollment_id = ? AND is_deleted = ?", enrollmentID, false).Find(&rows).Error; err != nil {
		return nil, err
	}

	progressByLesson := make(map[uint]*courseModels.LessonProgress, len(rows))
	for i := range rows {
		progressByLesson[rows[i].LessonID] = &rows[i]
	}

	entries := make([]LessonProgressEntry, len(lessons))
	completedCount := 0
	for i, lesson := range lessons {
		entry := LessonProgressEntry{
			LessonID:    lesson.ID,
			LessonTitle: lesson.Title,
		}
		if lp, ok := progressByLesson[lesson.ID]; ok {
			entry.Completed = lp.Completed
			entry.LastTime = lp.LastTime
		}
		if entry.Completed {
			completedCount++
		}
		entries[i] = entry
	}

	return &EnrollmentProgress{
		Enrollment:     enrollment,
		Course:         &crs,
		LessonProgress: entries,
		Statistics: Statistics{
			TotalLessons:       len(lessons),
			CompletedLessons:   completedCount,
			ProgressPercentage: overallPercent(int64(completedCount), int64(len(lessons))),
		},
	}, nil
}

// RecomputeEnrollment rebuilds one enrollment's aggregate from its lesson
// progress rows, regardless of owner. Used by the reconciliation job to
// heal drift after lessons are added to or removed from a course. The
// monotone status rule still applies: COMPLETED is never taken back.
func (s *Service) RecomputeEnrollment(ctx context.Context, enrollmentID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var enrollment courseModels.Enrollment
		if err := tx.Where("id = ? AND is_deleted = ?", enrollmentID, false).First(&enrollment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFoundOrUnauthorized
			}
			return err
		}

		totalLessons, err := countCourseLessons(tx, enrollment.CourseID)
		if err != nil {
			return err
		}

		completedLessons, err := countCompletedLessons(tx, enrollment.ID, enrollment.CourseID)
		if err != nil {
			return err
		}

		percent := overallPercent(completedLessons, totalLessons)
		s.applyStatus(&enrollment, percent)
		enrollment.Progress = percent
		enrollment.CompletedLessons = int(completedLessons)
		enrollment.TotalLessons = int(totalLessons)
		return tx.Save(&enrollment).Error
	})
}

// findEnrollment looks the enrollment up by id AND owner in one query, so
// a miss never reveals whether the enrollment exists.
func findEnrollment(tx *gorm.DB, enrollmentID, userID uint) (*courseModels.Enrollment, error) {
	var enrollment courseModels.Enrollment
	err := tx.Where("id = ? AND user_id = ? AND is_deleted = ?", enrollmentID, userID, false).First(&enrollment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFoundOrUnauthorized
		}
		return nil, err
	}
	return &enrollment, nil
}

// checkLessonInCourse verifies the lesson is a published, non-deleted
// lesson of the course. Drafts are invisible to students, so they fail
// the membership check like foreign lessons do.
func checkLessonInCourse(tx *gorm.DB, lessonID, courseID uint) error {
	var count int64
	err := tx.Model(&courseModels.Lesson{}).
		Joins("JOIN modules ON modules.id = lessons.module_id").
		Where("lessons.id = ? AND modules.course_id = ? AND lessons.is_deleted = ? AND modules.is_deleted = ? AND lessons.is_published = ?",
			lessonID, courseID, false, false, true).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrLessonNotInCourse
	}
	return nil
}

// upsertLessonProgress finds-or-creates the row for (enrollment, lesson)
// and applies mutate to it. Runs inside the caller's transaction so the
// read and the write cannot interleave with a concurrent request.
func upsertLessonProgress(tx *gorm.DB, enrollmentID, lessonID uint, mutate func(*courseModels.LessonProgress)) (*courseModels.LessonProgress, error) {
	var lp courseModels.LessonProgress
	err := tx.Where("enrollment_id = ? AND lesson_id = ? AND is_deleted = ?", enrollmentID, lessonID, false).First(&lp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		lp = courseModels.LessonProgress{
			EnrollmentID: enrollmentID,
			LessonID:     lessonID,
		}
		mutate(&lp)
		if err := tx.Create(&lp).Error; err != nil {
			return nil, err
		}
		return &lp, nil
	}
	if err != nil {
		return nil, err
	}
	mutate(&lp)
	if err := tx.Save(&lp).Error; err != nil {
		return nil, err
	}
	return &lp, nil
}

func countCourseLessons(tx *gorm.DB, courseID uint) (int64, error) {
	var total int64
	err := tx.Model(&courseModels.Lesson{}).
		Joins("JOIN modules ON modules.id = lessons.module_id").
		Where("modules.course_id = ? AND modules.is_deleted = ? AND lessons.is_deleted = ? AND lessons.is_published = ?",
			courseID, false, false, true).
		Count(&total).Error
	return total, err
}

// countCompletedLessons counts completed rows over the exact lesson set
// countCourseLessons uses. Rows for draft or since-deleted lessons never
// enter the numerator, keeping the percentage within 0-100.
func countCompletedLessons(tx *gorm.DB, enrollmentID, courseID uint) (int64, error) {
	var completed int64
	err := tx.Model(&courseModels.LessonProgress{}).
		Joins("JOIN lessons ON lessons.id = lesson_progresses.lesson_id").
		Joins("JOIN modules ON modules.id = lessons.module_id").
		Where("lesson_progresses.enrollment_id = ? AND lesson_progresses.completed = ? AND lesson_progresses.is_deleted = ?",
			enrollmentID, true, false).
		Where("modules.course_id = ? AND modules.is_deleted = ? AND lessons.is_deleted = ? AND lessons.is_published = ?",
			courseID, false, false, true).
		Count(&completed).Error
	return completed, err
}

// overallPercent rounds half away from zero: 1/3 -> 33, 2/3 -> 67.
func overallPercent(completed, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// applyStatus moves the enrollment's status forward for the new percent
// and reports whether this call completed the course. COMPLETED is
// terminal regardless of mode.
func (s *Service) applyStatus(enrollment *courseModels.Enrollment, percent int) bool {
	if enrollment.Status == courseModels.EnrollmentCompleted {
		return false
	}

	if percent >= 100 {
		enrollment.Status = courseModels.EnrollmentCompleted
		now := time.Now()
		enrollment.CompletedAt = &now
		return true
	}

	if percent > 0 {
		if s.statusMode == StatusModeRecompute {
			enrollment.Status = courseModels.EnrollmentInProgress
		}
		// strict mode: keep whatever status the enrollment already had,
		// matching the legacy behavior where only an enrollment that was
		// already IN_PROGRESS stays IN_PROGRESS.
	}
	return false
}
