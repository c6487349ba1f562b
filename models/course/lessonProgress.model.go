package course

import "gorm.io/gorm"

// LessonProgress tracks a user's completion and playback position for one
// lesson within one enrollment. At most one row exists per
// (enrollment_id, lesson_id) pair; the progress service upserts it.
type LessonProgress struct {
	gorm.Model
	EnrollmentID uint     `json:"enrollment_id" gorm:"uniqueIndex:idx_enrollment_lesson;not null"`
	LessonID     uint     `json:"lesson_id" gorm:"uniqueIndex:idx_enrollment_lesson;not null"`
	Completed    bool     `json:"completed" gorm:"default:false"`
	LastTime     *float64 `json:"last_time"` // playback position in seconds
	LastPage     *string  `json:"last_page"` // reader position for TEXT/PDF lessons
	IsDeleted    bool     `gorm:"default:false"`
}
