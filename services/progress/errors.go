package progress

import "errors"

// Domain errors surfaced to the API layer. ErrNotFoundOrUnauthorized
// deliberately covers both "no such enrollment" and "not your enrollment"
// so callers cannot probe for other users' enrollment IDs.
var (
	ErrNotFoundOrUnauthorized = errors.New("enrollment not found")
	ErrLessonNotInCourse      = errors.New("lesson does not belong to this course")
)
