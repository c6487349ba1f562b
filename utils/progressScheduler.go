package utils

import (
	"context"
	"lms/database"
	courseModels "lms/models/course"
	"lms/services/progress"
	"log"

	"github.com/robfig/cron/v3"
)

// InitializeProgressScheduler sets up the nightly enrollment reconciliation job
func InitializeProgressScheduler(service *progress.Service) {
	log.Println("[PROGRESS-SCHEDULER] Initializing progress scheduler...")

	c := cron.New()

	// Run daily at 3 AM to reconcile enrollment aggregates
	c.AddFunc("0 3 * * *", func() {
		log.Println("[PROGRESS-SCHEDULER] Running nightly enrollment reconciliation...")
		ReconcileEnrollments(service)
	})

	c.Start()
	log.Println("[PROGRESS-SCHEDULER] Progress scheduler started - runs daily at 3 AM")
}

// ReconcileEnrollments recomputes progress and status for every active
// enrollment. Lessons added after a student finished a course, or removed
// afterwards, leave stored aggregates stale; this rebuilds them from the
// lesson progress rows.
func ReconcileEnrollments(service *progress.Service) {
	db := database.Database.Db

	var enrollmentIDs []uint
	if err := db.Model(&courseModels.Enrollment{}).
		Where("is_deleted = ?", false).
		Pluck("id", &enrollmentIDs).Error; err != nil {
		log.Printf("[PROGRESS-SCHEDULER] Error fetching enrollments: %v", err)
		return
	}

	log.Printf("[PROGRESS-SCHEDULER] Reconciling %d enrollments", len(enrollmentIDs))

	reconciled := 0
	for _, id := range enrollmentIDs {
		if err := service.RecomputeEnrollment(context.Background(), id); err != nil {
			log.Printf("[PROGRESS-SCHEDULER] Error reconciling enrollment %d: %v", id, err)
			continue
		}
		reconciled++
	}

	log.Printf("[PROGRESS-SCHEDULER] Reconciliation finished: %d/%d enrollments updated", reconciled, len(enrollmentIDs))
}
