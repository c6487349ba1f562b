package utils

import (
	"fmt"
	"lms/config"
	"lms/database"
	"lms/models"
	courseModels "lms/models/course"
	"log"
	"net/smtp"

	"github.com/go-resty/resty/v2"
)

// NotifyCourseCompleted fires the completion webhook and email for an
// enrollment that just reached COMPLETED. Called in a goroutine after the
// progress transaction commits; failures are logged and never bubble up.
func NotifyCourseCompleted(userID, enrollmentID uint) {
	cfg := config.AppConfig
	if cfg == nil || (cfg.CompletionWebhookURL == "" && cfg.EmailSender == "") {
		return
	}

	db := database.Database.Db
	if db == nil {
		return
	}

	var enrollment courseModels.Enrollment
	if err := db.Where("id = ? AND is_deleted = ?", enrollmentID, false).First(&enrollment).Error; err != nil {
		log.Printf("[NOTIFY] Enrollment %d not found for completion notification: %v", enrollmentID, err)
		return
	}

	var course courseModels.Course
	if err := db.Where("id = ? AND is_deleted = ?", enrollment.CourseID, false).First(&course).Error; err != nil {
		log.Printf("[NOTIFY] Course %d not found for completion notification: %v", enrollment.CourseID, err)
		return
	}

	var user models.User
	if err := db.Where("id = ? AND is_deleted = ?", userID, false).First(&user).Error; err != nil {
		log.Printf("[NOTIFY] User %d not found for completion notification: %v", userID, err)
		return
	}

	if cfg.CompletionWebhookURL != "" {
		sendCompletionWebhook(cfg.CompletionWebhookURL, &user, &course, &enrollment)
	}

	if cfg.EmailSender != "" && user.Email != "" {
		sendCompletionEmail(&user, &course)
	}
}

func sendCompletionWebhook(url string, user *models.User, course *courseModels.Course, enrollment *courseModels.Enrollment) {
	client := resty.New()

	resp, err := client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"event":         "course.completed",
			"user_id":       user.ID,
			"enrollment_id": enrollment.ID,
			"course_id":     course.ID,
			"course_title":  course.Title,
			"completed_at":  enrollment.CompletedAt,
		}).
		Post(url)
	if err != nil {
		log.Printf("[NOTIFY] Completion webhook failed for enrollment %d: %v", enrollment.ID, err)
		return
	}

	if resp.StatusCode() >= 300 {
		log.Printf("[NOTIFY] Completion webhook returned %d for enrollment %d", resp.StatusCode(), enrollment.ID)
		return
	}

	log.Printf("[NOTIFY] Completion webhook delivered for enrollment %d", enrollment.ID)
}

func sendCompletionEmail(user *models.User, course *courseModels.Course) {
	cfg := config.AppConfig

	subject := fmt.Sprintf("Congratulations! You completed %s", course.Title)
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\nYou have completed all lessons of \"%s\". Great work!\r\n",
		user.Name, course.Title,
	)
	msg := []byte(
		"From: " + cfg.EmailSender + "\r\n" +
			"To: " + user.Email + "\r\n" +
			"Subject: " + subject + "\r\n\r\n" +
			body,
	)

	auth := smtp.PlainAuth("", cfg.EmailSender, cfg.SMTPPassword, cfg.SMTPHost)
	addr := cfg.SMTPHost + ":" + cfg.SMTPPort

	if err := smtp.SendMail(addr, auth, cfg.EmailSender, []string{user.Email}, msg); err != nil {
		log.Printf("[NOTIFY] Completion email to %s failed: %v", user.Email, err)
		return
	}

	log.Printf("[NOTIFY] Completion email sent to %s", user.Email)
}
