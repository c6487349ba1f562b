package course

import "gorm.io/gorm"

// Lesson represents a single lesson within a module
type Lesson struct {
	gorm.Model
	ModuleID    uint   `json:"module_id" gorm:"index;not null"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ContentType string `json:"content_type" gorm:"default:'VIDEO'"` // VIDEO, TEXT, PDF
	VideoURL    string `json:"video_url"`                           // For VIDEO type
	TextContent string `json:"text_content" gorm:"type:text"`       // For TEXT type
	FileURL     string `json:"file_url"`                            // For PDF type
	Duration    int    `json:"duration" gorm:"default:0"`           // duration in seconds
	OrderIndex  int    `json:"order_index" gorm:"default:0"`        // Order within module
	IsPublished bool   `json:"is_published" gorm:"default:false"`
	IsDeleted   bool   `gorm:"default:false"`
}
