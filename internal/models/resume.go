package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type Resume struct {
	ID    uint   `gorm:"column:id;primaryKey" json:"id"`
	Title string `gorm:"column:title;type:text" json:"title"`

	// Structured resume content (sections, entries); shape is owned by the
	// front end and treated as opaque JSON here.
	Content datatypes.JSON `gorm:"column:content;type:jsonb" json:"content"`

	Skills pq.StringArray `gorm:"column:skills;type:text[]" json:"skills,omitempty"`

	OriginalFilename string `gorm:"column:original_filename;type:text" json:"original_filename,omitempty"`
	FilePath         string `gorm:"column:file_path;type:text" json:"file_path,omitempty"`

	OwnerID uint `gorm:"column:owner_id;index" json:"owner_id"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Resume) TableName() string { return "resumes" }
