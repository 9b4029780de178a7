package models

import "time"

type FileType string

const (
	FileTypeFile   FileType = "file"
	FileTypeFolder FileType = "folder"
)

// Project is a generated multi-file web application
type Project struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	UserID     string    `gorm:"index;not null" json:"user_id"`
	Name       string    `gorm:"not null" json:"name"`
	ActiveFile string    `gorm:"default:src/App.jsx" json:"active_file"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	TotalGenerations int64      `gorm:"not null;default:0" json:"total_generations"`
	LastModified     time.Time  `json:"last_modified"`
	DeploySlug       string     `gorm:"index" json:"deploy_slug,omitzero"`
	DeployURL        string     `json:"deploy_url,omitzero"`
	DeployedAt       *time.Time `json:"deployed_at,omitempty"`

	Files       []ProjectFile    `gorm:"constraint:OnDelete:CASCADE" json:"files"`
	ChatHistory []ChatMessage    `gorm:"constraint:OnDelete:CASCADE" json:"chat_history,omitempty"`
	Versions    []ProjectVersion `gorm:"constraint:OnDelete:CASCADE" json:"versions,omitempty"`
}

// ProjectFile is one node of a project's file tree. Folders carry no content.
type ProjectFile struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID string    `gorm:"index;not null" json:"-"`
	Name      string    `gorm:"not null" json:"name"`
	Path      string    `gorm:"index;not null" json:"path"`
	Type      FileType  `gorm:"default:file" json:"type"`
	Language  string    `gorm:"default:javascript" json:"language,omitzero"`
	Content   string    `json:"content,omitzero"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of a project's prompt history
type ChatMessage struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID     string    `gorm:"index;not null" json:"-"`
	Role          ChatRole  `gorm:"not null" json:"role"`
	Content       string    `gorm:"not null" json:"content"`
	FilesModified string    `json:"files_modified,omitzero"`
	CreditsUsed   int       `gorm:"default:0" json:"credits_used,omitzero"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ProjectVersion snapshots the file tree after each edit
type ProjectVersion struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID     string    `gorm:"index;not null" json:"-"`
	VersionNumber int       `gorm:"not null" json:"version_number"`
	Description   string    `json:"description,omitzero"`
	FilesJSON     string    `json:"-"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
