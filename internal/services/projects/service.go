package projects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/appforge-ai/appforge-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrNotProjectOwner = errors.New("project belongs to another user")
	ErrNodeExists      = errors.New("file or folder already exists")
	ErrFileNotFound    = errors.New("file not found")
)

// Service owns project persistence: file trees, chat history, and version
// snapshots.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// AutoMigrate runs database migrations for project tables
func (s *Service) AutoMigrate() error {
	return s.db.AutoMigrate(
		&models.Project{},
		&models.ProjectFile{},
		&models.ChatMessage{},
		&models.ProjectVersion{},
	)
}

const starterAppComponent = `function App() {
  const [count, setCount] = React.useState(0);

  return (
    <div className="min-h-screen bg-gradient-to-br from-blue-50 to-indigo-100 flex items-center justify-center p-8">
      <div className="bg-white rounded-2xl shadow-xl p-8 max-w-md w-full">
        <h1 className="text-3xl font-bold text-gray-800 mb-6">Welcome to Your App</h1>
        <div className="space-y-4">
          <p className="text-gray-600">Click the button below to get started:</p>
          <button
            onClick={() => setCount(count + 1)}
            className="w-full px-6 py-3 bg-blue-600 text-white rounded-lg font-semibold hover:bg-blue-700 transition-colors"
          >
            Clicked {count} times
          </button>
        </div>
      </div>
    </div>
  );
}`

const starterButtonComponent = `function Button({ children, onClick, className = '' }) {
  return (
    <button
      onClick={onClick}
      className={` + "`px-4 py-2 bg-blue-600 text-white rounded-lg hover:bg-blue-700 transition-colors ${className}`" + `}
    >
      {children}
    </button>
  );
}`

const starterHelpers = `// Utility functions

const formatDate = (date) => {
  return new Date(date).toLocaleDateString();
};

const capitalizeFirst = (str) => {
  return str.charAt(0).toUpperCase() + str.slice(1);
};`

// DefaultStructure returns the file tree every new project starts with
func DefaultStructure() []models.ProjectFile {
	return []models.ProjectFile{
		{Name: "src", Path: "src", Type: models.FileTypeFolder},
		{Name: "App.jsx", Path: "src/App.jsx", Type: models.FileTypeFile, Language: "javascript", Content: starterAppComponent},
		{Name: "components", Path: "src/components", Type: models.FileTypeFolder},
		{Name: "Button.jsx", Path: "src/components/Button.jsx", Type: models.FileTypeFile, Language: "javascript", Content: starterButtonComponent},
		{Name: "utils", Path: "src/utils", Type: models.FileTypeFolder},
		{Name: "helpers.js", Path: "src/utils/helpers.js", Type: models.FileTypeFile, Language: "javascript", Content: starterHelpers},
	}
}

// Create builds a new project around a freshly generated App component
func (s *Service) Create(ctx context.Context, userID, prompt string, out *models.GenerateOutput) (*models.Project, string, error) {
	files := DefaultStructure()
	for i := range files {
		if files[i].Path == generationTarget(out) {
			files[i].Content = out.Code
		}
	}

	now := time.Now()
	project := models.Project{
		ID:               uuid.New().String(),
		UserID:           userID,
		Name:             fmt.Sprintf("Project %d", now.UnixMilli()),
		ActiveFile:       "src/App.jsx",
		TotalGenerations: 1,
		LastModified:     now,
		Files:            files,
	}

	const assistantMsg = "Created your project with a clean folder structure"
	project.ChatHistory = []models.ChatMessage{
		{Role: models.ChatRoleUser, Content: prompt, FilesModified: "src/App.jsx", CreditsUsed: 1},
		{Role: models.ChatRoleAssistant, Content: assistantMsg},
	}

	snapshot, err := marshalFiles(files)
	if err != nil {
		return nil, "", err
	}
	project.Versions = []models.ProjectVersion{
		{VersionNumber: 1, Description: "Initial generation", FilesJSON: snapshot},
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).
			Updates(map[string]any{
				"total_projects":    gorm.Expr("total_projects + 1"),
				"total_generations": gorm.Expr("total_generations + 1"),
			}).Error
	})
	if err != nil {
		return nil, "", err
	}

	return &project, assistantMsg, nil
}

func generationTarget(out *models.GenerateOutput) string {
	if out.FilePath != "" {
		return out.FilePath
	}
	return "src/App.jsx"
}

// ApplyGeneration folds a generation result into an existing project: the
// target file is updated or created, both chat turns are recorded, and a new
// version snapshot is taken.
func (s *Service) ApplyGeneration(ctx context.Context, userID, projectID, prompt string, out *models.GenerateOutput) (*models.Project, string, error) {
	project, err := s.Get(ctx, userID, projectID)
	if err != nil {
		return nil, "", err
	}

	target := generationTarget(out)
	assistantMsg := ""

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var file models.ProjectFile
		findErr := tx.Where("project_id = ? AND path = ? AND type = ?", projectID, target, models.FileTypeFile).
			First(&file).Error

		switch {
		case findErr == nil:
			if err := tx.Model(&file).Update("content", out.Code).Error; err != nil {
				return fmt.Errorf("failed to update file: %w", err)
			}
			assistantMsg = fmt.Sprintf("Updated %s", baseName(target))

		case errors.Is(findErr, gorm.ErrRecordNotFound) && out.IsNewFile:
			file = models.ProjectFile{
				ProjectID: projectID,
				Name:      out.NewFileName + ".jsx",
				Path:      target,
				Type:      models.FileTypeFile,
				Language:  "javascript",
				Content:   out.Code,
			}
			if err := tx.Create(&file).Error; err != nil {
				return fmt.Errorf("failed to create file: %w", err)
			}
			assistantMsg = fmt.Sprintf("Created new component: %s.jsx", out.NewFileName)

		case errors.Is(findErr, gorm.ErrRecordNotFound):
			return fmt.Errorf("%w: %s", ErrFileNotFound, target)

		default:
			return fmt.Errorf("failed to load file: %w", findErr)
		}

		chat := []models.ChatMessage{
			{ProjectID: projectID, Role: models.ChatRoleUser, Content: prompt, FilesModified: target, CreditsUsed: 1},
			{ProjectID: projectID, Role: models.ChatRoleAssistant, Content: assistantMsg},
		}
		if err := tx.Create(&chat).Error; err != nil {
			return fmt.Errorf("failed to record chat history: %w", err)
		}

		if err := s.snapshotVersion(tx, projectID, fmt.Sprintf("Edit: %s", baseName(target))); err != nil {
			return err
		}

		if err := tx.Model(project).Updates(map[string]any{
			"total_generations": gorm.Expr("total_generations + 1"),
			"last_modified":     time.Now(),
			"active_file":       target,
		}).Error; err != nil {
			return fmt.Errorf("failed to update project: %w", err)
		}

		return tx.Model(&models.User{}).Where("id = ?", userID).
			Update("total_generations", gorm.Expr("total_generations + 1")).Error
	})
	if err != nil {
		return nil, "", err
	}

	reloaded, err := s.Get(ctx, userID, projectID)
	if err != nil {
		return nil, "", err
	}
	return reloaded, assistantMsg, nil
}

// Get loads a project with its file tree and chat history, enforcing
// ownership
func (s *Service) Get(ctx context.Context, userID, projectID string) (*models.Project, error) {
	var project models.Project
	err := s.db.WithContext(ctx).
		Preload("Files").
		Preload("ChatHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&project, "id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if project.UserID != userID {
		return nil, ErrNotProjectOwner
	}
	return &project, nil
}

// List returns the user's projects, most recently modified first
func (s *Service) List(ctx context.Context, userID string) ([]models.Project, error) {
	var projects []models.Project
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_modified DESC").
		Limit(50).
		Find(&projects).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// Delete removes a project and everything hanging off it
func (s *Service) Delete(ctx context.Context, userID, projectID string) error {
	project, err := s.Get(ctx, userID, projectID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select(clause.Associations).Delete(project).Error; err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).
			Update("total_projects", gorm.Expr("total_projects - 1")).Error
	})
}

// SaveFile overwrites one file's content and snapshots a new version
func (s *Service) SaveFile(ctx context.Context, userID, projectID, path, content string) error {
	if _, err := s.Get(ctx, userID, projectID); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ProjectFile{}).
			Where("project_id = ? AND path = ? AND type = ?", projectID, path, models.FileTypeFile).
			Update("content", content)
		if result.Error != nil {
			return fmt.Errorf("failed to save file: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}

		if err := s.snapshotVersion(tx, projectID, fmt.Sprintf("Manual edit: %s", baseName(path))); err != nil {
			return err
		}

		return tx.Model(&models.Project{}).Where("id = ?", projectID).
			Update("last_modified", time.Now()).Error
	})
}

// CreateNode adds a file or folder to the project tree
func (s *Service) CreateNode(ctx context.Context, userID, projectID, name, path string, nodeType models.FileType) error {
	if _, err := s.Get(ctx, userID, projectID); err != nil {
		return err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.ProjectFile{}).
		Where("project_id = ? AND path = ?", projectID, path).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check path: %w", err)
	}
	if count > 0 {
		return ErrNodeExists
	}

	node := models.ProjectFile{
		ProjectID: projectID,
		Name:      name,
		Path:      path,
		Type:      nodeType,
	}
	if nodeType == models.FileTypeFile {
		node.Language = "javascript"
		node.Content = "// Start coding..."
	}

	if err := s.db.WithContext(ctx).Create(&node).Error; err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	return nil
}

// DeleteNode removes a file, or a folder together with everything under it
func (s *Service) DeleteNode(ctx context.Context, userID, projectID, path string) error {
	if _, err := s.Get(ctx, userID, projectID); err != nil {
		return err
	}

	return s.db.WithContext(ctx).
		Where("project_id = ? AND (path = ? OR path LIKE ?)", projectID, path, path+"/%").
		Delete(&models.ProjectFile{}).Error
}

// Files returns the project's current file tree
func (s *Service) Files(ctx context.Context, projectID string) ([]models.ProjectFile, error) {
	var files []models.ProjectFile
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("path ASC").
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load files: %w", err)
	}
	return files, nil
}

// SetDeployment records where a published project is served from
func (s *Service) SetDeployment(ctx context.Context, projectID, slug, url string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ?", projectID).
		Updates(map[string]any{
			"deploy_slug": slug,
			"deploy_url":  url,
			"deployed_at": now,
		}).Error
}

// snapshotVersion captures the current file tree as the next version
func (s *Service) snapshotVersion(tx *gorm.DB, projectID, description string) error {
	var files []models.ProjectFile
	if err := tx.Where("project_id = ?", projectID).Find(&files).Error; err != nil {
		return fmt.Errorf("failed to load files for snapshot: %w", err)
	}

	snapshot, err := marshalFiles(files)
	if err != nil {
		return err
	}

	var latest int
	row := tx.Model(&models.ProjectVersion{}).
		Where("project_id = ?", projectID).
		Select("COALESCE(MAX(version_number), 0)").
		Row()
	if err := row.Scan(&latest); err != nil {
		return fmt.Errorf("failed to read latest version: %w", err)
	}

	version := models.ProjectVersion{
		ProjectID:     projectID,
		VersionNumber: latest + 1,
		Description:   description,
		FilesJSON:     snapshot,
	}
	if err := tx.Create(&version).Error; err != nil {
		return fmt.Errorf("failed to snapshot version: %w", err)
	}
	return nil
}

func marshalFiles(files []models.ProjectFile) (string, error) {
	data, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("failed to marshal file snapshot: %w", err)
	}
	return string(data), nil
}

func baseName(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// ChatContext renders the last few chat turns for prompt context
func ChatContext(history []models.ChatMessage, limit int) string {
	if limit <= 0 {
		limit = 6
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	lines := make([]string, 0, len(history))
	for _, msg := range history {
		role := "User"
		if msg.Role == models.ChatRoleAssistant {
			role = "Assistant"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, msg.Content))
	}
	return strings.Join(lines, "\n\n")
}

// FileStructure renders a truncated view of every file for prompt context
func FileStructure(files []models.ProjectFile) string {
	lines := make([]string, 0, len(files))
	for _, f := range files {
		if f.Type != models.FileTypeFile {
			continue
		}
		content := f.Content
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		lines = append(lines, fmt.Sprintf("%s: %s", f.Path, content))
	}
	return strings.Join(lines, "\n\n")
}
