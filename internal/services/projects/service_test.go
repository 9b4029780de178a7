package projects

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/appforge-ai/appforge-backend/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "projects.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("failed to migrate users: %v", err)
	}

	svc := NewService(db)
	if err := svc.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	user := models.User{ID: "user-1", Name: "Ada", Email: "ada@example.com", PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	return svc
}

func createProject(t *testing.T, svc *Service) *models.Project {
	t.Helper()
	project, _, err := svc.Create(context.Background(), "user-1", "build a counter", &models.GenerateOutput{
		Code:     "function App() { return <div>counter</div>; }",
		FilePath: "src/App.jsx",
	})
	if err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	return project
}

func TestCreate(t *testing.T) {
	svc := newTestService(t)
	project := createProject(t, svc)

	if project.ActiveFile != "src/App.jsx" {
		t.Errorf("expected active file src/App.jsx, got %s", project.ActiveFile)
	}
	if len(project.Files) != len(DefaultStructure()) {
		t.Errorf("expected %d nodes, got %d", len(DefaultStructure()), len(project.Files))
	}

	var app *models.ProjectFile
	for i := range project.Files {
		if project.Files[i].Path == "src/App.jsx" {
			app = &project.Files[i]
		}
	}
	if app == nil {
		t.Fatal("expected src/App.jsx in the tree")
	}
	if !strings.Contains(app.Content, "counter") {
		t.Errorf("expected generated code in App.jsx, got %q", app.Content)
	}

	if len(project.ChatHistory) != 2 {
		t.Errorf("expected both chat turns recorded, got %d", len(project.ChatHistory))
	}
	if len(project.Versions) != 1 || project.Versions[0].VersionNumber != 1 {
		t.Errorf("expected initial version snapshot, got %+v", project.Versions)
	}
}

func TestApplyGeneration(t *testing.T) {
	t.Run("updates the target file", func(t *testing.T) {
		svc := newTestService(t)
		project := createProject(t, svc)

		reloaded, msg, err := svc.ApplyGeneration(context.Background(), "user-1", project.ID, "make it red", &models.GenerateOutput{
			Code:     "function App() { return <div className=\"text-red-500\">counter</div>; }",
			FilePath: "src/App.jsx",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(msg, "Updated App.jsx") {
			t.Errorf("unexpected assistant message %q", msg)
		}
		if reloaded.TotalGenerations != 2 {
			t.Errorf("expected 2 generations, got %d", reloaded.TotalGenerations)
		}
		if len(reloaded.ChatHistory) != 4 {
			t.Errorf("expected 4 chat turns, got %d", len(reloaded.ChatHistory))
		}
	})

	t.Run("creates a new component file", func(t *testing.T) {
		svc := newTestService(t)
		project := createProject(t, svc)

		reloaded, msg, err := svc.ApplyGeneration(context.Background(), "user-1", project.ID, "add a navbar", &models.GenerateOutput{
			Code:        "function App() { return <nav/>; }",
			FilePath:    "src/components/Navbar.jsx",
			IsNewFile:   true,
			NewFileName: "Navbar",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(msg, "Navbar.jsx") {
			t.Errorf("unexpected assistant message %q", msg)
		}
		if reloaded.ActiveFile != "src/components/Navbar.jsx" {
			t.Errorf("expected active file to follow the new component, got %s", reloaded.ActiveFile)
		}

		found := false
		for _, f := range reloaded.Files {
			if f.Path == "src/components/Navbar.jsx" {
				found = true
			}
		}
		if !found {
			t.Error("expected Navbar.jsx in the tree")
		}
	})

	t.Run("another user's project is refused", func(t *testing.T) {
		svc := newTestService(t)
		project := createProject(t, svc)

		_, _, err := svc.ApplyGeneration(context.Background(), "intruder", project.ID, "x", &models.GenerateOutput{Code: "x"})
		if !errors.Is(err, ErrNotProjectOwner) {
			t.Fatalf("expected ErrNotProjectOwner, got %v", err)
		}
	})
}

func TestSaveFile(t *testing.T) {
	svc := newTestService(t)
	project := createProject(t, svc)
	ctx := context.Background()

	if err := svc.SaveFile(ctx, "user-1", project.ID, "src/App.jsx", "function App() { return null; }"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reloaded, err := svc.Get(ctx, "user-1", project.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, f := range reloaded.Files {
		if f.Path == "src/App.jsx" && !strings.Contains(f.Content, "return null") {
			t.Errorf("expected saved content, got %q", f.Content)
		}
	}

	if err := svc.SaveFile(ctx, "user-1", project.ID, "src/Missing.jsx", "x"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got %v", err)
	}
}

func TestNodes(t *testing.T) {
	svc := newTestService(t)
	project := createProject(t, svc)
	ctx := context.Background()

	if err := svc.CreateNode(ctx, "user-1", project.ID, "Card.jsx", "src/components/Card.jsx", models.FileTypeFile); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.CreateNode(ctx, "user-1", project.ID, "Card.jsx", "src/components/Card.jsx", models.FileTypeFile); !errors.Is(err, ErrNodeExists) {
		t.Errorf("expected ErrNodeExists, got %v", err)
	}

	// Deleting a folder removes its children too
	if err := svc.DeleteNode(ctx, "user-1", project.ID, "src/components"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	files, err := svc.Files(ctx, project.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, f := range files {
		if strings.HasPrefix(f.Path, "src/components") {
			t.Errorf("expected components subtree removed, found %s", f.Path)
		}
	}
}

func TestListAndDelete(t *testing.T) {
	svc := newTestService(t)
	project := createProject(t, svc)
	ctx := context.Background()

	projects, err := svc.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("expected one project, got %d", len(projects))
	}

	if err := svc.Delete(ctx, "user-1", project.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Get(ctx, "user-1", project.ID); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestChatContext(t *testing.T) {
	history := []models.ChatMessage{
		{Role: models.ChatRoleUser, Content: "one"},
		{Role: models.ChatRoleAssistant, Content: "two"},
		{Role: models.ChatRoleUser, Content: "three"},
	}

	got := ChatContext(history, 2)
	if strings.Contains(got, "one") {
		t.Error("expected oldest turn dropped")
	}
	if !strings.Contains(got, "Assistant: two") || !strings.Contains(got, "User: three") {
		t.Errorf("unexpected context %q", got)
	}
}

func TestFileStructure(t *testing.T) {
	files := []models.ProjectFile{
		{Path: "src", Type: models.FileTypeFolder},
		{Path: "src/App.jsx", Type: models.FileTypeFile, Content: strings.Repeat("x", 300)},
	}

	got := FileStructure(files)
	if strings.Contains(got, "src:") {
		t.Error("expected folders excluded")
	}
	if !strings.Contains(got, "...") {
		t.Error("expected long content truncated")
	}
}
