package deploy

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/appforge-ai/appforge-backend/internal/models"
	"github.com/appforge-ai/appforge-backend/internal/services/projects"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDeploy(t *testing.T) (*Service, *models.Project) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "deploy.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("failed to migrate users: %v", err)
	}

	projectService := projects.NewService(db)
	if err := projectService.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := db.Create(&models.User{ID: "user-1", Name: "Ada", Email: "ada@example.com", PasswordHash: "x"}).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	project, _, err := projectService.Create(context.Background(), "user-1", "counter", &models.GenerateOutput{
		Code:     "function App() { return <div>counter</div>; }",
		FilePath: "src/App.jsx",
	})
	if err != nil {
		t.Fatalf("failed to create project: %v", err)
	}

	svc := NewService(projectService, t.TempDir(), "https://api.example.com/")
	return svc, project
}

func TestPublish(t *testing.T) {
	svc, project := newTestDeploy(t)
	ctx := context.Background()

	code := "function App() { return <div>live</div>; }"
	result, err := svc.Publish(ctx, "user-1", project.ID, code)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Slug == "" {
		t.Fatal("expected a deploy slug")
	}
	if !strings.HasPrefix(result.URL, "https://api.example.com/deploys/") {
		t.Errorf("unexpected deploy URL %s", result.URL)
	}

	page, err := svc.Bundle(result.Slug)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{code, "react.production.min.js", "babel.min.js", "cdn.tailwindcss.com", "root.render(<App />)"} {
		if !strings.Contains(string(page), want) {
			t.Errorf("expected bundle to contain %q", want)
		}
	}

	// Redeploying keeps the slug, so shared links survive
	again, err := svc.Publish(ctx, "user-1", project.ID, code)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Slug != result.Slug {
		t.Errorf("expected stable slug %s, got %s", result.Slug, again.Slug)
	}
}

func TestPublishOwnership(t *testing.T) {
	svc, project := newTestDeploy(t)

	_, err := svc.Publish(context.Background(), "intruder", project.ID, "function App() {}")
	if !errors.Is(err, projects.ErrNotProjectOwner) {
		t.Fatalf("expected ErrNotProjectOwner, got %v", err)
	}
}

func TestBundle(t *testing.T) {
	svc, _ := newTestDeploy(t)

	cases := []string{"", "nope", "../etc", "a/b", "a.b"}
	for _, slug := range cases {
		if _, err := svc.Bundle(slug); !errors.Is(err, ErrDeploymentNotFound) {
			t.Errorf("slug %q: expected ErrDeploymentNotFound, got %v", slug, err)
		}
	}
}
