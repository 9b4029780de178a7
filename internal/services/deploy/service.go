package deploy

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/appforge-ai/appforge-backend/internal/services/projects"
	"github.com/appforge-ai/appforge-backend/internal/utils"
	"github.com/google/uuid"
)

var ErrDeploymentNotFound = errors.New("deployment not found")

// Service publishes projects as standalone HTML bundles. The bundle loads
// React and Babel from CDNs and evaluates the App component in the browser,
// so no build step runs server-side.
type Service struct {
	projects  *projects.Service
	outputDir string
	baseURL   string
}

func NewService(projectService *projects.Service, outputDir, baseURL string) *Service {
	if outputDir == "" {
		outputDir = filepath.Join("public", "deploys")
	}
	return &Service{
		projects:  projectService,
		outputDir: outputDir,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// Result describes a completed deployment
type Result struct {
	Slug string `json:"deploy_id"`
	URL  string `json:"deploy_url"`
}

// Publish renders the project's App component into a standalone page under a
// stable slug. Redeploying reuses the project's existing slug so shared links
// keep working.
func (s *Service) Publish(ctx context.Context, userID, projectID, code string) (*Result, error) {
	project, err := s.projects.Get(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	slug := project.DeploySlug
	if slug == "" {
		slug = uuid.New().String()[:10]
	}

	dir := filepath.Join(s.outputDir, slug)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create deploy directory: %w", err)
	}

	page := renderPage(project.Name, code)
	if err := os.WriteFile(filepath.Join(dir, "index.html"), page, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write deploy bundle: %w", err)
	}

	url := fmt.Sprintf("%s/deploys/%s", s.baseURL, slug)
	if err := s.projects.SetDeployment(ctx, projectID, slug, url); err != nil {
		return nil, err
	}

	fiberlog.Infof("project %s deployed at %s", projectID, url)
	return &Result{Slug: slug, URL: url}, nil
}

// Bundle returns the rendered page for a slug
func (s *Service) Bundle(slug string) ([]byte, error) {
	// Slugs come from URLs; keep them from escaping the output dir
	if slug == "" || strings.ContainsAny(slug, "/\\.") {
		return nil, ErrDeploymentNotFound
	}

	page, err := os.ReadFile(filepath.Join(s.outputDir, slug, "index.html")) // #nosec G304 - slug is validated above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrDeploymentNotFound
		}
		return nil, fmt.Errorf("failed to read deploy bundle: %w", err)
	}
	return page, nil
}

// renderPage assembles the standalone HTML document around the component
// source
func renderPage(title, code string) []byte {
	if title == "" {
		title = "Generated App"
	}

	buf := utils.Get()
	defer utils.Put(buf)

	_, _ = buf.WriteString(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1.0" />
  <title>`)
	_, _ = buf.WriteString(html.EscapeString(title))
	_, _ = buf.WriteString(`</title>
  <script src="https://cdn.tailwindcss.com"></script>
  <script crossorigin src="https://unpkg.com/react@18/umd/react.production.min.js"></script>
  <script crossorigin src="https://unpkg.com/react-dom@18/umd/react-dom.production.min.js"></script>
  <script src="https://unpkg.com/@babel/standalone/babel.min.js"></script>
</head>
<body>
  <div id="root"></div>
  <script type="text/babel">
`)
	_, _ = buf.WriteString(code)
	_, _ = buf.WriteString(`
    const root = ReactDOM.createRoot(document.getElementById('root'));
    root.render(<App />);
  </script>
</body>
</html>
`)

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}
