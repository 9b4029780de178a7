package api

import (
	"context"
	"errors"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/appforge-ai/appforge-backend/internal/models"
	"github.com/appforge-ai/appforge-backend/internal/services/credits"
	"github.com/appforge-ai/appforge-backend/internal/services/generation"
	"github.com/appforge-ai/appforge-backend/internal/services/projects"
	"github.com/gofiber/fiber/v2"
)

// ProjectHandler serves the generation flow and project file CRUD
type ProjectHandler struct {
	projects    *projects.Service
	generation  *generation.Service
	coordinator *credits.Coordinator
}

func NewProjectHandler(projectService *projects.Service, generationService *generation.Service, coordinator *credits.Coordinator) *ProjectHandler {
	return &ProjectHandler{
		projects:    projectService,
		generation:  generationService,
		coordinator: coordinator,
	}
}

type generateRequest struct {
	Prompt       string `json:"prompt"`
	ProjectID    string `json:"project_id"`
	IsNewProject bool   `json:"is_new_project"`
	TargetFile   string `json:"target_file"`
}

// Generate handles POST /api/v1/generate: admission check, LLM call, project
// persistence, then credit settlement.
func (h *ProjectHandler) Generate(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Prompt is required"})
	}
	if !req.IsNewProject && req.ProjectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "project_id is required when editing"})
	}

	// Admission check. Nothing is reserved here; the deduction after a
	// successful generation settles.
	hasCredits, err := h.coordinator.HasCredits(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	if !hasCredits {
		return respondError(c, credits.ErrInsufficientCredits)
	}

	params := models.GenerateParams{
		Prompt:       req.Prompt,
		IsNewProject: req.IsNewProject,
	}
	action := models.ActionNewProject

	if !req.IsNewProject {
		action = models.ActionEdit

		project, err := h.projects.Get(c.Context(), userID, req.ProjectID)
		if err != nil {
			return respondError(c, err)
		}

		targetFile := req.TargetFile
		if targetFile == "" {
			targetFile = project.ActiveFile
		}

		params.CurrentFilePath = targetFile
		for _, f := range project.Files {
			if f.Path == targetFile && f.Type == models.FileTypeFile {
				params.CurrentFileContent = f.Content
				break
			}
		}
		params.FileStructure = projects.FileStructure(project.Files)
		params.ChatContext = projects.ChatContext(project.ChatHistory, 6)
	}

	out, err := h.generation.Generate(c.Context(), params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": "Generation timed out"})
		}
		return respondError(c, models.NewProviderError(string(h.generation.Provider()), "generation failed", err))
	}

	var (
		project      *models.Project
		assistantMsg string
	)
	if req.IsNewProject {
		project, assistantMsg, err = h.projects.Create(c.Context(), userID, req.Prompt, out)
	} else {
		project, assistantMsg, err = h.projects.ApplyGeneration(c.Context(), userID, req.ProjectID, req.Prompt, out)
	}
	if err != nil {
		return respondError(c, err)
	}

	result, err := h.coordinator.DeductCredit(c.Context(), credits.DeductParams{
		UserID:    userID,
		ProjectID: project.ID,
		Amount:    1,
		Action:    action,
		Details:   req.Prompt,
	})
	if err != nil {
		// The work is done and persisted. A failed settlement at this point
		// is a billing anomaly, not a reason to throw the result away.
		fiberlog.Errorf("credit settlement failed for user %s project %s: %v", userID, project.ID, err)
		result = &models.DeductResult{RemainingCredits: 0}
	}

	return c.JSON(fiber.Map{
		"project":           project,
		"message":           assistantMsg,
		"code":              out.Code,
		"file_path":         generationFilePath(out),
		"is_new_file":       out.IsNewFile,
		"remaining_credits": result.RemainingCredits,
		"unlimited":         result.Unlimited,
	})
}

func generationFilePath(out *models.GenerateOutput) string {
	if out.FilePath != "" {
		return out.FilePath
	}
	return generation.DefaultActiveFile
}

// Get handles GET /api/v1/projects/:id
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	project, err := h.projects.Get(c.Context(), userID, c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"project": project})
}

// List handles GET /api/v1/projects
func (h *ProjectHandler) List(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	list, err := h.projects.List(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"projects": list})
}

// Delete handles DELETE /api/v1/projects/:id
func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.projects.Delete(c.Context(), userID, c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Project deleted"})
}

type saveFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// SaveFile handles PUT /api/v1/projects/:id/files
func (h *ProjectHandler) SaveFile(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	var req saveFileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "path is required"})
	}

	if err := h.projects.SaveFile(c.Context(), userID, c.Params("id"), req.Path, req.Content); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "File saved"})
}

type createNodeRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// CreateNode handles POST /api/v1/projects/:id/files
func (h *ProjectHandler) CreateNode(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	var req createNodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" || req.Path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name and path are required"})
	}

	nodeType := models.FileTypeFile
	if req.Type == string(models.FileTypeFolder) {
		nodeType = models.FileTypeFolder
	}

	if err := h.projects.CreateNode(c.Context(), userID, c.Params("id"), req.Name, req.Path, nodeType); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Created"})
}

// DeleteNode handles DELETE /api/v1/projects/:id/files
func (h *ProjectHandler) DeleteNode(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	path := c.Query("path")
	if path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "path is required"})
	}

	if err := h.projects.DeleteNode(c.Context(), userID, c.Params("id"), path); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Deleted"})
}
