package generation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/appforge-ai/appforge-backend/internal/models"
)

// DefaultActiveFile is where a fresh project's generated component lands
const DefaultActiveFile = "src/App.jsx"

var (
	fenceOpen  = regexp.MustCompile("(?m)^```[a-zA-Z]*\n")
	fenceClose = regexp.MustCompile("(?m)\n```$")
	fenceBare  = regexp.MustCompile("(?m)^```$")

	// The preview runtime loads React globally, so imports and exports
	// must come out of the generated source
	importFrom        = regexp.MustCompile(`(?m)^import\s+.*?from\s+['"].*?['"];?\s*$`)
	importBare        = regexp.MustCompile(`(?m)^import\s+['"].*?['"];?\s*$`)
	exportDefaultFunc = regexp.MustCompile(`(?m)^export\s+default\s+function\s+(\w+)`)
	exportDefaultName = regexp.MustCompile(`(?m)^export\s+default\s+\w+\s*;?\s*$`)
	exportAsDefault   = regexp.MustCompile(`(?m)^export\s*\{\s*\w+\s+as\s+default\s*\}\s*;?\s*$`)
	exportDecl        = regexp.MustCompile(`(?m)^export\s+(const|let|var|function|class)\s+`)

	blankRuns   = regexp.MustCompile(`\n\s*\n\s*\n`)
	newFileMark = regexp.MustCompile(`NEW_FILE:\s*(\w+)`)
	newFileLine = regexp.MustCompile(`(?m)^.*NEW_FILE:\s*\w+.*$\n?`)
)

// BuildSystemPrompt renders the instruction block for the model. The rules
// exist because the preview runtime evaluates the component with React as a
// global and Tailwind available, without a bundler.
func BuildSystemPrompt(params models.GenerateParams) string {
	var b strings.Builder

	b.WriteString("You are an expert React developer. ")
	if params.CurrentFileContent != "" {
		fmt.Fprintf(&b, "MODIFY the existing file %q based on the user request. Keep all existing functionality unless explicitly asked to change.", params.CurrentFilePath)
	} else {
		b.WriteString("Generate clean, production-ready code for a new React component.")
	}

	b.WriteString(`

CRITICAL RULES:
- Define a function component named "App" (required)
- NO import statements (React is loaded globally)
- NO export statements
- Use React.useState instead of useState
- Use React.useEffect instead of useEffect
- Use React.useRef instead of useRef
- Use Tailwind CSS classes for styling
- Make it fully functional and responsive
- Return JSX from the App function
`)

	if params.CurrentFileContent != "" {
		fmt.Fprintf(&b, "\nCURRENT FILE (%s):\n```javascript\n%s\n```\n", params.CurrentFilePath, params.CurrentFileContent)
		if params.FileStructure != "" {
			fmt.Fprintf(&b, "\nPROJECT STRUCTURE:\n%s\n", params.FileStructure)
		}
		if params.ChatContext != "" {
			fmt.Fprintf(&b, "\nPREVIOUS CONVERSATION:\n%s\n", params.ChatContext)
		}
		b.WriteString("\nINSTRUCTIONS: Only modify the parts mentioned in the user request. Keep everything else intact. If the user asks to create a new component, respond with \"NEW_FILE: ComponentName\" first.\n")
	}

	b.WriteString("\nIMPORTANT: Always wrap your code in a function named \"App\".")
	return b.String()
}

// StripFences normalizes raw model output into code the preview runtime can
// evaluate: markdown fences, imports, and export statements are removed.
func StripFences(code string) string {
	if code == "" {
		return ""
	}

	clean := fenceOpen.ReplaceAllString(code, "")
	clean = fenceClose.ReplaceAllString(clean, "")
	clean = fenceBare.ReplaceAllString(clean, "")

	clean = importFrom.ReplaceAllString(clean, "")
	clean = importBare.ReplaceAllString(clean, "")

	clean = exportDefaultFunc.ReplaceAllString(clean, "function $1")
	clean = exportDefaultName.ReplaceAllString(clean, "")
	clean = exportAsDefault.ReplaceAllString(clean, "")
	clean = exportDecl.ReplaceAllString(clean, "$1 ")

	clean = blankRuns.ReplaceAllString(clean, "\n\n")

	return strings.TrimSpace(clean)
}

// ParseResponse interprets raw model output. A NEW_FILE marker redirects the
// result into a fresh component file under src/components/.
func ParseResponse(raw, currentFilePath string) *models.GenerateOutput {
	out := &models.GenerateOutput{
		RawResponse: raw,
		FilePath:    currentFilePath,
	}
	if out.FilePath == "" {
		out.FilePath = DefaultActiveFile
	}

	if match := newFileMark.FindStringSubmatch(raw); match != nil {
		out.IsNewFile = true
		out.NewFileName = match[1]
		out.FilePath = fmt.Sprintf("src/components/%s.jsx", match[1])
		raw = newFileLine.ReplaceAllString(raw, "")
	}

	out.Code = StripFences(raw)
	return out
}
