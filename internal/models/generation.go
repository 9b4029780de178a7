package models

// GenerateParams carries everything the generation engine needs for one call
type GenerateParams struct {
	Prompt             string
	CurrentFilePath    string
	CurrentFileContent string
	FileStructure      string
	ChatContext        string
	IsNewProject       bool
}

// GenerateOutput is the engine's raw result before project persistence
type GenerateOutput struct {
	Code        string
	RawResponse string
	IsNewFile   bool
	NewFileName string
	FilePath    string
}
