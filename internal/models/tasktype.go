package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// TaskType is the conversion kind sent to the server to select its
// processing pipeline.
type TaskType string

const (
	TaskTypePPTToPDF      TaskType = "ppt_to_pdf"
	TaskTypeDocToMarkdown TaskType = "doc_to_markdown"
	TaskTypePDFToMarkdown TaskType = "pdf_to_markdown"
)

// IsAICapable reports whether the task type accepts AI provider form fields
// on upload. The markdown conversions run through an AI provider on the
// server; the PDF rendering path does not.
func (t TaskType) IsAICapable() bool {
	switch t {
	case TaskTypeDocToMarkdown, TaskTypePDFToMarkdown:
		return true
	}
	return false
}

// UnsupportedTypeError is returned when a filename's extension has no
// conversion pipeline. It is a pre-flight error: no network request is made.
type UnsupportedTypeError struct {
	Filename  string
	Extension string
}

func (e *UnsupportedTypeError) Error() string {
	if e.Extension == "" {
		return fmt.Sprintf("unsupported file type: %q has no extension", e.Filename)
	}
	return fmt.Sprintf("unsupported file type %q for %q", e.Extension, e.Filename)
}

// ClassifyTaskType derives the conversion kind from a filename extension.
// The mapping is fixed: ppt/pptx go to PDF rendering; doc and docx share
// the Word markdown pipeline; pdf goes to the PDF markdown pipeline.
func ClassifyTaskType(filename string) (TaskType, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch ext {
	case "ppt", "pptx":
		return TaskTypePPTToPDF, nil
	case "doc", "docx":
		return TaskTypeDocToMarkdown, nil
	case "pdf":
		return TaskTypePDFToMarkdown, nil
	}
	return "", &UnsupportedTypeError{Filename: filename, Extension: ext}
}
