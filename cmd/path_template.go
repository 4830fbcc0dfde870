package cmd

import (
	"strings"
	"time"
)

// FileTimestampLayout is the {timestamp} form used in output file names
const FileTimestampLayout = "2006-01-02T15:04:05Z"

// PathTemplate expands placeholders in output names and upload prefixes
type PathTemplate struct {
	template string
}

// NewPathTemplate creates a new PathTemplate instance
func NewPathTemplate(template string) *PathTemplate {
	return &PathTemplate{template: template}
}

// Generate replaces placeholders with values taken from timestamp in UTC.
// Supports: {timestamp}, {YYYY}, {MM}, {DD}, {HH}
func (pt *PathTemplate) Generate(timestamp time.Time) string {
	timestamp = timestamp.UTC()

	result := pt.template
	result = strings.ReplaceAll(result, "{timestamp}", timestamp.Format(FileTimestampLayout))
	result = strings.ReplaceAll(result, "{YYYY}", timestamp.Format("2006"))
	result = strings.ReplaceAll(result, "{MM}", timestamp.Format("01"))
	result = strings.ReplaceAll(result, "{DD}", timestamp.Format("02"))
	result = strings.ReplaceAll(result, "{HH}", timestamp.Format("15"))

	return result
}

// GenerateFilename builds the output file name for a run started at timestamp
func GenerateFilename(template string, timestamp time.Time, formatExt string, compressionExt string) string {
	return NewPathTemplate(template).Generate(timestamp) + formatExt + compressionExt
}

// ObjectKey joins an expanded upload prefix and a file name
func ObjectKey(prefixTemplate string, timestamp time.Time, filename string) string {
	prefix := strings.TrimPrefix(NewPathTemplate(prefixTemplate).Generate(timestamp), "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + filename
}
