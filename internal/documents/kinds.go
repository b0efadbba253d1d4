package documents

import (
	"path/filepath"
	"slices"
	"strings"

	"secondbrain/internal/api"
)

// AcceptedExtensions are the file types offered for upload by the front-ends.
// The backend decides what it can actually ingest.
var AcceptedExtensions = []string{".pdf", ".md", ".txt", ".mp3", ".m4a", ".wav", ".webm"}

var audioExtensions = []string{".mp3", ".m4a", ".wav", ".webm", ".ogg"}

// IsAccepted reports whether name has one of the AcceptedExtensions
func IsAccepted(name string) bool {
	return slices.Contains(AcceptedExtensions, strings.ToLower(filepath.Ext(name)))
}

// SourceTypeForFilename derives the source kind from a file name's extension.
// Unknown extensions are treated as text.
func SourceTypeForFilename(name string) api.SourceType {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case slices.Contains(audioExtensions, ext):
		return api.SourceAudio
	case ext == ".pdf":
		return api.SourcePDF
	case ext == ".md" || ext == ".markdown":
		return api.SourceMarkdown
	default:
		return api.SourceText
	}
}
