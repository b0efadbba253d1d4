package terminal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"secondbrain/internal/documents"
)

// maxSuggestions caps how many paths ShowFileSuggestions prints
const maxSuggestions = 10

// Input reads lines from the user. The reader is kept between calls so
// buffered input is not lost.
type Input struct {
	reader *bufio.Reader
}

// NewInput creates an Input reading from r
func NewInput(r io.Reader) *Input {
	return &Input{reader: bufio.NewReader(r)}
}

// ReadLine reads a line of input from the user. A final line without a
// newline is returned as usual and io.EOF follows on the next call.
func (in *Input) ReadLine() (string, error) {
	line, err := in.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}

	// Trim whitespace and newline
	return strings.TrimSpace(line), nil
}

// Confirm prints prompt and reports whether the answer starts with y
func (in *Input) Confirm(out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	answer, err := in.ReadLine()
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// FindMatchingFiles searches for uploadable files matching the partial path after @
func FindMatchingFiles(workingDir string, partial string) []string {
	matches := []string{}

	// Determine search directory and pattern
	searchDir := workingDir
	pattern := strings.ToLower(partial)

	if strings.Contains(partial, "/") {
		// If partial contains /, split into dir and pattern
		dir, file := filepath.Split(partial)
		searchDir = filepath.Join(workingDir, dir)
		pattern = strings.ToLower(file)
	}

	// Walk the search directory (limit depth to avoid slow searches)
	_ = filepath.WalkDir(searchDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		relPath, err := filepath.Rel(workingDir, path)
		if err != nil || relPath == "." {
			return nil
		}

		// Skip hidden files and directories
		if strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if entry.IsDir() {
			if strings.Count(relPath, string(filepath.Separator)) >= 4 {
				return filepath.SkipDir
			}
			return nil
		}

		if !documents.IsAccepted(entry.Name()) {
			return nil
		}

		isMatch := pattern == "" ||
			strings.Contains(strings.ToLower(relPath), pattern) ||
			strings.Contains(strings.ToLower(entry.Name()), pattern)
		if isMatch && len(matches) < 100 {
			matches = append(matches, relPath)
		}
		return nil
	})

	return matches
}

// ShowFileSuggestions prints upload candidates for every @partial word in query
// and returns how many were printed
func ShowFileSuggestions(out io.Writer, workingDir string, query string) int {
	shown := 0
	for _, word := range strings.Fields(query) {
		if !strings.HasPrefix(word, "@") {
			continue
		}
		partial := strings.Trim(strings.TrimPrefix(word, "@"), "\"'")

		matches := FindMatchingFiles(workingDir, partial)
		if len(matches) == 0 {
			fmt.Fprintf(out, "\nNo uploadable files match '@%s' (%s)\n", partial, strings.Join(documents.AcceptedExtensions, " "))
			continue
		}

		fmt.Fprintf(out, "\n💡 File suggestions for '@%s':\n", partial)
		for i, match := range matches {
			if i >= maxSuggestions {
				fmt.Fprintf(out, "   ... and %d more\n", len(matches)-maxSuggestions)
				break
			}
			fmt.Fprintf(out, "   %s\n", match)
			shown++
		}
		fmt.Fprintln(out)
	}
	return shown
}

// FirstPath extracts the first path from text that may hold several
// dropped or pasted paths. Quoted paths and backslash-escaped spaces are
// understood; a leading @ is removed.
func FirstPath(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	// Drops from some terminals arrive one path per line
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	text = strings.TrimPrefix(text, "@")
	if text == "" {
		return ""
	}

	if q := text[0]; q == '"' || q == '\'' {
		if end := strings.IndexByte(text[1:], q); end >= 0 {
			return text[1 : end+1]
		}
		return strings.Trim(text, "\"'")
	}

	// Whole text is one existing path
	if _, err := os.Stat(text); err == nil {
		return text
	}

	var b strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\\' && i+1 < len(text) && text[i+1] == ' ' {
			b.WriteByte(' ')
			i++
			continue
		}
		if c == ' ' || c == '\t' {
			break
		}
		b.WriteByte(c)
	}
	return b.String()
}
