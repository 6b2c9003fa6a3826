package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CreateTaskDir creates the task directory under workDir and returns its path.
func CreateTaskDir(workDir, taskID string, created time.Time) (string, error) {
	dir := filepath.Join(workDir, TaskDirName(created, taskID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create task dir: %w", err)
	}
	return dir, nil
}

// Document renders body under a "# title" heading with a trailing source line.
func Document(title, body, source string) string {
	var b strings.Builder
	if title = strings.TrimSpace(title); title != "" {
		b.WriteString("# ")
		b.WriteString(title)
		b.WriteString("\n\n")
	}
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n")
	if source = strings.TrimSpace(source); source != "" {
		b.WriteString("\nsource: ")
		b.WriteString(source)
		b.WriteString("\n")
	}
	return b.String()
}

// WriteFile writes content to dir/name through a temp file and rename.
func WriteFile(dir, name, content string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure artifact dir: %w", err)
	}
	path := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("chmod artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename artifact: %w", err)
	}
	return path, nil
}
