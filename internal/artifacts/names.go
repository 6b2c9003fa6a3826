package artifacts

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"vidscribe/internal/services"
	"vidscribe/internal/textutil"
)

// Kind identifies one of the documents a task produces.
type Kind string

const (
	KindRaw         Kind = "raw"
	KindTranscript  Kind = "transcript"
	KindTranslation Kind = "translation"
	KindSummary     Kind = "summary"
)

const (
	markdownExt   = ".md"
	dirTimeLayout = "060102150405"
)

// TaskDirName returns "<yymmddHHMMSS>_<taskID>".
func TaskDirName(created time.Time, taskID string) string {
	return created.Format(dirTimeLayout) + "_" + taskID
}

// FileName returns "<kind>_<safe title>_<task id>.md". The whole id is used
// so two tasks created in the same second never share a name.
func FileName(kind Kind, title, taskID string) string {
	return fmt.Sprintf("%s_%s_%s%s", kind, textutil.SanitizeTitle(title), taskID, markdownExt)
}

// ValidateName rejects anything but a bare Markdown file name.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return services.Wrap(services.ErrValidation, "artifacts", "validate name", "file name required", nil)
	case strings.Contains(name, ".."), strings.ContainsAny(name, `/\`):
		return services.Wrap(services.ErrValidation, "artifacts", "validate name", "invalid file name", nil)
	case !strings.EqualFold(filepath.Ext(name), markdownExt):
		return services.Wrap(services.ErrValidation, "artifacts", "validate name", "only markdown files can be downloaded", nil)
	}
	return nil
}
