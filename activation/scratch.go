package activation

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// scratchFile is a document written to local disk for the duration of one
// upload.
type scratchFile struct {
	path string
}

// writeScratch stores data under dir with a name unique to this call.
func writeScratch(dir string, data []byte, mimeType string, now time.Time) (*scratchFile, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	name := fmt.Sprintf("folio-%d-%s%s", now.UnixNano(), uuid.NewString()[:8], extensionFor(mimeType))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		// A partial write may have left the file behind.
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write scratch file: %w", err)
	}
	return &scratchFile{path: path}, nil
}

// remove deletes the file. A file that is already gone is not an error.
func (f *scratchFile) remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func extensionFor(mimeType string) string {
	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	return exts[0]
}
