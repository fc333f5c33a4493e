package service

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

func newID() string {
	return uuid.NewString()
}

// archiveKey names the stored copy of an upload after its run; only a known
// extension of the original name survives.
func archiveKey(runID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv", ".tsv", ".txt":
	default:
		ext = ".csv"
	}
	return "import-" + runID + ext
}
