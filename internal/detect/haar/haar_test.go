package haar

import (
	"path/filepath"
	"testing"
)

func TestNewMissingCascade(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing.xml"), DefaultParams()); err == nil {
		t.Error("Expected an error for a missing cascade file")
	}
}
