package docpipe

import (
	"path/filepath"
	"strings"
)

// OutputPath returns where the PDF for input goes. An explicit file name
// is placed in dir; otherwise the input base name gets a .pdf extension.
// An empty dir means the directory of input.
func OutputPath(input, dir, name string) string {
	if name == "" {
		base := filepath.Base(input)
		name = strings.TrimSuffix(base, filepath.Ext(base)) + ".pdf"
	}
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, name)
}
