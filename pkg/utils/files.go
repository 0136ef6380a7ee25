package utils

import (
	"path/filepath"
	"strings"
)

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	// Get the directory containing the file
	parentDir = filepath.Dir(fullPath)

	return fullPath, parentDir, nil
}

// DefaultOutputPath swaps the extension of inPath for ext, or appends ext
// when inPath has none.
func DefaultOutputPath(inPath, ext string) string {
	cur := filepath.Ext(inPath)
	if cur == "" || cur == ext {
		return inPath + ext
	}
	return strings.TrimSuffix(inPath, cur) + ext
}
