package dicom

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// extensions recognized as DICOM without sniffing.
var dicomExtensions = map[string]bool{
	".dcm":   true,
	".dicom": true,
}

// skippedNames are directory-listing noise never worth sniffing.
var skippedNames = map[string]bool{
	"DICOMDIR":    true,
	".DS_Store":   true,
	"Thumbs.db":   true,
	"desktop.ini": true,
}

var skippedDirs = map[string]bool{
	".git":  true,
	".idea": true,
}

// Find walks inputPath and returns candidate DICOM files, sorted. A file
// qualifies by extension or by the DICM magic bytes at offset 128.
func Find(inputPath string, recursive bool) ([]string, error) {
	var files []string

	walkFn := func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip files we cannot access
		}

		if info.IsDir() {
			if skippedDirs[info.Name()] {
				return filepath.SkipDir
			}
			if !recursive && path != inputPath {
				return filepath.SkipDir
			}
			return nil
		}

		if skippedNames[info.Name()] {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if dicomExtensions[ext] || hasMagicBytes(path) {
			files = append(files, path)
		}
		return nil
	}

	if err := filepath.Walk(inputPath, walkFn); err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// hasMagicBytes checks for "DICM" at byte offset 128.
func hasMagicBytes(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	header := make([]byte, 132)
	if _, err := io.ReadFull(file, header); err != nil {
		return false
	}
	return string(header[128:132]) == "DICM"
}
