package file

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FindRecentAfter returns every file under dir modified after startTime.
func FindRecentAfter(dir string, startTime time.Time) ([]string, error) {
	var recentFiles []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && info.ModTime().After(startTime) {
			recentFiles = append(recentFiles, path)
		}
		return nil
	})

	return recentFiles, err
}

// FindWithExtAfter narrows FindRecentAfter to one file extension
// (case-insensitive, with or without the leading dot).
func FindWithExtAfter(dir, ext string, startTime time.Time) ([]string, error) {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	all, err := FindRecentAfter(dir, startTime)
	if err != nil {
		return nil, err
	}

	ret := make([]string, 0, len(all))
	for _, path := range all {
		if strings.EqualFold(filepath.Ext(path), ext) {
			ret = append(ret, path)
		}
	}
	return ret, nil
}
