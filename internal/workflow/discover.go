package workflow

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"subguard/internal/pipeline"
	"subguard/internal/textutil"
)

// Discover walks dir for files whose extension is in extensions and returns
// one request per file, ordered by path. The video id is the sanitized file
// stem; later files whose stem collides get a numeric suffix.
func Discover(dir string, extensions []string) ([]pipeline.Request, error) {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}

	var requests []pipeline.Request
	seen := make(map[string]int)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if _, ok := allowed[ext]; !ok {
			return nil
		}
		stem := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		id := textutil.SanitizeID(stem)
		if id == "" {
			id = "clip"
		}
		seen[id]++
		if n := seen[id]; n > 1 {
			id = fmt.Sprintf("%s-%d", id, n)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		requests = append(requests, pipeline.Request{
			VideoID:    id,
			SourcePath: abs,
			Title:      stem,
			Metadata:   map[string]any{"source_path": abs},
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return requests, nil
}
