package scan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// maxImageFiles caps the number of first-level bundled images collected
// per environment so a screenshot-heavy directory cannot balloon a scan.
const maxImageFiles = 6

var exploitDirs = []string{"exploit", "exploits", "poc", "pocs"}

var exploitKeywords = []string{"exploit", "poc"}

var exploitExts = map[string]bool{
	".py": true, ".sh": true, ".rb": true, ".go": true, ".c": true, ".cpp": true,
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".bmp": true, ".svg": true,
}

var localizedReadmes = []string{"README.zh-cn.md", "README.zh-CN.md", "README_zh.md"}

// hasExploitArtifacts detects a PoC either as a conventional subdirectory
// or as a keyword-named script at the top level.
func hasExploitArtifacts(dir string) bool {
	for _, sub := range exploitDirs {
		if info, err := os.Stat(filepath.Join(dir, sub)); err == nil && info.IsDir() {
			return true
		}
	}
	return len(exploitFileNames(dir)) > 0
}

// exploitFileNames lists keyword-named scripts at the directory's top
// level, sorted.
func exploitFileNames(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !exploitExts[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		lower := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		if lower == "exp" {
			names = append(names, name)
			continue
		}
		for _, kw := range exploitKeywords {
			if strings.Contains(lower, kw) {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)
	return names
}

// ExploitFiles lists exploit artifacts for an environment directory: files
// inside conventional PoC subdirectories plus keyword-named top-level
// scripts. Paths are relative to dir, forward-slashed, sorted.
func ExploitFiles(dir string) []string {
	var out []string
	for _, sub := range exploitDirs {
		subDir := filepath.Join(dir, sub)
		entries, err := os.ReadDir(subDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !exploitExts[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			out = append(out, sub+"/"+e.Name())
		}
	}
	for _, name := range exploitFileNames(dir) {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// imageFiles lists first-level bundled image files, sorted, capped at
// maxImageFiles.
func imageFiles(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) > maxImageFiles {
		names = names[:maxImageFiles]
	}
	return names
}

// ImageFiles is the exported form used for environment detail views.
func ImageFiles(dir string) []string {
	return imageFiles(dir)
}

func hasLocalizedReadme(dir string) bool {
	for _, name := range localizedReadmes {
		if fileExists(filepath.Join(dir, name)) {
			return true
		}
	}
	return false
}
