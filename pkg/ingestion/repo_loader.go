// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxFileSize is the largest file the walker admits.
const DefaultMaxFileSize int64 = 1 << 20

// candidateExtensions is the extension allow-list of a scan. Only the jsts
// and java families have detectors; the other languages are read for token
// accounting.
var candidateExtensions = map[string]string{
	".ts":   "typescript",
	".tsx":  "typescript",
	".js":   "javascript",
	".jsx":  "javascript",
	".java": "java",
	".py":   "python",
	".go":   "go",
	".rs":   "rust",
	".cpp":  "cpp",
	".c":    "c",
	".cs":   "csharp",
}

// DefaultExcludeGlobs returns the globs skipped by every scan.
func DefaultExcludeGlobs() []string {
	return []string{
		".git/**",
		"node_modules/**",
		"dist/**",
		"build/**",
		"vendor/**",
		"coverage/**",
		".next/**",
		"*.min.js",
		"*.d.ts",
	}
}

// RepoSource identifies a directory to walk.
type RepoSource struct {
	Type  string // "local_path"
	Value string
}

// RepoLoader enumerates the candidate files of a working directory.
type RepoLoader struct {
	logger *slog.Logger
}

// NewRepoLoader creates a new repository loader.
func NewRepoLoader(logger *slog.Logger) *RepoLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepoLoader{logger: logger}
}

// LoadResult contains the walked repository.
type LoadResult struct {
	RootPath    string // Absolute path to repository root
	Files       []FileInfo
	FileCount   int
	TotalSize   int64
	Languages   map[string]int // Language -> file count
	SkipReasons map[string]int // Reason -> count (e.g., "excluded", "too_large", "unsupported_extension")
}

// FileInfo represents a candidate file.
type FileInfo struct {
	Path     string // Relative path from repo root, slash separated
	FullPath string // Absolute path
	Size     int64
	Language string // Detected from extension
}

// LoadRepository walks a local directory. Files come back in lexical order.
func (rl *RepoLoader) LoadRepository(source RepoSource, excludeGlobs []string, maxFileSize int64) (*LoadResult, error) {
	if source.Type != "local_path" {
		return nil, fmt.Errorf("unsupported repo source type: %s", source.Type)
	}
	rootPath, err := filepath.Abs(source.Value)
	if err != nil {
		return nil, fmt.Errorf("resolve local path: %w", err)
	}
	if err := validateLocalPath(rootPath); err != nil {
		return nil, fmt.Errorf("invalid local path: %w", err)
	}
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("stat local path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local path is not a directory: %s", rootPath)
	}
	if maxFileSize == 0 {
		maxFileSize = DefaultMaxFileSize
	}

	rl.logger.Debug("repo.load.start", "root", rootPath)

	files, skipReasons, err := rl.walkRepository(rootPath, excludeGlobs, maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("walk repository: %w", err)
	}

	recordSkips(skipReasons)

	result := &LoadResult{
		RootPath:    rootPath,
		Files:       files,
		FileCount:   len(files),
		Languages:   make(map[string]int),
		SkipReasons: skipReasons,
	}
	for _, f := range files {
		result.TotalSize += f.Size
		result.Languages[f.Language]++
	}

	rl.logger.Debug("repo.load.complete",
		"files", result.FileCount,
		"total_size", result.TotalSize,
		"skipped", skipReasons,
	)
	return result, nil
}

// validateLocalPath rejects relative paths, the filesystem root and kernel
// pseudo-filesystems.
func validateLocalPath(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("path did not resolve to absolute path: %s", path)
	}
	if filepath.Clean(path) != path {
		return fmt.Errorf("path contains traversal attempts: %s", path)
	}
	if path == "/" {
		return fmt.Errorf("path is the root directory, which is not allowed")
	}
	for _, sensitive := range []string{"/etc", "/sys", "/proc", "/dev", "/boot"} {
		if path == sensitive || strings.HasPrefix(path, sensitive+"/") {
			return fmt.Errorf("path is in sensitive system directory: %s", path)
		}
	}
	return nil
}

func (rl *RepoLoader) walkRepository(rootPath string, excludeGlobs []string, maxFileSize int64) ([]FileInfo, map[string]int, error) {
	var files []FileInfo
	skipReasons := make(map[string]int)

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			rl.logger.Warn("repo.walk.error", "path", path, "err", err)
			return nil
		}
		relPath, err := filepath.Rel(rootPath, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if shouldExclude(relPath, excludeGlobs) {
			if d.IsDir() {
				skipReasons["excluded_dir"]++
				return filepath.SkipDir
			}
			skipReasons["excluded"]++
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		language, ok := candidateExtensions[strings.ToLower(filepath.Ext(relPath))]
		if !ok {
			skipReasons["unsupported_extension"]++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if maxFileSize > 0 && info.Size() > maxFileSize {
			skipReasons["too_large"]++
			rl.logger.Warn("repo.walk.skip_large_file",
				"path", relPath,
				"size", info.Size(),
				"limit", maxFileSize,
			)
			return nil
		}

		files = append(files, FileInfo{
			Path:     relPath,
			FullPath: path,
			Size:     info.Size(),
			Language: language,
		})
		return nil
	})

	return files, skipReasons, err
}

// shouldExclude checks if a path matches any exclude glob pattern.
func shouldExclude(path string, excludeGlobs []string) bool {
	for _, pattern := range excludeGlobs {
		if matchesGlob(path, pattern) {
			return true
		}
	}
	return false
}

// IsCandidate reports whether a path passes the extension allow-list.
func IsCandidate(path string) bool {
	_, ok := candidateExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}
