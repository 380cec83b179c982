// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package ingestion

import (
	"context"
	"path/filepath"
	"strings"
	"time"
)

// =============================================================================
// DETECTOR CONTRACT
// =============================================================================

// Detector recognizes one framework convention in a single source file.
//
// Detect is a pure function of the relative path and the file content. It
// never returns an error and never panics: a file that cannot be parsed
// yields no nodes.
type Detector interface {
	Name() string
	Detect(relPath string, src []byte) []DocumentationNode
}

// SourceFile is the per-file input shared by the detectors of a family.
// The syntax tree is built lazily, at most once per file.
type SourceFile struct {
	Path string
	Src  []byte

	tree    *SourceTree
	parsed  bool
	imports map[string]bool
}

// NewSourceFile wraps a file for detection. Call Close when done.
func NewSourceFile(relPath string, src []byte) *SourceFile {
	return &SourceFile{Path: NormalizePath(relPath), Src: src}
}

// Tree returns the parsed syntax tree, or nil when the file has no grammar
// or fails to parse.
func (f *SourceFile) Tree() *SourceTree {
	if !f.parsed {
		f.parsed = true
		st, err := ParseSource(context.Background(), f.Path, f.Src)
		if err == nil {
			f.tree = st
		}
	}
	return f.tree
}

// Language returns the language label stored in node metadata.
func (f *SourceFile) Language() string {
	switch GrammarForPath(f.Path) {
	case "typescript", "tsx":
		return "typescript"
	case "javascript":
		return "javascript"
	case "java":
		return "java"
	}
	return ""
}

// Close releases the syntax tree.
func (f *SourceFile) Close() {
	f.tree.Close()
	f.tree = nil
}

// fileDetector adapts a function over a shared SourceFile to Detector.
type fileDetector struct {
	name   string
	detect func(*SourceFile) []DocumentationNode
}

func (d fileDetector) Name() string { return d.name }

func (d fileDetector) Detect(relPath string, src []byte) []DocumentationNode {
	f := NewSourceFile(relPath, src)
	defer f.Close()
	return d.run(f)
}

func (d fileDetector) run(f *SourceFile) (nodes []DocumentationNode) {
	defer func() {
		if r := recover(); r != nil {
			nodes = nil
		}
	}()
	return d.detect(f)
}

// Built-in detectors.
var (
	CallRouteDetector      Detector = fileDetector{"call-routes", detectCallRoutes}
	EventDetector          Detector = fileDetector{"events", detectEvents}
	NestDetector           Detector = fileDetector{"nest", detectNestControllers}
	NextDetector           Detector = fileDetector{"next", detectNextRoutes}
	ReactRouterDetector    Detector = fileDetector{"react-router", detectReactRoutes}
	StructuralTSDetector   Detector = fileDetector{"structural-jsts", detectStructuralTS}
	SpringDetector         Detector = fileDetector{"spring", detectSpringControllers}
	StructuralJavaDetector Detector = fileDetector{"structural-java", detectStructuralJava}
)

// =============================================================================
// DISPATCH TABLE
// =============================================================================

// Family groups the detectors that apply to a set of file extensions.
type Family struct {
	Name       string
	Extensions []string
	Detectors  []Detector
}

// Detect runs every detector of the family over one file, parsing it once.
func (fam Family) Detect(relPath string, src []byte) []DocumentationNode {
	f := NewSourceFile(relPath, src)
	defer f.Close()

	var out []DocumentationNode
	for _, d := range fam.Detectors {
		if fd, ok := d.(fileDetector); ok {
			out = append(out, fd.run(f)...)
			continue
		}
		out = append(out, safeDetect(d, f.Path, src)...)
	}
	return out
}

func safeDetect(d Detector, relPath string, src []byte) (nodes []DocumentationNode) {
	defer func() {
		if r := recover(); r != nil {
			nodes = nil
		}
	}()
	return d.Detect(relPath, src)
}

// Families is the extension dispatch table.
var Families = []Family{
	{
		Name:       "jsts",
		Extensions: []string{".ts", ".tsx", ".js", ".jsx"},
		Detectors: []Detector{
			CallRouteDetector,
			NestDetector,
			NextDetector,
			ReactRouterDetector,
			EventDetector,
			StructuralTSDetector,
		},
	},
	{
		Name:       "java",
		Extensions: []string{".java"},
		Detectors: []Detector{
			SpringDetector,
			StructuralJavaDetector,
		},
	},
}

// FamilyFor returns the family handling path's extension.
func FamilyFor(path string) (Family, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, fam := range Families {
		for _, e := range fam.Extensions {
			if e == ext {
				return fam, true
			}
		}
	}
	return Family{}, false
}

// DetectFile routes a file through its family. Files with no family yield nil.
func DetectFile(relPath string, src []byte) []DocumentationNode {
	fam, ok := FamilyFor(relPath)
	if !ok {
		return nil
	}
	start := time.Now()
	nodes := fam.Detect(relPath, src)
	recordDetection(fam.Name, nodes, time.Since(start))
	return nodes
}
