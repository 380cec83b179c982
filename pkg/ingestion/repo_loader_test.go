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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoLoader_LoadRepository(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/index.ts":                  "app.get('/a', h)",
		"src/Api.java":                  "class Api {}",
		"scripts/tool.py":               "print(1)",
		"README.md":                     "# readme",
		"node_modules/express/index.js": "module.exports = {}",
		"public/vendor.min.js":          "x",
		"big/huge.ts":                   strings.Repeat("a", 2048),
	})

	loader := NewRepoLoader(nil)
	res, err := loader.LoadRepository(RepoSource{Type: "local_path", Value: root}, DefaultExcludeGlobs(), 1024)
	require.NoError(t, err)

	var paths []string
	for _, f := range res.Files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"scripts/tool.py", "src/Api.java", "src/index.ts"}, paths)
	assert.Equal(t, 3, res.FileCount)
	assert.Equal(t, 1, res.Languages["typescript"])
	assert.Equal(t, 1, res.SkipReasons["excluded_dir"])
	assert.Equal(t, 1, res.SkipReasons["excluded"])
	assert.Equal(t, 1, res.SkipReasons["unsupported_extension"])
	assert.Equal(t, 1, res.SkipReasons["too_large"])
}

func TestRepoLoader_Errors(t *testing.T) {
	loader := NewRepoLoader(nil)

	_, err := loader.LoadRepository(RepoSource{Type: "git_url", Value: "https://example.com/x.git"}, nil, 0)
	assert.Error(t, err)

	_, err = loader.LoadRepository(RepoSource{Type: "local_path", Value: filepath.Join(t.TempDir(), "missing")}, nil, 0)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "a.ts")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = loader.LoadRepository(RepoSource{Type: "local_path", Value: file}, nil, 0)
	assert.Error(t, err)

	_, err = loader.LoadRepository(RepoSource{Type: "local_path", Value: "/proc"}, nil, 0)
	assert.Error(t, err)
}

func TestIsCandidate(t *testing.T) {
	assert.True(t, IsCandidate("a/b.TS"))
	assert.True(t, IsCandidate("main.go"))
	assert.False(t, IsCandidate("README.md"))
}
