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

package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Limits bound what ExtractTarGz writes.
type Limits struct {
	MaxFileBytes  int64 // larger entries are skipped
	MaxTotalBytes int64 // exceeding it aborts with ErrArchiveTooLarge
	MaxFiles      int   // exceeding it aborts with ErrArchiveTooLarge
}

// DefaultLimits are generous enough for application repositories.
var DefaultLimits = Limits{
	MaxFileBytes:  16 << 20,  // 16 MiB
	MaxTotalBytes: 512 << 20, // 512 MiB
	MaxFiles:      100_000,
}

// ExtractTarGz extracts a gzip-compressed tarball into dest, stripping the
// single top-level directory GitHub puts in front of every entry. Entries
// that would land outside dest, symlinks and special files are skipped.
// It returns the number of files written.
func ExtractTarGz(r io.Reader, dest string, limits Limits) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, err
	}

	tr := tar.NewReader(gz)
	var (
		files int
		total int64
	)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return files, fmt.Errorf("read tar: %w", err)
		}

		rel, ok := stripTopDir(hdr.Name)
		if !ok {
			continue
		}
		target, ok := safeJoin(dest, rel)
		if !ok {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, err
			}
		case tar.TypeReg:
			if limits.MaxFileBytes > 0 && hdr.Size > limits.MaxFileBytes {
				continue
			}
			if limits.MaxFiles > 0 && files >= limits.MaxFiles {
				return files, ErrArchiveTooLarge
			}
			if limits.MaxTotalBytes > 0 && total+hdr.Size > limits.MaxTotalBytes {
				return files, ErrArchiveTooLarge
			}
			n, err := writeFile(target, tr, hdr.Size)
			if err != nil {
				return files, err
			}
			total += n
			files++
		}
	}
}

func writeFile(target string, r io.Reader, size int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.CopyN(f, r, size)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", target, err)
	}
	return n, nil
}

// stripTopDir removes the first path element of a tar entry name.
func stripTopDir(name string) (string, bool) {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	i := strings.IndexByte(name, '/')
	if i < 0 || i == len(name)-1 {
		return "", false
	}
	return name[i+1:], true
}

// safeJoin joins rel under dest and reports false if the result escapes.
func safeJoin(dest, rel string) (string, bool) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", false
	}
	target := filepath.Join(dest, filepath.FromSlash(rel))
	back, err := filepath.Rel(dest, target)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}
