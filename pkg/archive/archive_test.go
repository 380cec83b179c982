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
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type tarEntry struct {
	name   string
	body   string
	typ    byte
	linkTo string
}

func makeTarGz(t *testing.T, entries ...tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		typ := e.typ
		if typ == 0 {
			typ = tar.TypeReg
		}
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Typeflag: typ, Linkname: e.linkTo}
		if typ == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if typ == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestExtractTarGz_StripsTopDir(t *testing.T) {
	data := makeTarGz(t,
		tarEntry{name: "acme-api-1a2b3c/", typ: tar.TypeDir},
		tarEntry{name: "acme-api-1a2b3c/src/", typ: tar.TypeDir},
		tarEntry{name: "acme-api-1a2b3c/src/app.ts", body: "export const x = 1\n"},
		tarEntry{name: "acme-api-1a2b3c/README.md", body: "# acme\n"},
	)
	dest := t.TempDir()

	n, err := ExtractTarGz(bytes.NewReader(data), dest, DefaultLimits)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := os.ReadFile(filepath.Join(dest, "src", "app.ts"))
	require.NoError(t, err)
	assert.Equal(t, "export const x = 1\n", string(got))
	assert.FileExists(t, filepath.Join(dest, "README.md"))
}

func TestExtractTarGz_GuardsTraversal(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "tree")
	data := makeTarGz(t,
		tarEntry{name: "top/../../escape.txt", body: "x"},
		tarEntry{name: "top/ok.txt", body: "ok"},
		tarEntry{name: "top/link", typ: tar.TypeSymlink, linkTo: "/etc/passwd"},
	)

	n, err := ExtractTarGz(bytes.NewReader(data), dest, DefaultLimits)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, filepath.Join(parent, "escape.txt"))
	assert.NoFileExists(t, filepath.Join(dest, "link"))
	assert.FileExists(t, filepath.Join(dest, "ok.txt"))
}

func TestExtractTarGz_Limits(t *testing.T) {
	data := makeTarGz(t,
		tarEntry{name: "top/big.bin", body: "0123456789"},
		tarEntry{name: "top/a.txt", body: "a"},
		tarEntry{name: "top/b.txt", body: "b"},
	)

	n, err := ExtractTarGz(bytes.NewReader(data), t.TempDir(), Limits{MaxFileBytes: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "oversized file skipped")

	_, err = ExtractTarGz(bytes.NewReader(data), t.TempDir(), Limits{MaxFiles: 2})
	assert.ErrorIs(t, err, ErrArchiveTooLarge)

	_, err = ExtractTarGz(bytes.NewReader(data), t.TempDir(), Limits{MaxTotalBytes: 11})
	assert.ErrorIs(t, err, ErrArchiveTooLarge)
}

func TestExtractTarGz_NotGzip(t *testing.T) {
	_, err := ExtractTarGz(bytes.NewReader([]byte("plain text")), t.TempDir(), DefaultLimits)
	require.Error(t, err)
}

func TestCache_RecordLookupLatest(t *testing.T) {
	c := NewCache(t.TempDir())

	_, ok := c.Lookup("acme", "main")
	assert.False(t, ok)

	mainDir := c.TreeDir("acme", "main")
	featDir := c.TreeDir("acme", "feature/login")
	require.NoError(t, os.MkdirAll(mainDir, 0o755))
	require.NoError(t, os.MkdirAll(featDir, 0o755))

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Record(&Manifest{RepoID: "acme", Branch: "main", Ref: "aaa", Dir: mainDir, FetchedAt: older}))
	require.NoError(t, c.Record(&Manifest{RepoID: "acme", Branch: "feature/login", Ref: "bbb", Dir: featDir, FetchedAt: older.Add(time.Hour)}))

	m, ok := c.Lookup("acme", "main")
	require.True(t, ok)
	assert.Equal(t, "aaa", m.Ref)

	latest, ok := c.Latest("acme")
	require.True(t, ok)
	assert.Equal(t, "feature/login", latest.Branch)
	assert.NoFileExists(t, filepath.Join(c.Root(), "acme", "main", "manifest.json.tmp"))

	// A manifest whose tree vanished is not a hit.
	require.NoError(t, os.RemoveAll(featDir))
	latest, ok = c.Latest("acme")
	require.True(t, ok)
	assert.Equal(t, "main", latest.Branch)

	require.NoError(t, c.Evict("acme", "main"))
	require.NoError(t, c.Evict("acme", "main"))
	_, ok = c.Latest("acme")
	assert.False(t, ok)
}

type fakeFetcher struct {
	calls   int32
	tarball []byte
	branch  string
	err     error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ Connection, branch string) (*Tarball, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	if branch == "" {
		branch = f.branch
	}
	return &Tarball{Body: io.NopCloser(bytes.NewReader(f.tarball)), Branch: branch, Ref: "deadbeef"}, nil
}

func TestProvider_RemoteFetchThenCache(t *testing.T) {
	f := &fakeFetcher{
		tarball: makeTarGz(t, tarEntry{name: "r-1/src/index.ts", body: "export {}\n"}),
		branch:  "develop",
	}
	p := NewProvider(NewCache(t.TempDir()), f, nil)
	conn := Connection{RepoID: "acme", Source: Source{Type: SourceGitHub, Value: "acme/api"}, Active: true}

	snap, err := p.Acquire(context.Background(), conn, "")
	require.NoError(t, err)
	assert.False(t, snap.Cached)
	assert.Equal(t, "develop", snap.Branch, "default branch comes from the remote")
	assert.Equal(t, "deadbeef", snap.Ref)
	assert.FileExists(t, filepath.Join(snap.Dir, "src", "index.ts"))

	again, err := p.Acquire(context.Background(), conn, "")
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, snap.Dir, again.Dir)

	_, err = p.Acquire(context.Background(), conn, "develop")
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.calls, "cache hits never reach the remote")

	latest, err := p.Snapshot(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, snap.Dir, latest.Dir)
}

type gatedFetcher struct {
	fakeFetcher
	entered chan struct{}
	release chan struct{}
}

func (g *gatedFetcher) Fetch(ctx context.Context, conn Connection, branch string) (*Tarball, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.fakeFetcher.Fetch(ctx, conn, branch)
}

func TestProvider_ConcurrentFirstAcquireFetchesOnce(t *testing.T) {
	g := &gatedFetcher{
		fakeFetcher: fakeFetcher{tarball: makeTarGz(t, tarEntry{name: "r-1/src/index.ts", body: "export {}\n"})},
		entered:     make(chan struct{}, 4),
		release:     make(chan struct{}),
	}
	cache := NewCache(t.TempDir())
	p := NewProvider(cache, g, nil)
	conn := Connection{RepoID: "acme", Source: Source{Type: SourceGitHub, Value: "acme/api"}, Active: true}

	const callers = 4
	var wg sync.WaitGroup
	snaps := make([]*Snapshot, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snaps[i], errs[i] = p.Acquire(context.Background(), conn, "main")
		}()
	}
	<-g.entered
	close(g.release)
	wg.Wait()

	assert.EqualValues(t, 1, g.calls)
	for i := range callers {
		require.NoError(t, errs[i])
		assert.FileExists(t, filepath.Join(snaps[i].Dir, "src", "index.ts"))
	}

	entries, err := os.ReadDir(filepath.Dir(cache.TreeDir("acme", "main")))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"tree", manifestFile}, names, "no staging leftovers")
}

func TestProvider_InstallReplacesTree(t *testing.T) {
	p := NewProvider(NewCache(t.TempDir()), nil, nil)

	first := makeTarGz(t, tarEntry{name: "r-1/old.ts", body: "old"})
	snap, err := p.install("acme", "main", "a1", bytes.NewReader(first))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(snap.Dir, "old.ts"))

	second := makeTarGz(t, tarEntry{name: "r-2/new.ts", body: "new"})
	again, err := p.install("acme", "main", "b2", bytes.NewReader(second))
	require.NoError(t, err)
	assert.Equal(t, snap.Dir, again.Dir)
	assert.FileExists(t, filepath.Join(again.Dir, "new.ts"))
	assert.NoFileExists(t, filepath.Join(again.Dir, "old.ts"))

	_, err = p.install("acme", "main", "c3", bytes.NewReader([]byte("not a tarball")))
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(again.Dir, "new.ts"), "a failed extract keeps the previous tree")
}

func TestProvider_LocalPath(t *testing.T) {
	dir := t.TempDir()
	p := NewProvider(NewCache(t.TempDir()), nil, nil)
	conn := Connection{RepoID: "local", Source: Source{Type: SourceLocalPath, Value: dir}, Active: true}

	snap, err := p.Acquire(context.Background(), conn, "")
	require.NoError(t, err)
	assert.True(t, snap.Cached)
	assert.Equal(t, LocalBranch, snap.Branch)
	assert.Equal(t, dir, snap.Dir)

	latest, err := p.Snapshot(context.Background(), "local")
	require.NoError(t, err)
	assert.Equal(t, dir, latest.Dir)
}

func TestProvider_Errors(t *testing.T) {
	p := NewProvider(NewCache(t.TempDir()), &fakeFetcher{err: errors.New("boom")}, nil)

	_, err := p.Acquire(context.Background(), Connection{RepoID: "x", Source: Source{Type: SourceGitHub, Value: "a/b"}}, "")
	assert.ErrorIs(t, err, ErrConnectionInactive)

	_, err = p.Acquire(context.Background(), Connection{RepoID: "x", Source: Source{Type: "svn"}, Active: true}, "")
	assert.ErrorIs(t, err, ErrUnsupportedSource)

	_, err = p.Acquire(context.Background(), Connection{RepoID: "x", Source: Source{Type: SourceGitHub, Value: "a/b"}, Active: true}, "main")
	assert.EqualError(t, err, "boom")

	_, err = p.Acquire(context.Background(), Connection{RepoID: "x", Source: Source{Type: SourceLocalPath, Value: filepath.Join(t.TempDir(), "missing")}, Active: true}, "")
	assert.Error(t, err)

	_, err = p.Snapshot(context.Background(), "nothing")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

type memMirror struct {
	objects map[string][]byte
	refs    map[string]string
}

func (m *memMirror) Latest(_ context.Context, repoID, branch string) (io.ReadCloser, string, error) {
	data, ok := m.objects[repoID+"/"+branch]
	if !ok {
		return nil, "", ErrNoSnapshot
	}
	return io.NopCloser(bytes.NewReader(data)), m.refs[repoID+"/"+branch], nil
}

func (m *memMirror) Put(_ context.Context, repoID, branch, ref, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m.objects[repoID+"/"+branch] = data
	m.refs[repoID+"/"+branch] = ref
	return nil
}

func TestProvider_Mirror(t *testing.T) {
	tarball := makeTarGz(t, tarEntry{name: "r-1/app.js", body: "1"})
	mirror := &memMirror{objects: map[string][]byte{}, refs: map[string]string{}}
	conn := Connection{RepoID: "acme", Source: Source{Type: SourceGitHub, Value: "acme/api"}, Active: true}

	f := &fakeFetcher{tarball: tarball}
	first := NewProvider(NewCache(t.TempDir()), f, nil, WithMirror(mirror))
	_, err := first.Acquire(context.Background(), conn, "main")
	require.NoError(t, err)
	assert.Equal(t, tarball, mirror.objects["acme/main"])
	assert.Equal(t, "deadbeef", mirror.refs["acme/main"])

	// A second instance with an empty cache restores from the mirror.
	other := &fakeFetcher{err: errors.New("should not be called")}
	second := NewProvider(NewCache(t.TempDir()), other, nil, WithMirror(mirror))
	snap, err := second.Acquire(context.Background(), conn, "main")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", snap.Ref)
	assert.FileExists(t, filepath.Join(snap.Dir, "app.js"))
	assert.EqualValues(t, 0, other.calls)
}

func TestParseRepoSlug(t *testing.T) {
	for _, in := range []string{"acme/api", "github.com/acme/api", "https://github.com/acme/api.git", "git@github.com:acme/api.git", "https://github.com/acme/api/"} {
		owner, repo, err := ParseRepoSlug(in)
		require.NoError(t, err, in)
		assert.Equal(t, "acme", owner, in)
		assert.Equal(t, "api", repo, in)
	}
	for _, in := range []string{"", "acme", "acme/api/extra", "/api"} {
		_, _, err := ParseRepoSlug(in)
		assert.Error(t, err, in)
	}
}

func TestGitHubFetcher_Fetch(t *testing.T) {
	tarball := makeTarGz(t, tarEntry{name: "acme-api-abc/main.go", body: "package main\n"})

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/api", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"name":"api","default_branch":"trunk"}`))
	})
	mux.HandleFunc("/repos/acme/api/commits/trunk", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("abc123"))
	})
	var server *httptest.Server
	mux.HandleFunc("/repos/acme/api/tarball/abc123", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+"/download/acme-api.tar.gz", http.StatusFound)
	})
	mux.HandleFunc("/download/acme-api.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(tarball)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	f := NewGitHubFetcher(WithBaseURL(server.URL), WithRateLimit(rate.NewLimiter(rate.Inf, 1)))
	tb, err := f.Fetch(context.Background(), Connection{Source: Source{Type: SourceGitHub, Value: "acme/api"}, Token: "tok"}, "")
	require.NoError(t, err)
	defer tb.Body.Close()

	assert.Equal(t, "trunk", tb.Branch)
	assert.Equal(t, "abc123", tb.Ref)
	body, err := io.ReadAll(tb.Body)
	require.NoError(t, err)
	assert.Equal(t, tarball, body)
}

func TestGitHubFetcher_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer server.Close()

	f := NewGitHubFetcher(WithBaseURL(server.URL), WithRateLimit(rate.NewLimiter(rate.Inf, 1)))
	_, err := f.Fetch(context.Background(), Connection{Source: Source{Type: SourceGitHub, Value: "acme/missing"}}, "main")
	require.Error(t, err)
	assert.True(t, IsNotFound(err), "got %v", err)
	assert.False(t, IsRateLimited(err))
}

func TestS3Keys(t *testing.T) {
	key := objectKey("acme", "feature/x", "abc")
	assert.Equal(t, "acme/feature%2Fx/abc.tar.gz", key)
	assert.Equal(t, "abc", refFromKey(key))
	assert.True(t, S3Config{Endpoint: "localhost:9000", Bucket: "b"}.Enabled())
	assert.False(t, S3Config{Endpoint: "localhost:9000"}.Enabled())
}
