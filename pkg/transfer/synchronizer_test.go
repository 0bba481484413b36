package transfer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/alexjakubow/multi-dataverse/pkg/dataverse"
	"github.com/alexjakubow/multi-dataverse/pkg/dvtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var citation = json.RawMessage(`{"fields":[{"typeName":"title","value":"Survey"}]}`)

// flakySource fails every download of the named files and records each call.
type flakySource struct {
	failing map[string]bool
	names   map[int]string
	calls   []int
}

func (f *flakySource) DownloadOriginal(_ context.Context, fileID int, destPath string) error {
	f.calls = append(f.calls, fileID)
	if f.failing[f.names[fileID]] {
		return fmt.Errorf("download of %d failed", fileID)
	}

	return os.WriteFile(destPath, []byte(f.names[fileID]), 0644)
}

func descriptors(names ...string) ([]dataverse.FileDescriptor, map[int]string) {
	var files []dataverse.FileDescriptor
	byID := make(map[int]string)
	for i, name := range names {
		files = append(files, dataverse.FileDescriptor{
			Label:    name,
			DataFile: dataverse.DataFile{ID: i + 1, Filename: name},
		})
		byID[i+1] = name
	}

	return files, byID
}

func TestDownloadAllFiles(t *testing.T) {
	srv := dvtest.New(t)
	srv.AddDataset("doi:10.7910/DVN/ABCDE", citation,
		dvtest.File{Name: "a.csv", Content: []byte("a")},
		dvtest.File{Name: "b.csv", Content: []byte("b")},
	)
	client := dataverse.NewClient(srv.URL, "", 0)
	ds, err := client.GetDataset(context.Background(), "doi:10.7910/DVN/ABCDE")
	require.NoError(t, err)

	root := t.TempDir()
	s := NewSynchronizer(client, client, Options{FilesDir: root, MaxAttempts: 3})

	unresolved, err := s.Download(context.Background(), ds.LatestVersion.Files, 42)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	assert.FileExists(t, filepath.Join(root, "42", "a.csv"))
	assert.FileExists(t, filepath.Join(root, "42", "b.csv"))
	assert.Equal(t, 2, srv.CallCount(dvtest.OpDownload))

	// Everything is already local, so a second run makes no calls.
	unresolved, err = s.Download(context.Background(), ds.LatestVersion.Files, 42)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	assert.Equal(t, 2, srv.CallCount(dvtest.OpDownload))
}

func TestDownloadRecoversOnLaterPass(t *testing.T) {
	srv := dvtest.New(t)
	srv.AddDataset("doi:10.7910/DVN/ABCDE", citation,
		dvtest.File{Name: "a.csv", Content: []byte("a")},
		dvtest.File{Name: "b.csv", Content: []byte("b")},
	)
	srv.FailDownload(srv.FileID("doi:10.7910/DVN/ABCDE", "b.csv"), 2)
	client := dataverse.NewClient(srv.URL, "", 0)
	ds, err := client.GetDataset(context.Background(), "doi:10.7910/DVN/ABCDE")
	require.NoError(t, err)

	s := NewSynchronizer(client, client, Options{FilesDir: t.TempDir(), MaxAttempts: 3})
	unresolved, err := s.Download(context.Background(), ds.LatestVersion.Files, 7)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	// a.csv once, b.csv three times.
	assert.Equal(t, 4, srv.CallCount(dvtest.OpDownload))
}

func TestDownloadRetryBound(t *testing.T) {
	files, names := descriptors("a", "b", "c", "d", "e")
	source := &flakySource{failing: map[string]bool{"b": true, "c": true, "e": true}, names: names}

	s := NewSynchronizer(source, nil, Options{FilesDir: t.TempDir(), MaxAttempts: 3})
	unresolved, err := s.Download(context.Background(), files, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c", "e"}, dataverse.Filenames(unresolved))
	// First pass tries all five, the two later passes only the three failures.
	assert.Len(t, source.calls, 5+3+3)
}

func TestDownloadCreatesDirectoryAndKeepsExisting(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "9")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("already here"), 0644))

	files, names := descriptors("a", "b")
	source := &flakySource{names: names}
	s := NewSynchronizer(source, nil, Options{FilesDir: root, MaxAttempts: 3})

	unresolved, err := s.Download(context.Background(), files, 9)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	assert.Equal(t, []int{2}, source.calls)

	b, err := os.ReadFile(filepath.Join(dir, "a"))
	require.NoError(t, err)
	assert.Equal(t, "already here", string(b))
}

func TestDownloadSkipsUnsafeNames(t *testing.T) {
	files, names := descriptors("../escape")
	source := &flakySource{names: names}
	s := NewSynchronizer(source, nil, Options{FilesDir: t.TempDir(), MaxAttempts: 2})

	unresolved, err := s.Download(context.Background(), files, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"../escape"}, dataverse.Filenames(unresolved))
	assert.Empty(t, source.calls)
}

func seedLocal(t *testing.T, root string, targetID int, names ...string) {
	dir := filepath.Join(root, fmt.Sprint(targetID))
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("content of "+name), 0644))
	}
}

func TestUploadSkipsFilesAlreadyAtTarget(t *testing.T) {
	srv := dvtest.New(t)
	targetID := srv.AddDataset("doi:10.5072/FK2/TARGET", citation)
	srv.AddFile("doi:10.5072/FK2/TARGET", dvtest.File{Name: "a.csv", Content: []byte("old")})
	root := t.TempDir()
	seedLocal(t, root, targetID, "a.csv", "b.csv")

	client := dataverse.NewClient(srv.URL, "", 0)
	files, _ := descriptors("a.csv", "b.csv")
	files[1].Description = "second file"
	files[1].Restricted = true
	files[1].DirectoryLabel = "data/raw"

	s := NewSynchronizer(nil, client, Options{FilesDir: root, MaxAttempts: 3})
	unresolved, err := s.Upload(context.Background(), files, "doi:10.5072/FK2/TARGET", targetID)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	assert.Equal(t, 1, srv.CallCount(dvtest.OpUpload))

	snap, ok := srv.Dataset("doi:10.5072/FK2/TARGET")
	require.True(t, ok)
	assert.Equal(t, []string{"a.csv", "b.csv"}, snap.Files)
	require.Len(t, snap.Uploads, 1)
	assert.Equal(t, "second file", snap.Uploads[0].Description)
	assert.True(t, snap.Uploads[0].Restrict)
	assert.False(t, snap.Uploads[0].TabIngest)
	assert.Equal(t, "data/raw", snap.Uploads[0].DirectoryLabel)

	content, _ := srv.Content("doi:10.5072/FK2/TARGET", "a.csv")
	assert.Equal(t, "old", string(content))

	// Running again uploads nothing.
	unresolved, err = s.Upload(context.Background(), files, "doi:10.5072/FK2/TARGET", targetID)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
	assert.Equal(t, 1, srv.CallCount(dvtest.OpUpload))
}

func TestUploadRetries(t *testing.T) {
	srv := dvtest.New(t)
	targetID := srv.AddDataset("doi:10.5072/FK2/TARGET", citation)
	root := t.TempDir()
	seedLocal(t, root, targetID, "a.csv", "b.csv", "c.csv")
	srv.FailUpload("b.csv", 1)
	srv.FailUpload("c.csv", dvtest.Forever)

	client := dataverse.NewClient(srv.URL, "", 0)
	files, _ := descriptors("a.csv", "b.csv", "c.csv")

	s := NewSynchronizer(nil, client, Options{FilesDir: root, MaxAttempts: 3})
	unresolved, err := s.Upload(context.Background(), files, "doi:10.5072/FK2/TARGET", targetID)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.csv"}, dataverse.Filenames(unresolved))
	// Pass one: a, b, c. Pass two: b, c. Pass three: c.
	assert.Equal(t, 6, srv.CallCount(dvtest.OpUpload))

	snap, _ := srv.Dataset("doi:10.5072/FK2/TARGET")
	assert.ElementsMatch(t, []string{"a.csv", "b.csv"}, snap.Files)
}

func TestUploadListFailure(t *testing.T) {
	srv := dvtest.New(t)
	client := dataverse.NewClient(srv.URL, "", 0)
	files, _ := descriptors("a.csv")

	s := NewSynchronizer(nil, client, Options{FilesDir: t.TempDir(), MaxAttempts: 3})
	_, err := s.Upload(context.Background(), files, "doi:10.5072/FK2/MISSING", 1)
	assert.Error(t, err)
	assert.Equal(t, 0, srv.CallCount(dvtest.OpUpload))
}

func TestPrepareScratch(t *testing.T) {
	root := filepath.Join(t.TempDir(), "files")
	stale := filepath.Join(root, "12", "partial.bin")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0755))
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0644))

	got, err := PrepareScratch(root, false)
	require.NoError(t, err)
	assert.Equal(t, root, got)
	assert.FileExists(t, stale)

	_, err = PrepareScratch(root, true)
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
	assert.DirExists(t, root)

	_, err = PrepareScratch("/", true)
	assert.Error(t, err)
}
