package dataverse_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/alexjakubow/multi-dataverse/pkg/dataverse"
	"github.com/alexjakubow/multi-dataverse/pkg/dvtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var citation = json.RawMessage(`{"displayName":"Citation Metadata","fields":[{"typeName":"title","value":"Survey"}]}`)

func TestDoRejectsUnsupportedMethod(t *testing.T) {
	srv := dvtest.New(t)
	client := dataverse.NewClient(srv.URL, "", 0)

	_, err := client.Do(context.Background(), dataverse.Request{Method: "DELETE", Path: "/api/datasets/1"})
	var unsupported *dataverse.UnsupportedMethodError
	require.True(t, errors.As(err, &unsupported), "expected UnsupportedMethodError, got %v", err)
	assert.Equal(t, "DELETE", unsupported.Method)
	assert.Equal(t, 0, srv.CallCount(dvtest.OpGetDataset))
}

func TestDoReturnsResponseForErrorStatus(t *testing.T) {
	srv := dvtest.New(t)
	client := dataverse.NewClient(srv.URL, "", 0)

	resp, err := client.Do(context.Background(), dataverse.Request{
		Method: dataverse.MethodGet,
		Path:   "/api/datasets/:persistentId",
		Query:  map[string]string{"persistentId": "doi:10.7910/DVN/MISSING"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, resp.OK())

	var apiErr *dataverse.APIError
	require.True(t, errors.As(resp.Err(), &apiErr))
	assert.Equal(t, dataverse.KindNotFound, apiErr.Kind)
	assert.Contains(t, apiErr.Message, "doi:10.7910/DVN/MISSING")
	assert.True(t, errors.Is(resp.Err(), dataverse.ErrDataverseAPI))
}

func TestGetDataset(t *testing.T) {
	srv := dvtest.New(t)
	srv.AddDataset("doi:10.7910/DVN/ABCDE", citation,
		dvtest.File{Name: "data.csv", Content: []byte("a,b\n1,2\n"), Description: "raw data"},
		dvtest.File{Name: "codebook.pdf", Content: []byte("%PDF"), Restricted: true},
	)
	client := dataverse.NewClient(srv.URL, "", 0)

	ds, err := client.GetDataset(context.Background(), "doi:10.7910/DVN/ABCDE")
	require.NoError(t, err)
	assert.JSONEq(t, string(citation), string(ds.LatestVersion.MetadataBlocks["citation"]))
	require.Len(t, ds.LatestVersion.Files, 2)
	assert.Equal(t, []string{"data.csv", "codebook.pdf"}, dataverse.Filenames(ds.LatestVersion.Files))
	assert.Equal(t, "raw data", ds.LatestVersion.Files[0].Description)
	assert.True(t, ds.LatestVersion.Files[1].Restricted)
}

func TestAPITokenIsSent(t *testing.T) {
	srv := dvtest.New(t)
	srv.RequireToken("secret")
	srv.AddDataset("doi:10.7910/DVN/ABCDE", citation)

	_, err := dataverse.NewClient(srv.URL, "wrong", 0).GetDataset(context.Background(), "doi:10.7910/DVN/ABCDE")
	var apiErr *dataverse.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, dataverse.KindUnauthorized, apiErr.Kind)

	_, err = dataverse.NewClient(srv.URL, "secret", 0).GetDataset(context.Background(), "doi:10.7910/DVN/ABCDE")
	assert.NoError(t, err)
}

func TestCreateEditUploadPublish(t *testing.T) {
	srv := dvtest.New(t)
	client := dataverse.NewClient(srv.URL, "", 0)
	ctx := context.Background()

	payload := map[string]interface{}{
		"datasetVersion": map[string]interface{}{
			"metadataBlocks": map[string]json.RawMessage{"citation": citation},
		},
	}
	created, err := client.CreateDataset(ctx, "yls", payload)
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.NotEmpty(t, created.PersistentID)

	require.NoError(t, client.EditMetadata(ctx, created.PersistentID, map[string]interface{}{"fields": []interface{}{}}))

	local := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(local, []byte("hello"), 0600))
	err = client.UploadFile(ctx, created.ID, local, dataverse.FileMetadata{Description: "notes", Restrict: true})
	require.NoError(t, err)

	files, err := client.ListFiles(ctx, created.PersistentID)
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.txt"}, dataverse.Filenames(files))

	content, ok := srv.Content(created.PersistentID, "notes.txt")
	require.True(t, ok)
	assert.Equal(t, "hello", string(content))

	require.NoError(t, client.PublishDataset(ctx, created.PersistentID, "major"))

	snap, ok := srv.Dataset(created.PersistentID)
	require.True(t, ok)
	assert.Len(t, snap.Patches, 1)
	assert.Equal(t, []string{"major"}, snap.Published)
	require.Len(t, snap.Uploads, 1)
	assert.Equal(t, "notes", snap.Uploads[0].Description)
	assert.True(t, snap.Uploads[0].Restrict)
	assert.False(t, snap.Uploads[0].TabIngest)
}

func TestUploadMissingLocalFile(t *testing.T) {
	srv := dvtest.New(t)
	client := dataverse.NewClient(srv.URL, "", 0)

	err := client.UploadFile(context.Background(), 1, filepath.Join(t.TempDir(), "nope"), dataverse.FileMetadata{})
	require.Error(t, err)
	assert.Equal(t, 0, srv.CallCount(dvtest.OpUpload))
}

func TestPublishFailureIsServerError(t *testing.T) {
	srv := dvtest.New(t)
	srv.AddDataset("doi:10.7910/DVN/ABCDE", citation)
	srv.SetStatus(dvtest.OpPublish, http.StatusInternalServerError)

	err := dataverse.NewClient(srv.URL, "", 0).PublishDataset(context.Background(), "doi:10.7910/DVN/ABCDE", "major")
	var apiErr *dataverse.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, dataverse.KindServer, apiErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestDownloadOriginal(t *testing.T) {
	srv := dvtest.New(t)
	srv.AddDataset("doi:10.7910/DVN/ABCDE", citation, dvtest.File{Name: "data.csv", Content: []byte("a,b\n")})
	fileID := srv.FileID("doi:10.7910/DVN/ABCDE", "data.csv")
	client := dataverse.NewClient(srv.URL, "", 0)
	dest := filepath.Join(t.TempDir(), "data.csv")

	srv.FailDownload(fileID, 1)
	err := client.DownloadOriginal(context.Background(), fileID, dest)
	require.Error(t, err)
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".part")

	require.NoError(t, client.DownloadOriginal(context.Background(), fileID, dest))
	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(b))
	assert.NoFileExists(t, dest+".part")
}

func TestTransportError(t *testing.T) {
	client := dataverse.NewClient("http://127.0.0.1:1", "", 0)

	_, err := client.GetDataset(context.Background(), "doi:10.7910/DVN/ABCDE")
	var apiErr *dataverse.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, dataverse.KindTransport, apiErr.Kind)
}
