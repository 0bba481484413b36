// Package dvtest provides an in-process Dataverse installation that serves the
// subset of the native and access APIs used by the migration tool. Tests seed it
// with datasets and inject failures per file or per operation.
package dvtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/alexjakubow/multi-dataverse/pkg/dataverse"
	"github.com/labstack/echo/v4"
)

// Operation names used by CallCount.
const (
	OpGetDataset   = "get-dataset"
	OpCreate       = "create"
	OpEditMetadata = "edit-metadata"
	OpDownload     = "download"
	OpUpload       = "upload"
	OpPublish      = "publish"
)

// Forever makes an injected failure permanent.
const Forever = -1

type File struct {
	Name        string
	Content     []byte
	Description string
	Restricted  bool
}

type dataset struct {
	id       int
	pid      string
	citation json.RawMessage
	license  json.RawMessage
	files    []dataverse.FileDescriptor
	patches  []json.RawMessage
	uploads  []dataverse.FileMetadata
	released []string
}

// Snapshot is a copy of a dataset's state held by the server.
type Snapshot struct {
	ID        int
	PID       string
	Citation  json.RawMessage
	License   json.RawMessage
	Files     []string
	Patches   []json.RawMessage
	Uploads   []dataverse.FileMetadata
	Published []string
}

type Server struct {
	*httptest.Server

	mu            sync.Mutex
	token         string
	nextID        int
	datasets      map[string]*dataset
	datasetsByID  map[int]*dataset
	contents      map[int][]byte
	downloadFails map[int]int
	uploadFails   map[string]int
	opStatus      map[string]int
	calls         map[string]int
}

// New starts a server that is shut down when the test completes.
func New(t testing.TB) *Server {
	s := &Server{
		nextID:        100,
		datasets:      make(map[string]*dataset),
		datasetsByID:  make(map[int]*dataset),
		contents:      make(map[int][]byte),
		downloadFails: make(map[int]int),
		uploadFails:   make(map[string]int),
		opStatus:      make(map[string]int),
		calls:         make(map[string]int),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(s.checkToken)

	e.GET("/api/datasets/:id", s.getDataset)
	e.PUT("/api/datasets/:id/editMetadata", s.editMetadata)
	e.POST("/api/datasets/:id/add", s.addFile)
	e.POST("/api/datasets/:id/actions/:action", s.publish)
	e.POST("/api/dataverses/:alias/datasets", s.createDataset)
	e.GET("/api/access/datafile/:id", s.download)

	s.Server = httptest.NewServer(e)
	t.Cleanup(s.Close)

	return s
}

// RequireToken makes every request without the given X-Dataverse-key fail with 401.
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// AddDataset seeds a dataset and returns its numeric id.
func (s *Server) AddDataset(pid string, citation json.RawMessage, files ...File) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds := s.newDatasetLocked(pid)
	ds.citation = citation
	for _, f := range files {
		s.addFileLocked(ds, f.Name, f.Content, f.Description, f.Restricted)
	}

	return ds.id
}

// AddFile seeds a file into an existing dataset and returns the file id.
func (s *Server) AddFile(pid string, f File) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.datasets[pid]
	if !ok {
		panic(fmt.Sprintf("dvtest: no dataset %s", pid))
	}

	return s.addFileLocked(ds, f.Name, f.Content, f.Description, f.Restricted)
}

// FailDownload makes the next n downloads of fileID fail with a 500.
func (s *Server) FailDownload(fileID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloadFails[fileID] = n
}

// FailUpload makes the next n uploads of a file called filename fail with a 500.
func (s *Server) FailUpload(filename string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadFails[filename] = n
}

// SetStatus forces every call of op to fail with the given HTTP status.
func (s *Server) SetStatus(op string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opStatus[op] = status
}

func (s *Server) CallCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// FileID returns the id of the named file in the dataset, or 0.
func (s *Server) FileID(pid, filename string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.datasets[pid]
	if !ok {
		return 0
	}

	for _, f := range ds.files {
		if f.Filename() == filename {
			return f.ID()
		}
	}

	return 0
}

// Content returns the bytes stored for the named file in the dataset.
func (s *Server) Content(pid, filename string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.datasets[pid]
	if !ok {
		return nil, false
	}

	for _, f := range ds.files {
		if f.Filename() == filename {
			b, ok := s.contents[f.ID()]
			return b, ok
		}
	}

	return nil, false
}

// Datasets returns the persistent ids of all datasets, sorted.
func (s *Server) Datasets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	pids := make([]string, 0, len(s.datasets))
	for pid := range s.datasets {
		pids = append(pids, pid)
	}

	sort.Strings(pids)
	return pids
}

func (s *Server) Dataset(pid string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds, ok := s.datasets[pid]
	if !ok {
		return Snapshot{}, false
	}

	return Snapshot{
		ID:        ds.id,
		PID:       ds.pid,
		Citation:  ds.citation,
		License:   ds.license,
		Files:     dataverse.Filenames(ds.files),
		Patches:   append([]json.RawMessage(nil), ds.patches...),
		Uploads:   append([]dataverse.FileMetadata(nil), ds.uploads...),
		Published: append([]string(nil), ds.released...),
	}, true
}

func (s *Server) newDatasetLocked(pid string) *dataset {
	s.nextID++
	if pid == "" {
		pid = fmt.Sprintf("doi:10.5072/FK2/%06d", s.nextID)
	}

	ds := &dataset{id: s.nextID, pid: pid}
	s.datasets[pid] = ds
	s.datasetsByID[ds.id] = ds

	return ds
}

func (s *Server) addFileLocked(ds *dataset, name string, content []byte, description string, restricted bool) int {
	s.nextID++
	ds.files = append(ds.files, dataverse.FileDescriptor{
		Label:       name,
		Description: description,
		Restricted:  restricted,
		DataFile: dataverse.DataFile{
			ID:       s.nextID,
			Filename: name,
			Filesize: int64(len(content)),
		},
	})
	s.contents[s.nextID] = content

	return s.nextID
}

// consumeFailure reports whether an injected failure applies, decrementing the
// remaining count when it isn't permanent.
func consumeFailure(m map[string]int, key string) bool {
	n, ok := m[key]
	if !ok || n == 0 {
		return false
	}

	if n > 0 {
		m[key] = n - 1
	}

	return true
}

func (s *Server) checkToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()

		if token != "" && c.Request().Header.Get("X-Dataverse-key") != token {
			return errorJSON(c, http.StatusUnauthorized, "Bad API key")
		}

		return next(c)
	}
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]interface{}{"status": "ERROR", "message": msg})
}

func okJSON(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, map[string]interface{}{"status": "OK", "data": data})
}

// begin counts the call and returns any status forced with SetStatus.
func (s *Server) begin(op string) int {
	s.calls[op]++
	return s.opStatus[op]
}

// lookupLocked resolves the :id path parameter, which is either a numeric id or
// the literal ":persistentId" with the pid in the query.
func (s *Server) lookupLocked(c echo.Context) (*dataset, bool) {
	id := c.Param("id")
	if id == ":persistentId" {
		ds, ok := s.datasets[c.QueryParam("persistentId")]
		return ds, ok
	}

	n, err := strconv.Atoi(id)
	if err != nil {
		return nil, false
	}

	ds, ok := s.datasetsByID[n]
	return ds, ok
}

func (s *Server) getDataset(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status := s.begin(OpGetDataset); status != 0 {
		return errorJSON(c, status, "forced failure")
	}

	ds, ok := s.lookupLocked(c)
	if !ok {
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("Dataset with Persistent ID %s not found.", c.QueryParam("persistentId")))
	}

	blocks := map[string]json.RawMessage{}
	if ds.citation != nil {
		blocks["citation"] = ds.citation
	}

	files := append([]dataverse.FileDescriptor{}, ds.files...)
	return okJSON(c, http.StatusOK, dataverse.Dataset{
		ID:            ds.id,
		PersistentURL: "https://doi.org/" + ds.pid,
		LatestVersion: dataverse.DatasetVersion{
			VersionState:   "DRAFT",
			MetadataBlocks: blocks,
			Files:          files,
		},
	})
}

func (s *Server) createDataset(c echo.Context) error {
	var req struct {
		DatasetVersion struct {
			License        json.RawMessage            `json:"license"`
			MetadataBlocks map[string]json.RawMessage `json:"metadataBlocks"`
		} `json:"datasetVersion"`
	}

	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Error parsing Json: "+err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if status := s.begin(OpCreate); status != 0 {
		return errorJSON(c, status, "forced failure")
	}

	if _, ok := req.DatasetVersion.MetadataBlocks["citation"]; !ok {
		return errorJSON(c, http.StatusBadRequest, "Validation Failed: citation block missing")
	}

	ds := s.newDatasetLocked("")
	ds.citation = req.DatasetVersion.MetadataBlocks["citation"]
	ds.license = req.DatasetVersion.License

	return okJSON(c, http.StatusCreated, dataverse.CreatedDataset{ID: ds.id, PersistentID: ds.pid})
}

func (s *Server) editMetadata(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if status := s.begin(OpEditMetadata); status != 0 {
		return errorJSON(c, status, "forced failure")
	}

	ds, ok := s.lookupLocked(c)
	if !ok {
		return errorJSON(c, http.StatusNotFound, "dataset not found")
	}

	if c.QueryParam("replace") != "true" {
		return errorJSON(c, http.StatusBadRequest, "replace=true required")
	}

	ds.patches = append(ds.patches, json.RawMessage(body))
	return okJSON(c, http.StatusOK, map[string]interface{}{"id": ds.id})
}

func (s *Server) addFile(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "file part missing")
	}

	var meta dataverse.FileMetadata
	if err := json.Unmarshal([]byte(c.FormValue("jsonData")), &meta); err != nil {
		return errorJSON(c, http.StatusBadRequest, "bad jsonData: "+err.Error())
	}

	f, err := fh.Open()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if status := s.begin(OpUpload); status != 0 {
		return errorJSON(c, status, "forced failure")
	}

	ds, ok := s.lookupLocked(c)
	if !ok {
		return errorJSON(c, http.StatusNotFound, "dataset not found")
	}

	if consumeFailure(s.uploadFails, fh.Filename) {
		return errorJSON(c, http.StatusInternalServerError, "upload failed for "+fh.Filename)
	}

	id := s.addFileLocked(ds, fh.Filename, content, meta.Description, meta.Restrict)
	ds.uploads = append(ds.uploads, meta)

	return okJSON(c, http.StatusOK, map[string]interface{}{
		"files": []map[string]interface{}{{"dataFile": map[string]interface{}{"id": id, "filename": fh.Filename}}},
	})
}

func (s *Server) publish(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status := s.begin(OpPublish); status != 0 {
		return errorJSON(c, status, "forced failure")
	}

	if c.Param("action") != ":publish" {
		return errorJSON(c, http.StatusNotFound, "unknown action")
	}

	ds, ok := s.lookupLocked(c)
	if !ok {
		return errorJSON(c, http.StatusNotFound, "dataset not found")
	}

	ds.released = append(ds.released, c.QueryParam("type"))
	return okJSON(c, http.StatusOK, map[string]interface{}{"id": ds.id, "versionState": "RELEASED"})
}

func (s *Server) download(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status := s.begin(OpDownload); status != 0 {
		return errorJSON(c, status, "forced failure")
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "bad file id")
	}

	content, ok := s.contents[id]
	if !ok {
		return errorJSON(c, http.StatusNotFound, "File not found")
	}

	if n, ok := s.downloadFails[id]; ok && n != 0 {
		if n > 0 {
			s.downloadFails[id] = n - 1
		}
		return errorJSON(c, http.StatusInternalServerError, "download failed")
	}

	return c.Blob(http.StatusOK, "application/octet-stream", content)
}
