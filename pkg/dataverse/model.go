package dataverse

import "encoding/json"

// envelope is the wrapper Dataverse puts around every JSON response.
type envelope struct {
	Status  string          `json:"status"`
	Message json.RawMessage `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type Dataset struct {
	ID            int            `json:"id"`
	Identifier    string         `json:"identifier"`
	PersistentURL string         `json:"persistentUrl"`
	Protocol      string         `json:"protocol"`
	Authority     string         `json:"authority"`
	LatestVersion DatasetVersion `json:"latestVersion"`
}

type DatasetVersion struct {
	ID             int                        `json:"id"`
	VersionState   string                     `json:"versionState"`
	MetadataBlocks map[string]json.RawMessage `json:"metadataBlocks"`
	Files          []FileDescriptor           `json:"files"`
}

// FileDescriptor is one entry of a dataset version's file list. The filename is
// the identity of a file when deciding whether it exists locally or at the
// target; ids differ between installations.
type FileDescriptor struct {
	Label          string   `json:"label"`
	Description    string   `json:"description,omitempty"`
	Restricted     bool     `json:"restricted"`
	DirectoryLabel string   `json:"directoryLabel,omitempty"`
	DataFile       DataFile `json:"dataFile"`
}

type DataFile struct {
	ID          int    `json:"id"`
	Filename    string `json:"filename"`
	Filesize    int64  `json:"filesize"`
	ContentType string `json:"contentType,omitempty"`
	MD5         string `json:"md5,omitempty"`
}

func (f FileDescriptor) Filename() string {
	return f.DataFile.Filename
}

func (f FileDescriptor) ID() int {
	return f.DataFile.ID
}

// Filenames returns the names of files, in order.
func Filenames(files []FileDescriptor) []string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Filename())
	}

	return names
}

// CreatedDataset is the data returned when a dataset is created in a collection.
type CreatedDataset struct {
	ID           int    `json:"id"`
	PersistentID string `json:"persistentId"`
}

// FileMetadata is sent as the jsonData part of a file upload.
type FileMetadata struct {
	Description    string `json:"description"`
	DirectoryLabel string `json:"directoryLabel,omitempty"`
	Restrict       bool   `json:"restrict"`
	TabIngest      bool   `json:"tabIngest"`
}
