package dataverse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
	MethodPut  Method = "PUT"
)

const apiKeyHeader = "X-Dataverse-key"

// Request is a single call against a Dataverse installation. At most one of JSON
// and File is used; File turns the request into a multipart upload.
type Request struct {
	Method Method
	Path   string
	Query  map[string]string
	JSON   interface{}
	File   *MultipartFile
}

type MultipartFile struct {
	Param  string
	Path   string
	Fields map[string]string
}

// Response is what came back from a call that reached the server.
type Response struct {
	StatusCode int
	URL        string
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err returns nil for a success status and an *APIError otherwise.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}

	return toAPIError(r.StatusCode, r.URL, r.Body)
}

// Data decodes the data member of a success response into v.
func (r *Response) Data(v interface{}) error {
	if err := r.Err(); err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return malformed(r.StatusCode, r.URL, err)
	}

	if len(env.Data) == 0 {
		return malformed(r.StatusCode, r.URL, fmt.Errorf("no data in response"))
	}

	if err := json.Unmarshal(env.Data, v); err != nil {
		return malformed(r.StatusCode, r.URL, err)
	}

	return nil
}

// Client talks to one Dataverse installation. It never retries; callers decide
// what to do with a failure.
type Client struct {
	baseURL string
	r       *resty.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	r := resty.New().
		SetBaseURL(baseURL).
		SetLogger(log.WithField("dataverse", baseURL))

	if token != "" {
		r.SetHeader(apiKeyHeader, token)
	}

	if timeout > 0 {
		r.SetTimeout(timeout)
	}

	return &Client{baseURL: baseURL, r: r}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs req and returns the response for any status code. The error is
// non-nil only when no response was received, the method isn't supported, or a
// multipart file couldn't be read.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	switch req.Method {
	case MethodGet, MethodPost, MethodPut:
	default:
		return nil, &UnsupportedMethodError{Method: string(req.Method)}
	}

	r := c.r.R().SetContext(ctx)

	if len(req.Query) != 0 {
		r.SetQueryParams(req.Query)
	}

	switch {
	case req.File != nil:
		if _, err := os.Stat(req.File.Path); err != nil {
			return nil, errors.Wrapf(err, "unable to read upload file %s", req.File.Path)
		}

		r.SetFile(req.File.Param, req.File.Path)
		if len(req.File.Fields) != 0 {
			r.SetMultipartFormData(req.File.Fields)
		}

	case req.JSON != nil:
		r.SetHeader("Content-Type", "application/json").SetBody(req.JSON)
	}

	resp, err := r.Execute(string(req.Method), req.Path)
	if err != nil {
		return nil, &APIError{Kind: KindTransport, URL: c.baseURL + req.Path, Message: err.Error()}
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		URL:        resp.Request.URL,
		Body:       resp.Body(),
	}, nil
}

func (c *Client) do(ctx context.Context, req Request, data interface{}) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}

	if data == nil {
		return resp.Err()
	}

	return resp.Data(data)
}

func persistentIDQuery(pid string) map[string]string {
	return map[string]string{"persistentId": pid}
}

// GetDataset retrieves the latest version of the dataset identified by pid.
func (c *Client) GetDataset(ctx context.Context, pid string) (*Dataset, error) {
	var ds Dataset
	err := c.do(ctx, Request{
		Method: MethodGet,
		Path:   "/api/datasets/:persistentId",
		Query:  persistentIDQuery(pid),
	}, &ds)

	if err != nil {
		return nil, err
	}

	return &ds, nil
}

// CreateDataset creates a dataset in the collection with the given alias.
func (c *Client) CreateDataset(ctx context.Context, collection string, payload interface{}) (*CreatedDataset, error) {
	var created CreatedDataset
	err := c.do(ctx, Request{
		Method: MethodPost,
		Path:   fmt.Sprintf("/api/dataverses/%s/datasets", collection),
		JSON:   payload,
	}, &created)

	if err != nil {
		return nil, err
	}

	return &created, nil
}

// EditMetadata replaces the given metadata fields on the dataset's draft version.
func (c *Client) EditMetadata(ctx context.Context, pid string, patch interface{}) error {
	return c.do(ctx, Request{
		Method: MethodPut,
		Path:   "/api/datasets/:persistentId/editMetadata",
		Query:  map[string]string{"persistentId": pid, "replace": "true"},
		JSON:   patch,
	}, nil)
}

// ListFiles returns the files in the latest version of the dataset.
func (c *Client) ListFiles(ctx context.Context, pid string) ([]FileDescriptor, error) {
	ds, err := c.GetDataset(ctx, pid)
	if err != nil {
		return nil, err
	}

	return ds.LatestVersion.Files, nil
}

// UploadFile adds the local file at path to the dataset with the numeric id.
func (c *Client) UploadFile(ctx context.Context, datasetID int, path string, meta FileMetadata) error {
	jsonData, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "unable to encode file metadata")
	}

	return c.do(ctx, Request{
		Method: MethodPost,
		Path:   fmt.Sprintf("/api/datasets/%d/add", datasetID),
		File: &MultipartFile{
			Param:  "file",
			Path:   path,
			Fields: map[string]string{"jsonData": string(jsonData)},
		},
	}, nil)
}

// PublishDataset releases the dataset as a major or minor version.
func (c *Client) PublishDataset(ctx context.Context, pid, releaseType string) error {
	return c.do(ctx, Request{
		Method: MethodPost,
		Path:   "/api/datasets/:persistentId/actions/:publish",
		Query:  map[string]string{"persistentId": pid, "type": releaseType},
	}, nil)
}

// DownloadOriginal streams the original format bytes of the file into destPath.
// The bytes are written to destPath+".part" first and renamed once complete, so
// destPath only exists when the download succeeded.
func (c *Client) DownloadOriginal(ctx context.Context, fileID int, destPath string) error {
	path := fmt.Sprintf("/api/access/datafile/%d", fileID)
	resp, err := c.r.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetQueryParam("format", "original").
		Get(path)
	if err != nil {
		return &APIError{Kind: KindTransport, URL: c.baseURL + path, Message: err.Error()}
	}

	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		b, _ := io.ReadAll(body)
		return toAPIError(resp.StatusCode(), resp.Request.URL, b)
	}

	partPath := destPath + ".part"
	f, err := os.Create(partPath)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", partPath)
	}

	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(partPath)
		return &APIError{Kind: KindTransport, URL: resp.Request.URL, Message: err.Error()}
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(partPath)
		return errors.Wrapf(err, "unable to write %s", partPath)
	}

	return errors.Wrapf(os.Rename(partPath, destPath), "unable to move %s into place", partPath)
}
