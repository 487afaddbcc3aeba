package inferctl

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"inferd/pkg/types"
)

// Client is a thin HTTP client for the inferd API.
type Client struct {
	base string
	http *http.Client
}

// NewClient builds a client for the given base URL, e.g. http://localhost:8080.
func NewClient(base string) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) do(method, path string, body []byte, contentType string, out any) error {
	req, err := http.NewRequest(method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr types.ErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// PutChunk uploads one out-of-order chunk under id.
func (c *Client) PutChunk(id uint32, data []byte) error {
	path := "/upload/parallel/" + strconv.FormatUint(uint64(id), 10)
	return c.do(http.MethodPut, path, data, "application/octet-stream", nil)
}

// ParallelStatus reports the staged chunk map. With expected >= 0 the server
// also checks the ids form the dense range [0, expected).
func (c *Client) ParallelStatus(expected int) (types.ParallelStatus, error) {
	path := "/upload/parallel"
	if expected >= 0 {
		path += "?expected=" + strconv.Itoa(expected)
	}
	var status types.ParallelStatus
	err := c.do(http.MethodGet, path, nil, "", &status)
	return status, err
}

// CommitParallel consolidates staged chunks straight into stable storage.
func (c *Client) CommitParallel(key string) (int, error) {
	var resp types.ConsolidateResponse
	err := c.do(http.MethodPost, "/storage/"+key+"/commit-parallel", nil, "", &resp)
	return resp.Bytes, err
}

// ClearParallel discards all staged chunks.
func (c *Client) ClearParallel() error {
	return c.do(http.MethodDelete, "/upload/parallel", nil, "", nil)
}

// Setup loads the model from stored artifacts.
func (c *Client) Setup() (types.ModelInfo, error) {
	var info types.ModelInfo
	err := c.do(http.MethodPost, "/model/setup", nil, "", &info)
	return info, err
}

// Generate runs one generation call.
func (c *Client) Generate(req types.GenerateRequest) (types.GenerateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return types.GenerateResponse{}, err
	}
	var resp types.GenerateResponse
	err = c.do(http.MethodPost, "/generate", body, "application/json", &resp)
	return resp, err
}

// Reset clears the model's generation history.
func (c *Client) Reset() (types.ModelInfo, error) {
	var info types.ModelInfo
	err := c.do(http.MethodPost, "/model/reset", nil, "", &info)
	return info, err
}

// Info reports the current model state.
func (c *Client) Info() (types.ModelInfo, error) {
	var info types.ModelInfo
	err := c.do(http.MethodGet, "/model/info", nil, "", &info)
	return info, err
}

// StorageStatus returns the server's staging and storage summary.
func (c *Client) StorageStatus() (string, error) {
	var status types.StorageStatusResponse
	err := c.do(http.MethodGet, "/storage/status", nil, "", &status)
	return status.Status, err
}
