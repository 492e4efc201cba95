// client/client.go
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"dakforge/internal/staging"
	"dakforge/internal/validation"
	shared "dakforge/shared/types"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// Staging operations
func (c *Client) Initialize(repository, branch string) (*staging.StagingGround, error) {
	var ground staging.StagingGround
	err := c.postJSON("/api/staging/init", map[string]string{
		"repository": repository,
		"branch":     branch,
	}, &ground)
	if err != nil {
		return nil, err
	}
	return &ground, nil
}

func (c *Client) GetStagingGround() (*staging.StagingGround, error) {
	var ground staging.StagingGround
	if err := c.getJSON("/api/staging", &ground); err != nil {
		return nil, err
	}
	return &ground, nil
}

func (c *Client) UpdateFile(path, content string, metadata staging.FileMetadata) error {
	return c.postJSON("/api/staging/files", map[string]any{
		"path":     path,
		"content":  content,
		"metadata": metadata,
	}, nil)
}

func (c *Client) RemoveFile(path string) error {
	req, err := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/api/staging/files?path=%s", c.baseURL, url.QueryEscape(path)), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}

func (c *Client) RenameFile(oldPath, newPath string) error {
	return c.postJSON("/api/staging/files/rename", map[string]string{
		"oldPath": oldPath,
		"newPath": newPath,
	}, nil)
}

func (c *Client) UpdateCommitMessage(message string) error {
	data, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/api/staging/message", c.baseURL), bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}

func (c *Client) History() ([]staging.HistoryEntry, error) {
	var history []staging.HistoryEntry
	if err := c.getJSON("/api/staging/history", &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (c *Client) Rollback(savedAt int64) (*staging.StagingGround, error) {
	var ground staging.StagingGround
	err := c.postJSON("/api/staging/rollback", map[string]int64{
		"savedAt": savedAt,
	}, &ground)
	if err != nil {
		return nil, err
	}
	return &ground, nil
}

func (c *Client) Clear() error {
	return c.postJSON("/api/staging/clear", nil, nil)
}

func (c *Client) Contribute(files []staging.Contribution, metadata staging.FileMetadata) (*staging.ContributionResult, error) {
	data, err := json.Marshal(map[string]any{
		"files":    files,
		"metadata": metadata,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Post(
		fmt.Sprintf("%s/api/staging/contribute", c.baseURL),
		"application/json",
		bytes.NewBuffer(data),
	)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 207 carries per-file failures; both are decodable results.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var result staging.ContributionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Export() ([]byte, error) {
	resp, err := c.httpClient.Get(fmt.Sprintf("%s/api/staging/export", c.baseURL))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) Import(payload []byte) (*staging.StagingGround, error) {
	resp, err := c.httpClient.Post(
		fmt.Sprintf("%s/api/staging/import", c.baseURL),
		"application/octet-stream",
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	var ground staging.StagingGround
	if err := json.NewDecoder(resp.Body).Decode(&ground); err != nil {
		return nil, err
	}
	return &ground, nil
}

// Validation operations
func (c *Client) ValidateStagingGround() (*validation.Report, error) {
	var report validation.Report
	if err := c.postJSON("/api/staging/validate", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) ValidateDAK(forceRefresh bool) (*validation.Report, error) {
	path := "/api/validate"
	if forceRefresh {
		path += "?force=true"
	}

	var report validation.Report
	if err := c.getJSON(path, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ListFiles returns the reconciled view of the project: remote files with
// staged edits substituted in place.
func (c *Client) ListFiles() ([]shared.FileEntry, error) {
	var files []shared.FileEntry
	if err := c.getJSON("/api/files", &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Client) getJSON(path string, out any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
