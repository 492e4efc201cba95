// internal/remote/github.go
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	shared "dakforge/shared/types"
)

// GitHub implements the remote repository collaborator against the GitHub
// REST API. Request timeouts live here; callers rely on them instead of
// adding their own.
type GitHub struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewGitHub(baseURL, token string) *GitHub {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &GitHub{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: time.Second * 15,
		},
	}
}

func (c *GitHub) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type contentsResponse struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// GetFileContent fetches one file at the given ref, decoding the API's
// base64 payload.
func (c *GitHub) GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error) {
	var out contentsResponse
	endpoint := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s",
		owner, repo, path, url.QueryEscape(ref))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return "", fmt.Errorf("fetching %s: %w", path, err)
	}

	if out.Encoding != "base64" {
		return out.Content, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(stripNewlines(out.Content))
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", path, err)
	}
	return string(decoded), nil
}

// GetDirectoryContents lists the immediate children of a directory.
func (c *GitHub) GetDirectoryContents(ctx context.Context, owner, repo, path, ref string) ([]shared.FileEntry, error) {
	var out []contentsResponse
	endpoint := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s",
		owner, repo, path, url.QueryEscape(ref))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}

	entries := make([]shared.FileEntry, 0, len(out))
	for _, item := range out {
		if item.Type != "file" {
			continue
		}
		entries = append(entries, shared.FileEntry{
			Path:   item.Path,
			SHA:    item.SHA,
			Size:   item.Size,
			Source: shared.SourceGitHub,
		})
	}
	return entries, nil
}

type treeResponse struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
		Size int64  `json:"size"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

// GetTree lists every blob reachable at the ref. Entries carry path, sha
// and size only.
func (c *GitHub) GetTree(ctx context.Context, owner, repo, ref string) ([]shared.FileEntry, error) {
	var out treeResponse
	endpoint := fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1",
		owner, repo, url.QueryEscape(ref))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("fetching tree: %w", err)
	}

	entries := make([]shared.FileEntry, 0, len(out.Tree))
	for _, item := range out.Tree {
		if item.Type != "blob" {
			continue
		}
		entries = append(entries, shared.FileEntry{
			Path:   item.Path,
			SHA:    item.SHA,
			Size:   item.Size,
			Source: shared.SourceGitHub,
		})
	}
	return entries, nil
}

// CommitFile writes one file through the contents API, creating or
// updating it on the branch. Used by the externally-owned commit step.
func (c *GitHub) CommitFile(ctx context.Context, owner, repo, branch, path, content, message string) error {
	// Updating an existing file requires its current blob sha.
	var existing contentsResponse
	getEndpoint := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s",
		owner, repo, path, url.QueryEscape(branch))
	_ = c.do(ctx, http.MethodGet, getEndpoint, nil, &existing)

	payload := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"branch":  branch,
	}
	if existing.SHA != "" {
		payload["sha"] = existing.SHA
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, path)
	if err := c.do(ctx, http.MethodPut, endpoint, body, nil); err != nil {
		return fmt.Errorf("committing %s: %w", path, err)
	}
	return nil
}

func stripNewlines(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}
