package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// getenv returns the value of the environment variable named by key or
// fallback if the variable is not present.
func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

const (
	FilesystemName = "example-filesystem"
	DirectoryName  = "reports/2026"
	FileName       = "reports/2026/summary.txt"
	HeadChunk      = "Hello from the Datapond example!\n"
	TailChunk      = "Appends are ordered by position, not arrival.\n"
)

// Client is a minimal client for the emulator's HTTP surface. The upstream
// Azure SDKs expect XML container listings where this service speaks JSON,
// so the example drives the endpoints directly.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, headers map[string]string, body []byte) (*http.Response, error) {
	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request for %q: %w", method, path, err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return c.HTTP.Do(req)
}

func unexpectedStatus(op string, resp *http.Response) error {
	payload, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("%s: unexpected status %s: %s", op, resp.Status, bytes.TrimSpace(payload))
}

// EnsureFilesystem creates a filesystem, tolerating one that already exists.
func EnsureFilesystem(ctx context.Context, client *Client, name string) error {
	resp, err := client.do(ctx, http.MethodPut, "/"+name, url.Values{"restype": {"container"}}, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		slog.Info("Created filesystem", "filesystem", name)
	case http.StatusConflict:
		slog.Info("Filesystem already exists", "filesystem", name)
	default:
		return unexpectedStatus("create filesystem", resp)
	}

	return nil
}

// SetFilesystemProperties attaches metadata to a filesystem. The properties
// header carries comma-separated key=value pairs.
func SetFilesystemProperties(ctx context.Context, client *Client, name string, properties string) error {
	query := url.Values{"restype": {"container"}, "comp": {"metadata"}}
	headers := map[string]string{"x-ms-properties": properties}

	resp, err := client.do(ctx, http.MethodPut, "/"+name, query, headers, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unexpectedStatus("set filesystem properties", resp)
	}

	slog.Info("Updated filesystem properties", "filesystem", name, "properties", properties)
	return nil
}

// ShowFilesystemProperties fetches a filesystem's record and logs it.
func ShowFilesystemProperties(ctx context.Context, client *Client, name string) error {
	resp, err := client.do(ctx, http.MethodGet, "/"+name, url.Values{"restype": {"container"}}, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unexpectedStatus("get filesystem properties", resp)
	}

	var record struct {
		Date         string            `json:"date"`
		LastModified string            `json:"last_modified"`
		Metadata     map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return fmt.Errorf("failed to decode filesystem properties: %w", err)
	}

	slog.Info("Filesystem properties", "filesystem", name, "created", record.Date, "modified", record.LastModified, "metadata", record.Metadata)
	return nil
}

// CreateDirectory creates a directory, including any missing parents.
func CreateDirectory(ctx context.Context, client *Client, filesystem string, directory string) error {
	resp, err := client.do(ctx, http.MethodPut, "/"+filesystem+"/"+directory, url.Values{"resource": {"directory"}}, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return unexpectedStatus("create directory", resp)
	}

	slog.Info("Created directory", "filesystem", filesystem, "directory", directory)
	return nil
}

// CreateFile creates an empty file ready to receive appends.
func CreateFile(ctx context.Context, client *Client, filesystem string, file string) error {
	resp, err := client.do(ctx, http.MethodPut, "/"+filesystem+"/"+file, url.Values{"resource": {"file"}}, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return unexpectedStatus("create file", resp)
	}

	slog.Info("Created file", "filesystem", filesystem, "file", file)
	return nil
}

// AppendChunk stages a chunk of data at the given position. Nothing is
// visible in the file until a flush.
func AppendChunk(ctx context.Context, client *Client, filesystem string, file string, position int64, chunk string) error {
	query := url.Values{"action": {"append"}, "position": {strconv.FormatInt(position, 10)}}

	resp, err := client.do(ctx, http.MethodPatch, "/"+filesystem+"/"+file, query, nil, []byte(chunk))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return unexpectedStatus("append to file", resp)
	}

	slog.Info("Staged append", "file", file, "position", position, "bytes", len(chunk))
	return nil
}

// FlushFile commits every staged append to the file in position order.
func FlushFile(ctx context.Context, client *Client, filesystem string, file string) error {
	resp, err := client.do(ctx, http.MethodPatch, "/"+filesystem+"/"+file, url.Values{"action": {"flush"}}, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unexpectedStatus("flush file", resp)
	}

	slog.Info("Flushed file", "file", file)
	return nil
}

// ReadFile downloads a file and logs its content.
func ReadFile(ctx context.Context, client *Client, filesystem string, file string) error {
	resp, err := client.do(ctx, http.MethodGet, "/"+filesystem+"/"+file, nil, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unexpectedStatus("read file", resp)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read file body: %w", err)
	}

	slog.Info("Read file", "file", file, "size", len(content), "content", string(content))
	return nil
}

// ListPaths lists every path in the filesystem recursively.
func ListPaths(ctx context.Context, client *Client, filesystem string) error {
	query := url.Values{"resource": {"filesystem"}, "recursive": {"true"}}

	resp, err := client.do(ctx, http.MethodGet, "/"+filesystem, query, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unexpectedStatus("list paths", resp)
	}

	var listing struct {
		Paths []struct {
			Name          string `json:"name"`
			IsDirectory   bool   `json:"isDirectory"`
			ContentLength int64  `json:"contentLength"`
		} `json:"paths"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return fmt.Errorf("failed to decode path listing: %w", err)
	}

	slog.Info("Paths in filesystem", "filesystem", filesystem)
	for _, path := range listing.Paths {
		slog.Info("Path in filesystem", "name", path.Name, "directory", path.IsDirectory, "size", path.ContentLength)
	}

	return nil
}

// ListFilesystems walks the server's filesystem listing. The listing arrives
// as a stream of single-item pages.
func ListFilesystems(ctx context.Context, client *Client) error {
	resp, err := client.do(ctx, http.MethodGet, "/", url.Values{"comp": {"list"}}, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unexpectedStatus("list filesystems", resp)
	}

	decoder := json.NewDecoder(resp.Body)
	for {
		var page struct {
			ContainerItems []struct {
				Name string `json:"Name"`
			} `json:"ContainerItems"`
		}

		if err := decoder.Decode(&page); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to decode filesystem listing: %w", err)
		}

		for _, item := range page.ContainerItems {
			slog.Info("Filesystem on server", "name", item.Name)
		}
	}

	return nil
}

// DeletePath removes a path. Directories need recursive=true unless empty.
func DeletePath(ctx context.Context, client *Client, filesystem string, path string, recursive bool) error {
	query := url.Values{"recursive": {strconv.FormatBool(recursive)}}

	resp, err := client.do(ctx, http.MethodDelete, "/"+filesystem+"/"+path, query, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return unexpectedStatus("delete path", resp)
	}

	slog.Info("Deleted path", "filesystem", filesystem, "path", path)
	return nil
}

// DeleteFilesystem removes a filesystem and everything beneath it.
func DeleteFilesystem(ctx context.Context, client *Client, name string) error {
	resp, err := client.do(ctx, http.MethodDelete, "/"+name, url.Values{"restype": {"container"}}, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return unexpectedStatus("delete filesystem", resp)
	}

	slog.Info("Deleted filesystem", "filesystem", name)
	return nil
}

func Run(ctx context.Context, client *Client) error {
	// Ensure the example filesystem exists.
	if err := EnsureFilesystem(ctx, client, FilesystemName); err != nil {
		return fmt.Errorf("failed to ensure filesystem exists: %w", err)
	}

	// 1. Tag the filesystem with some metadata.
	if err := SetFilesystemProperties(ctx, client, FilesystemName, "owner=example, team=storage"); err != nil {
		return fmt.Errorf("failed to set filesystem properties: %w", err)
	}

	// 2. Read the filesystem record back.
	if err := ShowFilesystemProperties(ctx, client, FilesystemName); err != nil {
		return fmt.Errorf("failed to show filesystem properties: %w", err)
	}

	// 3. Create a nested directory.
	if err := CreateDirectory(ctx, client, FilesystemName, DirectoryName); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// 4. Create an empty file inside it.
	if err := CreateFile(ctx, client, FilesystemName, FileName); err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	// 5. Stage two appends out of order. The positions decide the final
	// layout, not the order of arrival.
	if err := AppendChunk(ctx, client, FilesystemName, FileName, 1, TailChunk); err != nil {
		return fmt.Errorf("failed to append tail chunk: %w", err)
	}
	if err := AppendChunk(ctx, client, FilesystemName, FileName, 0, HeadChunk); err != nil {
		return fmt.Errorf("failed to append head chunk: %w", err)
	}

	// 6. Flush the staged appends into the file.
	if err := FlushFile(ctx, client, FilesystemName, FileName); err != nil {
		return fmt.Errorf("failed to flush file: %w", err)
	}

	// 7. Read the assembled file back.
	if err := ReadFile(ctx, client, FilesystemName, FileName); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	// 8. List every path in the filesystem.
	if err := ListPaths(ctx, client, FilesystemName); err != nil {
		return fmt.Errorf("failed to list paths: %w", err)
	}

	// 9. List the filesystems on the server.
	if err := ListFilesystems(ctx, client); err != nil {
		return fmt.Errorf("failed to list filesystems: %w", err)
	}

	// 10. Clean up the file tree, then the filesystem itself.
	if err := DeletePath(ctx, client, FilesystemName, "reports", true); err != nil {
		return fmt.Errorf("failed to delete path: %w", err)
	}
	if err := DeleteFilesystem(ctx, client, FilesystemName); err != nil {
		return fmt.Errorf("failed to delete filesystem: %w", err)
	}

	return nil
}

func main() {
	endpoint := getenv("DATAPOND_ENDPOINT", "http://localhost:8000")

	client := &Client{
		BaseURL: strings.TrimRight(endpoint, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}

	ctx := context.Background()

	if err := Run(ctx, client); err != nil {
		slog.Error("error running example", "err", err)
		os.Exit(1)
	}
}
