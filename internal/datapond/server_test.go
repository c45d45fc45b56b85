package datapond

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestServer creates a Server backed by a temporary emulator root.
func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	srv, err := NewServer(Config{RootDir: t.TempDir()})
	require.NoError(t, err, "NewServer error")

	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	return srv, httpSrv
}

// doRequest performs a request with an optional body and returns the response.
func doRequest(t *testing.T, client *http.Client, method string, url string, body string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err, "creating request")

	resp, err := client.Do(req)
	require.NoErrorf(t, err, "%s %s error", method, url)
	return resp
}

// requireErrorCondition decodes the single-key error body and asserts both
// the status code and the condition name.
func requireErrorCondition(t *testing.T, resp *http.Response, status int, condition string) {
	t.Helper()
	defer resp.Body.Close()

	require.Equal(t, status, resp.StatusCode, "status code")

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body), "decoding error body")
	require.Lenf(t, body, 1, "error body should carry exactly one condition, got %v", body)
	require.Contains(t, body, condition, "error condition")
}

// createFilesystem creates a container over HTTP and asserts success.
func createFilesystem(t *testing.T, client *http.Client, baseURL string, name string) {
	t.Helper()

	resp := doRequest(t, client, http.MethodPut, baseURL+"/"+name+"?restype=container", "")
	defer resp.Body.Close()
	require.Equalf(t, http.StatusCreated, resp.StatusCode, "create filesystem %s status", name)
}

// createFile creates an empty file over HTTP and asserts success.
func createFile(t *testing.T, client *http.Client, baseURL string, filesystem string, path string) {
	t.Helper()

	resp := doRequest(t, client, http.MethodPut, baseURL+"/"+filesystem+"/"+path+"?resource=file", "")
	defer resp.Body.Close()
	require.Equalf(t, http.StatusCreated, resp.StatusCode, "create file %s status", path)
}

func TestCreateAndListFilesystems(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	for _, name := range []string{"filesystem1", "filesystem2"} {
		resp := doRequest(t, client, http.MethodPut, httpSrv.URL+"/"+name+"?restype=container", "")
		require.Equalf(t, http.StatusCreated, resp.StatusCode, "PUT filesystem %s status", name)

		var ack filesystemAck
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack), "decoding create ack")
		resp.Body.Close()
		require.Equal(t, name, ack.FilesystemName, "acknowledged filesystem name")
	}

	// List filesystems: the response is a stream of single-item pages.
	resp, err := client.Get(httpSrv.URL + "/?comp=list")
	require.NoError(t, err, "GET /?comp=list error")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "GET /?comp=list status")
	require.NotEmpty(t, resp.Header.Get("x-ms-request-id"), "expected x-ms-request-id header")
	require.Equal(t, apiVersion, resp.Header.Get("x-ms-version"), "x-ms-version header")

	found := map[string]bool{}
	decoder := json.NewDecoder(resp.Body)
	for {
		var page containerListPage
		if err := decoder.Decode(&page); errors.Is(err, io.EOF) {
			break
		} else {
			require.NoError(t, err, "decoding container listing page")
		}

		require.Len(t, page.ContainerItems, 1, "each page carries one container")
		item := page.ContainerItems[0]
		found[item.Name] = true

		require.False(t, item.Deleted, "listed container should not be deleted")
		require.NotEmpty(t, item.Properties.Etag, "expected an Etag on the container item")
		require.NotEmpty(t, item.Properties.LastModified, "expected Last-Modified on the container item")
		require.Equal(t, httpSrv.URL, page.ServiceEndpoint, "service endpoint")
	}

	for _, want := range []string{"filesystem1", "filesystem2"} {
		require.Truef(t, found[want], "expected filesystem %q in listing", want)
	}
}

func TestRootRequiresListComp(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	resp, err := client.Get(httpSrv.URL + "/")
	require.NoError(t, err, "GET / error")
	requireErrorCondition(t, resp, http.StatusForbidden, "Forbidden")

	resp, err = client.Get(httpSrv.URL + "/?comp=stats")
	require.NoError(t, err, "GET /?comp=stats error")
	requireErrorCondition(t, resp, http.StatusForbidden, "Forbidden")
}

func TestFilesystemQueryValidation(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	tests := []struct {
		name      string
		method    string
		url       string
		condition string
	}{
		{name: "put without restype", method: http.MethodPut, url: "/data", condition: "MissingRequiredQueryParameter"},
		{name: "put with unknown restype", method: http.MethodPut, url: "/data?restype=share", condition: "InvalidQueryParameterValue"},
		{name: "get without restype", method: http.MethodGet, url: "/data", condition: "MissingRequiredQueryParameter"},
		{name: "get with unknown restype", method: http.MethodGet, url: "/data?restype=share", condition: "InvalidQueryParameterValue"},
		{name: "delete without restype", method: http.MethodDelete, url: "/data", condition: "MissingRequiredQueryParameter"},
		{name: "delete with unknown restype", method: http.MethodDelete, url: "/data?restype=share", condition: "InvalidQueryParameterValue"},
		{name: "list with unknown resource", method: http.MethodGet, url: "/data?resource=share", condition: "InvalidQueryParameterValue"},
	}

	for _, tc := range tests {
		// capture range variable
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, client, tc.method, httpSrv.URL+tc.url, "")
			requireErrorCondition(t, resp, http.StatusBadRequest, tc.condition)
		})
	}
}

func TestInvalidFilesystemNames(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	tests := []struct {
		name       string
		filesystem string
	}{
		{name: "contains dot", filesystem: "bad.name"},
		{name: "contains space", filesystem: "bad%20name"},
		{name: "contains plus", filesystem: "bad+name"},
	}

	for _, tc := range tests {
		// capture range variable
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, client, http.MethodPut, httpSrv.URL+"/"+tc.filesystem+"?restype=container", "")
			requireErrorCondition(t, resp, http.StatusBadRequest, "InvalidResourceName")
		})
	}
}

func TestFilesystemPropertiesLifecycle(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	createFilesystem(t, client, httpSrv.URL, "data")

	// Creating the same container again must conflict.
	resp := doRequest(t, client, http.MethodPut, httpSrv.URL+"/data?restype=container", "")
	requireErrorCondition(t, resp, http.StatusConflict, "FilesystemAlreadyExists")

	// Properties retrieval surfaces the record as headers and body.
	resp = doRequest(t, client, http.MethodGet, httpSrv.URL+"/data?restype=container", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, "GET properties status")
	require.NotEmpty(t, resp.Header.Get("Last-Modified"), "expected Last-Modified header")
	require.NotEmpty(t, resp.Header.Get("ETag"), "expected ETag header")

	var props filesystemPropertiesBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&props), "decoding properties body")
	resp.Body.Close()
	require.NotEmpty(t, props.Date, "creation date should be set")
	require.NotEmpty(t, props.LastModified, "last-modified should be set")

	// Delete the container and verify it is gone.
	resp = doRequest(t, client, http.MethodDelete, httpSrv.URL+"/data?restype=container", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "DELETE filesystem status")

	var ack filesystemAck
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack), "decoding delete ack")
	resp.Body.Close()
	require.Equal(t, "data", ack.FilesystemName, "acknowledged filesystem name")

	resp = doRequest(t, client, http.MethodGet, httpSrv.URL+"/data?restype=container", "")
	requireErrorCondition(t, resp, http.StatusNotFound, "FilesystemNotFound")
}

func TestSetFilesystemProperties(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	createFilesystem(t, client, httpSrv.URL, "data")

	req, err := http.NewRequest(http.MethodPut, httpSrv.URL+"/data?restype=container&comp=metadata", nil)
	require.NoError(t, err, "creating metadata request")
	req.Header.Set("x-ms-properties", "owner=ops, tier=hot")

	resp, err := client.Do(req)
	require.NoError(t, err, "PUT metadata error")
	require.Equal(t, http.StatusOK, resp.StatusCode, "PUT metadata status")

	var props filesystemPropertiesBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&props), "decoding properties body")
	resp.Body.Close()
	require.Equal(t, "ops", props.Metadata["owner"], "owner metadata")
	require.Equal(t, "hot", props.Metadata["tier"], "tier metadata")

	// A second update merges instead of replacing.
	req, err = http.NewRequest(http.MethodPut, httpSrv.URL+"/data?restype=container&comp=metadata", nil)
	require.NoError(t, err, "creating second metadata request")
	req.Header.Set("x-ms-properties", "tier=cool")

	resp, err = client.Do(req)
	require.NoError(t, err, "second PUT metadata error")
	require.Equal(t, http.StatusOK, resp.StatusCode, "second PUT metadata status")

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&props), "decoding merged properties body")
	resp.Body.Close()
	require.Equal(t, "ops", props.Metadata["owner"], "owner should survive the merge")
	require.Equal(t, "cool", props.Metadata["tier"], "tier should be overwritten")

	// Metadata updates on a missing container fail like any other lookup.
	req, err = http.NewRequest(http.MethodPut, httpSrv.URL+"/nosuch?restype=container&comp=metadata", nil)
	require.NoError(t, err, "creating metadata request for missing container")
	req.Header.Set("x-ms-properties", "k=v")

	resp, err = client.Do(req)
	require.NoError(t, err, "PUT metadata on missing container error")
	requireErrorCondition(t, resp, http.StatusNotFound, "FilesystemNotFound")
}

func TestCreateDirectoryAndFileRoutes(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	createFilesystem(t, client, httpSrv.URL, "data")

	// Directory creation acknowledges the relative path.
	resp := doRequest(t, client, http.MethodPut, httpSrv.URL+"/data/logs?resource=directory", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create directory status")

	var dirAck directoryAck
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dirAck), "decoding directory ack")
	resp.Body.Close()
	require.Equal(t, "logs", dirAck.DirectoryName, "acknowledged directory name")

	// Repeating the create conflicts.
	resp = doRequest(t, client, http.MethodPut, httpSrv.URL+"/data/logs?resource=directory", "")
	requireErrorCondition(t, resp, http.StatusConflict, "PathAlreadyExists")

	// File creation under the new directory.
	resp = doRequest(t, client, http.MethodPut, httpSrv.URL+"/data/logs/app.log?resource=file", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create file status")

	var fAck fileAck
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fAck), "decoding file ack")
	resp.Body.Close()
	require.Equal(t, "logs/app.log", fAck.FileName, "acknowledged file name")

	// Files require an existing parent directory.
	resp = doRequest(t, client, http.MethodPut, httpSrv.URL+"/data/missing/app.log?resource=file", "")
	requireErrorCondition(t, resp, http.StatusNotFound, "PathNotFound")

	// The resource parameter is mandatory and closed.
	resp = doRequest(t, client, http.MethodPut, httpSrv.URL+"/data/other", "")
	requireErrorCondition(t, resp, http.StatusBadRequest, "MissingRequiredQueryParameter")

	resp = doRequest(t, client, http.MethodPut, httpSrv.URL+"/data/other?resource=table", "")
	requireErrorCondition(t, resp, http.StatusBadRequest, "InvalidQueryParameterValue")

	// Resources cannot be created under a missing container.
	resp = doRequest(t, client, http.MethodPut, httpSrv.URL+"/nosuch/logs?resource=directory", "")
	requireErrorCondition(t, resp, http.StatusNotFound, "FilesystemNotFound")
}

func TestAppendFlushReadRoundTrip(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	createFilesystem(t, client, httpSrv.URL, "data")
	createFile(t, client, httpSrv.URL, "data", "f.txt")

	// Append two payloads out of order.
	resp := doRequest(t, client, http.MethodPatch, httpSrv.URL+"/data/f.txt?action=append&position=1", "b")
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "first append status")

	resp = doRequest(t, client, http.MethodPatch, httpSrv.URL+"/data/f.txt?action=append&position=0", "a")
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "second append status")

	// Reads do not observe unflushed appends.
	resp = doRequest(t, client, http.MethodGet, httpSrv.URL+"/data/f.txt", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, "read before flush status")
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err, "reading body before flush")
	require.Empty(t, data, "unflushed appends should not be visible")

	// Flush commits in ascending position order.
	resp = doRequest(t, client, http.MethodPatch, httpSrv.URL+"/data/f.txt?action=flush", "")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "flush status")

	resp = doRequest(t, client, http.MethodGet, httpSrv.URL+"/data/f.txt", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, "read after flush status")
	require.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"), "content type")
	data, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err, "reading body after flush")
	require.Equal(t, "ab", string(data), "flushed content")

	// Appending to a file that was never created is rejected.
	resp = doRequest(t, client, http.MethodPatch, httpSrv.URL+"/data/nosuch.txt?action=append&position=0", "x")
	requireErrorCondition(t, resp, http.StatusNotFound, "ResourceNotFound")
}

func TestPatchParameterValidation(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	createFilesystem(t, client, httpSrv.URL, "data")
	createFile(t, client, httpSrv.URL, "data", "f.txt")

	tests := []struct {
		name      string
		query     string
		condition string
	}{
		{name: "missing action", query: "", condition: "MissingRequiredQueryParameter"},
		{name: "unknown action", query: "?action=truncate", condition: "InvalidQueryParameterValue"},
		{name: "append without position", query: "?action=append", condition: "MissingRequiredQueryParameter"},
		{name: "append with non-numeric position", query: "?action=append&position=abc", condition: "InvalidQueryParameterValue"},
		{name: "append with negative position", query: "?action=append&position=-1", condition: "InvalidQueryParameterValue"},
	}

	for _, tc := range tests {
		// capture range variable
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, client, http.MethodPatch, httpSrv.URL+"/data/f.txt"+tc.query, "x")
			requireErrorCondition(t, resp, http.StatusBadRequest, tc.condition)
		})
	}
}

func TestDeletePathBehavior(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	createFilesystem(t, client, httpSrv.URL, "data")

	resp := doRequest(t, client, http.MethodPut, httpSrv.URL+"/data/d?resource=directory", "")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create directory status")
	createFile(t, client, httpSrv.URL, "data", "d/f.txt")

	// A populated directory refuses a non-recursive delete.
	resp = doRequest(t, client, http.MethodDelete, httpSrv.URL+"/data/d", "")
	requireErrorCondition(t, resp, http.StatusConflict, "DirectoryNotEmpty")

	// The recursive flag only accepts true or false.
	resp = doRequest(t, client, http.MethodDelete, httpSrv.URL+"/data/d?recursive=yes", "")
	requireErrorCondition(t, resp, http.StatusBadRequest, "InvalidQueryParameterValue")

	resp = doRequest(t, client, http.MethodDelete, httpSrv.URL+"/data/d?recursive=true", "")
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "recursive delete status")

	// The subtree is gone afterwards.
	resp = doRequest(t, client, http.MethodDelete, httpSrv.URL+"/data/d", "")
	requireErrorCondition(t, resp, http.StatusNotFound, "ResourceNotFound")
}

func TestListPathsEnvelope(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	createFilesystem(t, client, httpSrv.URL, "data")
	createFile(t, client, httpSrv.URL, "data", "a.txt")

	resp := doRequest(t, client, http.MethodPut, httpSrv.URL+"/data/d?resource=directory", "")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create directory status")
	createFile(t, client, httpSrv.URL, "data", "d/b.txt")

	decodeListing := func(resp *http.Response) map[string]pathItem {
		t.Helper()
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, "list status")

		var listing pathListing
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing), "decoding path listing")

		byName := map[string]pathItem{}
		for _, item := range listing.Paths {
			byName[item.Name] = item
		}
		return byName
	}

	// Recursive is the default.
	byName := decodeListing(doRequest(t, client, http.MethodGet, httpSrv.URL+"/data?resource=filesystem", ""))
	require.Len(t, byName, 3, "recursive listing count")
	require.Contains(t, byName, "a.txt", "expected a.txt in recursive listing")
	require.Contains(t, byName, "d", "expected d in recursive listing")
	require.Contains(t, byName, "d/b.txt", "expected d/b.txt in recursive listing")
	require.True(t, byName["d"].IsDirectory, "d should be a directory")
	require.False(t, byName["d/b.txt"].IsDirectory, "d/b.txt should be a file")
	require.NotEmpty(t, byName["a.txt"].LastModified, "entries should carry timestamps")

	// Flat listing stops at the top level.
	byName = decodeListing(doRequest(t, client, http.MethodGet, httpSrv.URL+"/data?resource=filesystem&recursive=false", ""))
	require.Len(t, byName, 2, "flat listing count")
	require.Contains(t, byName, "a.txt", "expected a.txt in flat listing")
	require.Contains(t, byName, "d", "expected d in flat listing")

	// Scoped to a directory, names stay container-relative.
	byName = decodeListing(doRequest(t, client, http.MethodGet, httpSrv.URL+"/data?resource=filesystem&directory=d", ""))
	require.Len(t, byName, 1, "scoped listing count")
	require.Contains(t, byName, "d/b.txt", "expected d/b.txt in scoped listing")

	// Listing a missing container fails; a missing directory lists empty.
	resp = doRequest(t, client, http.MethodGet, httpSrv.URL+"/nosuch?resource=filesystem", "")
	requireErrorCondition(t, resp, http.StatusNotFound, "FilesystemNotFound")

	byName = decodeListing(doRequest(t, client, http.MethodGet, httpSrv.URL+"/data?resource=filesystem&directory=nosuch", ""))
	require.Empty(t, byName, "missing directory should list as empty")
}

func TestHeadPathProperties(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	createFilesystem(t, client, httpSrv.URL, "data")
	createFile(t, client, httpSrv.URL, "data", "f.txt")

	resp := doRequest(t, client, http.MethodPatch, httpSrv.URL+"/data/f.txt?action=append&position=0", "12345")
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode, "append status")

	resp = doRequest(t, client, http.MethodPatch, httpSrv.URL+"/data/f.txt?action=flush", "")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "flush status")

	// HEAD on a file reports its type, size, and timestamp as headers.
	resp = doRequest(t, client, http.MethodHead, httpSrv.URL+"/data/f.txt", "")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "HEAD file status")
	require.Equal(t, "file", resp.Header.Get("x-ms-resource-type"), "resource type header")
	require.Equal(t, "5", resp.Header.Get("Content-Length"), "content length header")
	require.NotEmpty(t, resp.Header.Get("Last-Modified"), "expected Last-Modified header")

	resp = doRequest(t, client, http.MethodPut, httpSrv.URL+"/data/d?resource=directory", "")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create directory status")

	resp = doRequest(t, client, http.MethodHead, httpSrv.URL+"/data/d", "")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "HEAD directory status")
	require.Equal(t, "directory", resp.Header.Get("x-ms-resource-type"), "resource type header")

	// HEAD errors carry only the status; there is no body to inspect.
	resp = doRequest(t, client, http.MethodHead, httpSrv.URL+"/data/nosuch", "")
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode, "HEAD missing resource status")
}

func TestReadPathErrors(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	createFilesystem(t, client, httpSrv.URL, "data")

	resp := doRequest(t, client, http.MethodPut, httpSrv.URL+"/data/d?resource=directory", "")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create directory status")

	// Directories have no readable content.
	resp = doRequest(t, client, http.MethodGet, httpSrv.URL+"/data/d", "")
	requireErrorCondition(t, resp, http.StatusNotFound, "ResourceNotFound")

	resp = doRequest(t, client, http.MethodGet, httpSrv.URL+"/data/nosuch.txt", "")
	requireErrorCondition(t, resp, http.StatusNotFound, "ResourceNotFound")

	resp = doRequest(t, client, http.MethodGet, httpSrv.URL+"/nosuch/f.txt", "")
	requireErrorCondition(t, resp, http.StatusNotFound, "FilesystemNotFound")
}

func TestFailureInjection(t *testing.T) {
	t.Parallel()

	srv, err := NewServer(Config{
		RootDir:       t.TempDir(),
		FailureChance: 1,
		FailureRoll:   func() float64 { return 0 },
	})
	require.NoError(t, err, "NewServer error")

	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)
	client := httpSrv.Client()

	// With a certain failure chance, every request is throttled.
	resp := doRequest(t, client, http.MethodPut, httpSrv.URL+"/data?restype=container", "")
	requireErrorCondition(t, resp, http.StatusServiceUnavailable, "ServerBusy")

	resp = doRequest(t, client, http.MethodGet, httpSrv.URL+"/?comp=list", "")
	requireErrorCondition(t, resp, http.StatusServiceUnavailable, "ServerBusy")
}

func TestFailureChanceValidation(t *testing.T) {
	t.Parallel()

	_, err := NewServer(Config{RootDir: t.TempDir(), FailureChance: 1.5})
	require.Error(t, err, "expected error for out-of-range failure chance")

	_, err = NewServer(Config{RootDir: t.TempDir(), FailureChance: -0.1})
	require.Error(t, err, "expected error for negative failure chance")

	_, err = NewServer(Config{})
	require.Error(t, err, "expected error for empty root directory")
}

func TestRequestIDHeaders(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	req, err := http.NewRequest(http.MethodGet, httpSrv.URL+"/?comp=list", nil)
	require.NoError(t, err, "creating request")
	req.Header.Set("x-ms-client-request-id", "client-abc-123")

	resp, err := client.Do(req)
	require.NoError(t, err, "GET /?comp=list error")
	defer resp.Body.Close()

	require.Equal(t, "client-abc-123", resp.Header.Get("x-ms-client-request-id"), "client request id echo")
	require.NotEmpty(t, resp.Header.Get("x-ms-request-id"), "expected x-ms-request-id header")

	// Error responses carry the request id headers too.
	resp2 := doRequest(t, client, http.MethodGet, httpSrv.URL+"/nosuch?restype=container", "")
	defer resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode, "status code")
	require.NotEmpty(t, resp2.Header.Get("x-ms-request-id"), "expected x-ms-request-id on errors")
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	resp := doRequest(t, client, http.MethodPost, httpSrv.URL+"/data", "")
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, "POST filesystem status")

	resp = doRequest(t, client, http.MethodPost, httpSrv.URL+"/data/f.txt", "")
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, "POST path status")
}

func TestDoubledSlashesAreNormalized(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)
	client := httpSrv.Client()

	createFilesystem(t, client, httpSrv.URL, "data")

	resp := doRequest(t, client, http.MethodPut, httpSrv.URL+"/data/d?resource=directory", "")
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode, "create directory status")
	createFile(t, client, httpSrv.URL, "data", "d/f.txt")

	// A doubled slash in the request path still resolves to the resource.
	req, err := http.NewRequest(http.MethodHead, httpSrv.URL+"/data//d/f.txt", nil)
	require.NoError(t, err, "creating request")

	resp, err = client.Do(req)
	require.NoError(t, err, "HEAD with doubled slash error")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "HEAD with doubled slash status")
}
