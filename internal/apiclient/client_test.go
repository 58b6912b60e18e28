package apiclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asset-processing/worker/internal/job"
	"github.com/asset-processing/worker/internal/testutil"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient("http://localhost", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPIKeyRequired)
}

func TestListJobs_ReturnsEmptyOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	jobs := c.ListJobs(t.Context())
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)
}

func TestListJobs_SkipsUnknownStatus(t *testing.T) {
	valid := testutil.NewJob(job.StatusCreated)
	unknown := testutil.NewJob(job.Status("archived"))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/asset-processing-job", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode([]job.Job{valid, unknown})
	}))
	defer server.Close()

	c, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	jobs := c.ListJobs(t.Context())
	require.Len(t, jobs, 1)
	assert.Equal(t, valid.ID, jobs[0].ID)
}

func TestPatchJob_SendsSparseUpdate(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/asset-processing-job/j1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	attempts := 1
	ok := c.PatchJob(t.Context(), "j1", job.JobUpdate{
		Status:   job.StatusFailed,
		Attempts: &attempts,
	})

	assert.True(t, ok)
	assert.Equal(t, "failed", captured["status"])
	assert.EqualValues(t, 1, captured["attempts"])
	assert.NotContains(t, captured, "lastHeartBeat")
}

func TestPatchJob_DoesNotRetryOnFailure(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	ok := c.PatchJob(t.Context(), "j1", job.JobUpdate{Status: job.StatusInProgress})

	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestFetchAsset_AbsentOnNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	_, ok := c.FetchAsset(t.Context(), "missing")
	assert.False(t, ok)
}

func TestFetchAsset_ReturnsDecodedAsset(t *testing.T) {
	want := testutil.NewAsset(job.FileTypeText)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/asset/"+want.ID, r.URL.Path)
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer server.Close()

	c, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	asset, ok := c.FetchAsset(t.Context(), want.ID)
	require.True(t, ok)
	assert.Equal(t, want.FileName, asset.FileName)
}

func TestFetchBlob_ReturnsApiErrorOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c, err := NewClient("http://unused", "test-key")
	require.NoError(t, err)

	_, err = c.FetchBlob(t.Context(), server.URL+"/blob")
	require.Error(t, err)

	var apiErr *ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.Code)
}

func TestFetchBlob_ReturnsBytesOnSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer server.Close()

	c, err := NewClient("http://unused", "test-key")
	require.NoError(t, err)

	data, err := c.FetchBlob(t.Context(), server.URL+"/blob")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFetchBlob_S3URLWithoutBlobStoreFails(t *testing.T) {
	c, err := NewClient("http://unused", "test-key")
	require.NoError(t, err)

	_, err = c.FetchBlob(t.Context(), "s3://bucket/key")
	require.Error(t, err)
}

func TestPatchAssetContent_ReportsFalseOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	ok := c.PatchAssetContent(t.Context(), "a1", "content")
	assert.False(t, ok)
}

func TestPatchAssetContent_Success(t *testing.T) {
	var captured map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/asset/a1", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	ok := c.PatchAssetContent(t.Context(), "a1", "hello world")
	assert.True(t, ok)
	assert.Equal(t, "hello world", captured["content"])
}
