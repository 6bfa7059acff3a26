package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-dispatch/internal/alerts"
)

func TestActiveAlerts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/alerts/active", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]alerts.Alert{
			{ID: "a1", SiteID: "s1", Status: alerts.StatusNew},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1")
	got, err := c.ActiveAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, alerts.PlaceholderSnapshotURL, got[0].Media.SnapshotURL)
}

func TestUpdateAlertStatus(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/alerts/a1/status", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	require.NoError(t, c.UpdateAlertStatus(context.Background(), "a1", alerts.StatusAcknowledged))
	assert.Equal(t, "Acknowledged", gotBody["status"])
}

func TestAddNote(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alerts/a1/notes", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	require.NoError(t, c.AddNote(context.Background(), "a1", "dispatched patrol"))
	assert.Equal(t, "dispatched patrol", gotBody["text"])
}

func TestRejectionSurfacesInline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"alert already resolved"}`, http.StatusConflict)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	err := c.UpdateAlertStatus(context.Background(), "a1", alerts.StatusNew)
	require.Error(t, err)
	assert.True(t, IsRejection(err))
	assert.Contains(t, err.Error(), "409")
}

func TestServerErrorIsNotRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	err := c.UpdateAlertStatus(context.Background(), "a1", alerts.StatusResolved)
	require.Error(t, err)
	assert.False(t, IsRejection(err))
}

func TestSourceURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/video/source-url", r.URL.Path)
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "cam-7", body["cameraId"])
		json.NewEncoder(w).Encode(map[string]string{"sourceUrl": "rtsp://10.0.0.7/main"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	url, err := c.SourceURL(context.Background(), "cam-7")
	require.NoError(t, err)
	assert.Equal(t, "rtsp://10.0.0.7/main", url)
}

func TestSourceURL_MissingLocator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	_, err := c.SourceURL(context.Background(), "cam-7")
	assert.Error(t, err)
}

func TestRelayLifecycleCalls(t *testing.T) {
	type call struct{ method, path string }
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	ctx := context.Background()
	require.NoError(t, c.StartRelay(ctx, "camera_7", "rtsp://10.0.0.7/main"))
	require.NoError(t, c.RenewRelay(ctx, "camera_7", "rtsp://10.0.0.7/main"))

	require.Len(t, calls, 2)
	assert.Equal(t, call{http.MethodPost, "/video/start-relay"}, calls[0])
	assert.Equal(t, call{http.MethodPatch, "/video/stream"}, calls[1])
}
