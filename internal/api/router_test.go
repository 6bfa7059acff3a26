package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-dispatch/internal/alerts"
	"github.com/technosupport/ts-dispatch/internal/dispatch"
	"github.com/technosupport/ts-dispatch/internal/stream"
	"github.com/technosupport/ts-dispatch/internal/video"
)

type stubBackend struct{}

func (stubBackend) ActiveAlerts(context.Context) ([]alerts.Alert, error) { return nil, nil }
func (stubBackend) UpdateAlertStatus(context.Context, string, alerts.Status) error {
	return nil
}
func (stubBackend) AddNote(context.Context, string, string) error { return nil }

type stubContinuity struct{}

func (stubContinuity) Save(context.Context, string, []alerts.Alert) error { return nil }
func (stubContinuity) TryRestore(context.Context, string) ([]alerts.Alert, bool, error) {
	return nil, false, nil
}

type stubVideos struct{}

func (stubVideos) SetView([]string) {}
func (stubVideos) CloseAll()        {}
func (stubVideos) Infos() []video.Info {
	return []video.Info{{CameraID: "cam-1", State: video.StateConnected}}
}

func newTestOrchestrator(t *testing.T) *dispatch.Orchestrator {
	t.Helper()
	o := dispatch.New("op.smith", alerts.NewStore(), stubContinuity{}, stubBackend{}, stubVideos{}, nil, dispatch.Options{})
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(func() { o.Stop(context.Background()) })
	return o
}

func TestState(t *testing.T) {
	o := newTestOrchestrator(t)
	o.HandleStatus(stream.StatusConnected)
	o.HandleEvent(alerts.Event{Kind: alerts.EventCreated, Alert: alerts.Alert{
		ID: "a1", SiteID: "s1", CameraID: "cam-1", Status: alerts.StatusNew, CreatedAt: time.Now(),
	}})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && o.ReadModel().OpenSiteID == "" {
		time.Sleep(2 * time.Millisecond)
	}

	srv := httptest.NewServer(NewRouter(o))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var rm dispatch.ReadModel
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rm))
	assert.Equal(t, stream.StatusConnected, rm.ConnectionStatus)
	assert.Equal(t, "s1", rm.OpenSiteID)
	require.Len(t, rm.RecentAlerts, 1)
	require.Len(t, rm.VideoSessions, 1)
	assert.Equal(t, video.StateConnected, rm.VideoSessions[0].State)
}

func TestHealthz(t *testing.T) {
	o := newTestOrchestrator(t)
	srv := httptest.NewServer(NewRouter(o))
	defer srv.Close()

	// Still connecting: degraded.
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	o.HandleStatus(stream.StatusConnected)
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	o := newTestOrchestrator(t)
	srv := httptest.NewServer(NewRouter(o))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
