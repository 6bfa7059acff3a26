package relay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeOffer = "v=0\r\no=- 0 0 IN IP4 0.0.0.0\r\ns=-\r\n"

func TestNegotiate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/camera_7/whep", r.URL.Path)
		assert.Equal(t, "application/sdp", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, fakeOffer, string(body))

		w.Header().Set("Content-Type", "application/sdp")
		io.WriteString(w, "v=0\r\nanswer\r\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/") // trailing slash is normalized
	answer, err := c.Negotiate(context.Background(), "camera_7", fakeOffer)
	require.NoError(t, err)
	assert.Equal(t, "v=0\r\nanswer\r\n", answer)
}

func TestNegotiate_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Negotiate(context.Background(), "camera_9", fakeOffer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestNegotiate_EmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Negotiate(context.Background(), "camera_9", fakeOffer)
	assert.Error(t, err)
}
