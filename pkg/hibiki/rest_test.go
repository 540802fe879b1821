package hibiki

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRESTClient(t *testing.T, handler http.Handler) *restClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &restClient{
		baseURL:    srv.URL,
		password:   "testpass",
		httpClient: srv.Client(),
	}
}

func TestRESTAuthorizationHeader(t *testing.T) {
	var gotAuth string
	rest := newTestRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))

	_, err := rest.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "testpass", gotAuth)
}

func TestDecodeTracksBatch(t *testing.T) {
	rest := newTestRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v4/decodetracks", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var handles []string
		require.NoError(t, json.Unmarshal(body, &handles))
		assert.Equal(t, []string{"aaa", "bbb"}, handles)

		w.Write([]byte(`[
			{"encoded": "aaa", "info": {"title": "first"}},
			{"encoded": "bbb", "info": {"title": "second"}}
		]`))
	}))

	tracks, err := rest.DecodeTracks(context.Background(), []string{"aaa", "bbb"})
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "first", tracks[0].Info.Title)
	assert.Equal(t, "second", tracks[1].Info.Title)
}

func TestUpdatePlayerRequestShape(t *testing.T) {
	var gotPath, gotQuery string
	var gotBody map[string]interface{}
	rest := newTestRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))

	err := rest.UpdatePlayer(context.Background(), "sess-9", "guild-7", playerUpdate{
		EncodedTrack: stringPtr("QAAA"),
		Volume:       intPtr(80),
	}, true)
	require.NoError(t, err)

	assert.Equal(t, "/v4/sessions/sess-9/players/guild-7", gotPath)
	assert.Equal(t, "noReplace=true", gotQuery)
	assert.Equal(t, "QAAA", gotBody["encodedTrack"])
	assert.Equal(t, float64(80), gotBody["volume"])
	// Partial update: untouched fields must stay absent.
	_, hasPaused := gotBody["paused"]
	assert.False(t, hasPaused)
}

func TestStopPlayerSendsExplicitNull(t *testing.T) {
	var gotBody string
	rest := newTestRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, rest.StopPlayer(context.Background(), "sess", "guild"))
	assert.JSONEq(t, `{"encodedTrack": null}`, gotBody)
}

func TestDestroyPlayer(t *testing.T) {
	var gotMethod, gotPath string
	rest := newTestRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))

	require.NoError(t, rest.DestroyPlayer(context.Background(), "sess-1", "guild-1"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/v4/sessions/sess-1/players/guild-1", gotPath)
}

func TestUpdateSessionResuming(t *testing.T) {
	var gotBody map[string]interface{}
	rest := newTestRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v4/sessions/sess-1", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		w.Write([]byte(`{}`))
	}))

	require.NoError(t, rest.UpdateSession(context.Background(), "sess-1", true, 90*time.Second))
	assert.Equal(t, true, gotBody["resuming"])
	assert.Equal(t, float64(90), gotBody["timeout"])
}

func TestRESTErrorIncludesStatusAndBody(t *testing.T) {
	rest := newTestRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "no such track"}`, http.StatusNotFound)
	}))

	_, err := rest.DecodeTrack(context.Background(), "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "no such track")
}

func TestRESTHonorsContextCancellation(t *testing.T) {
	blocked := make(chan struct{})
	rest := newTestRESTClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer close(blocked)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := rest.Info(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
