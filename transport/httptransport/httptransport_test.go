package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loonylabs-dev/react-native-offline-sync/transport"
)

func staticToken(tok string) TokenFunc {
	return func(ctx context.Context) (string, error) { return tok, nil }
}

func TestPushSendsBearerTokenToPushEndpointAndDecodesResponse(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody transport.PushRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(transport.PushResponse{Success: true}))
	}))
	defer srv.Close()

	tr := New(srv.URL, staticToken("tok-123"))
	resp, err := tr.Push(context.Background(), transport.PushRequest{
		Changes: []transport.Change{{TableName: "notes", Operation: "CREATE", RecordID: "rec-1"}},
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, "Bearer tok-123", gotAuth)
	require.Equal(t, "/sync/push", gotPath)
	require.Len(t, gotBody.Changes, 1)
	require.Equal(t, "rec-1", gotBody.Changes[0].RecordID)
}

func TestPullPostsToPullEndpointAndDecodesResponse(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(transport.PullResponse{Timestamp: 42}))
	}))
	defer srv.Close()

	tr := New(srv.URL, staticToken("tok"))
	resp, err := tr.Pull(context.Background(), transport.PullRequest{Tables: []string{"notes"}})
	require.NoError(t, err)
	require.Equal(t, int64(42), resp.Timestamp)
	require.Equal(t, "/sync/pull", gotPath)
}

func TestPushReturnsErrorOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	tr := New(srv.URL, staticToken("tok"))
	_, err := tr.Push(context.Background(), transport.PushRequest{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
}

func TestPushPropagatesTokenFuncError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called when token minting fails")
	}))
	defer srv.Close()

	tr := New(srv.URL, func(ctx context.Context) (string, error) {
		return "", context.DeadlineExceeded
	})
	_, err := tr.Push(context.Background(), transport.PushRequest{})
	require.Error(t, err)
}

func TestPushWithoutTokenFuncOmitsAuthorizationHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(transport.PushResponse{Success: true})
	}))
	defer srv.Close()

	tr := New(srv.URL, nil)
	_, err := tr.Push(context.Background(), transport.PushRequest{})
	require.NoError(t, err)
	require.Empty(t, gotAuth)
}
