package tensorboard_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gidra39/tensorbot/tensorboard"
	"github.com/gidra39/tensorbot/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Runs(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/data/runs", r.URL.Path)
		w.Write([]byte(`["exp1","exp2"]`))
	})

	client := tensorboard.NewClient(srv.URL, time.Second)
	assert.Equal(t, []string{"exp1", "exp2"}, client.Runs(context.Background()))
}

func TestClient_RunsFailSoft(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := tensorboard.NewClient(srv.URL, time.Second)
	assert.Empty(t, client.Runs(context.Background()))
}

func TestClient_RunsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := tensorboard.NewClient(srv.URL, time.Second)
	assert.Empty(t, client.Runs(context.Background()))
}

func TestClient_RunsTimeout(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`["exp1"]`))
	})

	client := tensorboard.NewClient(srv.URL, 20*time.Millisecond)
	assert.Empty(t, client.Runs(context.Background()))
}

func TestClient_Scalars(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/data/plugin/scalars/tags", r.URL.Path)
		w.Write([]byte(`{"exp1":{"loss":{},"RMSE":{}},"exp2":{"accuracy":{}}}`))
	})

	client := tensorboard.NewClient(srv.URL, time.Second)
	assert.Equal(t, []string{"RMSE", "loss"}, client.Scalars(context.Background(), "exp1"))
	assert.Empty(t, client.Scalars(context.Background(), "unknown"))
}

func TestClient_Series(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/data/plugin/scalars/scalars", r.URL.Path)
		require.Equal(t, "exp1", r.URL.Query().Get("run"))
		require.Equal(t, "RMSE", r.URL.Query().Get("tag"))
		w.Write([]byte(`[[100.5,1,0.9],[101.5,2,0.7]]`))
	})

	client := tensorboard.NewClient(srv.URL, time.Second)
	series := client.Series(context.Background(), "exp1", "RMSE")
	require.Len(t, series, 2)
	assert.Equal(t, types.Sample{WallTime: 100.5, Iteration: 1, Value: 0.9}, series[0])
	assert.Equal(t, types.Sample{WallTime: 101.5, Iteration: 2, Value: 0.7}, series[1])
}

func TestClient_SeriesSkipsMalformedRows(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[100.5,1,0.9],["not","numbers","here"],[101.5,2],{"bad":true},[101.5,2,0.7,99],[102.5,3,0.5]]`))
	})

	client := tensorboard.NewClient(srv.URL, time.Second)
	series := client.Series(context.Background(), "exp1", "RMSE")
	require.Len(t, series, 2)
	assert.Equal(t, 1, series[0].Iteration)
	assert.Equal(t, 3, series[1].Iteration)
}

func TestClient_SeriesFailSoft(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`this is not json`))
	})

	client := tensorboard.NewClient(srv.URL, time.Second)
	assert.True(t, client.Series(context.Background(), "exp1", "RMSE").Empty())
}
