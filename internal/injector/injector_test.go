package injector

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeusync/grabkit/internal/core/observability/log"
	"github.com/zeusync/grabkit/internal/core/scene"
)

func TestInitializeApp(t *testing.T) {
	cfg := scene.DefaultConfig()
	cfg.Log.Level = log.LevelWarn
	cfg.Targets = []scene.TargetConfig{{
		Name:       "crate",
		Follow:     "translate",
		Primitives: []scene.PrimitiveConfig{{Name: "body", Shape: "box", HalfExtents: [3]float64{0.1, 0.1, 0.1}}},
	}}
	cfg.Pointers = []scene.PointerConfig{{Name: "left", Kind: "near"}}
	cfg.Metrics.Enabled = true

	app, cleanup, err := InitializeApp(cfg)
	require.NoError(t, err)
	defer cleanup()

	require.Equal(t, log.LevelWarn, app.Logger.GetLevel())
	require.Same(t, app.Events, app.Scene.Events())
	require.Contains(t, app.Handles.Targets, "crate")
	require.Contains(t, app.Handles.Near, "left")
	require.NotNil(t, app.Stream)
	require.NotNil(t, app.Metrics)

	rec := httptest.NewRecorder()
	app.Stream.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "grabkit_stream_clients 0")

	_, ok := app.Scene.Target(app.Handles.Targets["crate"])
	require.True(t, ok)
}

func TestInitializeAppRejectsBadConfig(t *testing.T) {
	cfg := scene.DefaultConfig()
	cfg.Pointers = []scene.PointerConfig{{Name: "eye", Kind: "gaze"}}

	_, _, err := InitializeApp(cfg)
	require.ErrorIs(t, err, scene.ErrUnknownPointerKind)
}
