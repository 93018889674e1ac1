package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func createMinimalConfig(t *testing.T, tmpDir string) string {
	configContent := `
http:
  enabled: false
metrics:
  enabled: false
sources:
  kafka:
    enabled: false
  docker:
    enabled: false
  file:
    enabled: false
snapshot:
  enabled: false
tracing:
  enabled: false
`
	configFile := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0644))
	return configFile
}

func TestAppCreation(t *testing.T) {
	configFile := createMinimalConfig(t, t.TempDir())

	a, err := New(configFile)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.NotNil(t, a.listener)
	assert.NotNil(t, a.registry)
	assert.NotNil(t, a.tracer)
}

func TestAppCreationWithInvalidConfig(t *testing.T) {
	a, err := New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.Nil(t, a)
}

func TestAppStartStop(t *testing.T) {
	configFile := createMinimalConfig(t, t.TempDir())

	a, err := New(configFile)
	require.NoError(t, err)

	require.NoError(t, a.Start())
	require.NoError(t, a.Stop())
}

func TestAppStartStop_NoGoroutineLeaks(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("github.com/docker/docker.*"),
		goleak.IgnoreTopFunction("github.com/fsnotify/fsnotify.*"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "trace.log")
	require.NoError(t, os.WriteFile(logPath, nil, 0644))

	configContent := `
http:
  enabled: true
  address: "127.0.0.1:0"
metrics:
  enabled: true
  address: "127.0.0.1:0"
sources:
  file:
    enabled: true
    paths:
      - "` + logPath + `"
`
	configFile := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0644))

	a, err := New(configFile)
	require.NoError(t, err)

	require.NoError(t, a.Start())
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, a.Stop())
}

func TestAppRun(t *testing.T) {
	configFile := createMinimalConfig(t, t.TempDir())

	a, err := New(configFile)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	errChan := make(chan error, 1)
	go func() { errChan <- a.Run() }()

	go func() {
		time.Sleep(50 * time.Millisecond)
		a.cancel()
	}()

	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("app did not shut down in time")
	}
}

func TestAppWithFileSourceAndHTTPEnabled(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "trace.log")
	require.NoError(t, os.WriteFile(logPath, nil, 0644))

	configContent := `
http:
  enabled: true
  address: "127.0.0.1:0"
metrics:
  enabled: false
sources:
  file:
    enabled: true
    paths:
      - "` + logPath + `"
snapshot:
  enabled: false
tracing:
  enabled: false
`
	configFile := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(configContent), 0644))

	a, err := New(configFile)
	require.NoError(t, err)
	require.Len(t, a.sources, 1)
	require.NotNil(t, a.httpServer)

	require.NoError(t, a.Start())
	require.NoError(t, a.Stop())
}
