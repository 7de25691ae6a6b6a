package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanindex/internal/config"
	"github.com/Aman-CERP/amanindex/internal/daemon"
	"github.com/Aman-CERP/amanindex/internal/index"
)

func serveConfig(t *testing.T) *config.Config {
	t.Helper()
	dataDir, root := testEnv(t)
	cfg := config.NewConfig()
	cfg.Storage.DataDir = dataDir
	cfg.Paths.Roots = []string{root}
	cfg.Scheduler.Interval = "1h"
	return cfg
}

func TestStartServices_ServesControlSocket(t *testing.T) {
	// Given: a running set of services over a fresh data dir
	cfg := serveConfig(t)
	ctx := context.Background()
	svc, err := startServices(ctx, cfg, serveOptions{transport: transportNone, skipCheck: true})
	require.NoError(t, err)
	defer func() { _ = svc.shutdown() }()

	ctlCfg := daemon.DefaultConfig(cfg.Storage.DataDir)
	client := daemon.NewClient(ctlCfg)
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)

	// When: CLI requests arrive over the socket
	results, searchErr := client.Search(ctx, daemon.SearchParams{Query: "budget"})
	st, statsErr := client.Stats(ctx)
	status, statusErr := client.Status(ctx)
	_, refreshErr := client.Refresh(ctx)

	// Then: the initial build is visible and the scheduler is attached
	require.NoError(t, searchErr)
	require.NoError(t, statsErr)
	require.NoError(t, statusErr)
	require.NoError(t, refreshErr)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, st.TotalFiles)
	assert.True(t, st.StoreValid)
	require.NotNil(t, status.Scheduler)
	assert.True(t, status.Scheduler.Running)
	assert.Equal(t, os.Getpid(), status.PID)

	pid, err := daemon.NewPIDFile(ctlCfg.PIDPath).Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestStartServices_RefusesSecondServer(t *testing.T) {
	// Given
	cfg := serveConfig(t)
	svc, err := startServices(context.Background(), cfg, serveOptions{transport: transportNone, skipCheck: true})
	require.NoError(t, err)
	defer func() { _ = svc.shutdown() }()
	require.Eventually(t, controlClient(cfg).IsRunning, 2*time.Second, 10*time.Millisecond)

	// When
	_, err = startServices(context.Background(), cfg, serveOptions{transport: transportNone, skipCheck: true})

	// Then
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestServices_ShutdownReleasesEverything(t *testing.T) {
	// Given
	cfg := serveConfig(t)
	svc, err := startServices(context.Background(), cfg, serveOptions{transport: transportNone, skipCheck: true})
	require.NoError(t, err)
	client := controlClient(cfg)
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)

	// When
	require.NoError(t, svc.shutdown())

	// Then: socket, pid file and index lock are gone, so the CLI works locally
	ctlCfg := daemon.DefaultConfig(cfg.Storage.DataDir)
	assert.False(t, client.IsRunning())
	assert.NoFileExists(t, ctlCfg.SocketPath)
	assert.NoFileExists(t, ctlCfg.PIDPath)

	coord, _, err := openCoordinator(context.Background(), cfg, engineDeps{})
	require.NoError(t, err)
	defer func() { _ = coord.Close() }()
	res, err := coord.BuildOrRefresh(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, index.OutcomeReused, res.Outcome)
}

func TestCLI_ForwardsToRunningServer(t *testing.T) {
	// Given: a server holding the index
	cfg := serveConfig(t)
	svc, err := startServices(context.Background(), cfg, serveOptions{transport: transportNone, skipCheck: true})
	require.NoError(t, err)
	defer func() { _ = svc.shutdown() }()
	require.Eventually(t, controlClient(cfg).IsRunning, 2*time.Second, 10*time.Millisecond)

	// When / Then: commands that would need the lock go through the server
	out, err := executeCmd(t, "search", "notes")
	require.NoError(t, err)
	assert.Contains(t, out, "notes.txt")

	out, err = executeCmd(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Refresh scheduler:")

	out, err = executeCmd(t, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "running server")

	_, err = executeCmd(t, "refresh")
	require.NoError(t, err)

	out, err = executeCmd(t, "rebuild")
	require.NoError(t, err)
	assert.Contains(t, out, "Rebuild rebuilt")
	assert.Equal(t, 2, statsJSON(t).TotalFiles)
}

func TestServeCmd_RejectsUnknownTransport(t *testing.T) {
	testEnv(t)

	_, err := executeCmd(t, "serve", "--transport", "sse")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported transport")
}

func TestSchedulerConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Scheduler.Interval = "30m"
	cfg.Scheduler.Tick = "bogus"
	cfg.Scheduler.Backoff = "1m"

	sc := schedulerConfig(cfg)

	assert.Equal(t, 30*time.Minute, sc.Interval)
	assert.Equal(t, time.Second, sc.Tick)
	assert.Equal(t, time.Minute, sc.Backoff)
}

func TestAbsPaths(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	got, err := absPaths([]string{"docs", "/srv/share"})

	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(wd, "docs"), "/srv/share"}, got)
}
