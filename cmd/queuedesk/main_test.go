package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/queuedesk/internal/testutil"
)

func Test_run(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)
	keys := testutil.WriteKeyPair(t)
	redis := testutil.StartRedis(t)

	port, err := testutil.RandomPort()
	require.NoError(t, err, "failed to get random port to start server")
	listenAddr := fmt.Sprintf("localhost:%d", port)

	noenv := func(string) string { return "" }
	wd := func() (string, error) { return t.TempDir(), nil }

	t.Run("stop with signal", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		t.Cleanup(cancel)

		err := run(ctx, noenv, wd, []string{
			"--address", listenAddr,
			"--log-level", "debug",
			"--database", pg.DSN,
			"--redis", "redis://" + redis.Server.Addr(),
			"--jwt-private-key", keys.PrivateKeyPath,
			"--jwt-public-key", keys.PublicKeyPath,
		})

		require.NoError(t, err, "on correct stop should not return error")
	})

	t.Run("redis unreachable is not fatal", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		t.Cleanup(cancel)

		unusedPort, err := testutil.RandomPort()
		require.NoError(t, err)

		err = run(ctx, noenv, wd, []string{
			"--address", listenAddr,
			"--database", pg.DSN,
			"--redis", fmt.Sprintf("redis://127.0.0.1:%d", unusedPort),
			"--jwt-private-key", keys.PrivateKeyPath,
			"--jwt-public-key", keys.PublicKeyPath,
		})

		require.NoError(t, err, "service has to run with in-process rate limiter")
	})

	t.Run("stop with config error", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		t.Cleanup(cancel)

		// Try to run without keys. Must fail
		err := run(ctx, noenv, wd, []string{
			"--address", listenAddr,
			"--log-level", "debug",
			"--database", pg.DSN,
		})

		require.Error(t, err, "on incorrect stop should return error")
	})

	t.Run("stop with missing key file", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		t.Cleanup(cancel)

		err := run(ctx, noenv, wd, []string{
			"--address", listenAddr,
			"--database", pg.DSN,
			"--jwt-private-key", keys.PrivateKeyPath + ".missing",
			"--jwt-public-key", keys.PublicKeyPath,
		})

		require.Error(t, err)
	})
}
