package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type RedisServer struct {
	Server *miniredis.Miniredis
	Client *redis.Client
}

// Start in-process redis server and client connected to it
// Both are closed when test stops
func StartRedis(t *testing.T) RedisServer {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return RedisServer{Server: mr, Client: client}
}
