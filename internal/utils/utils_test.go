package utils

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "certs", "server.crt")
	key := filepath.Join(dir, "certs", "server.key")
	if err := EnsureSelfSignedCert(cert, key, "listing-map.local"); err != nil {
		t.Fatal(err)
	}
	if _, err := tls.LoadX509KeyPair(cert, key); err != nil {
		t.Fatalf("generated pair unusable: %v", err)
	}
	st, _ := os.Stat(cert)
	mod := st.ModTime()
	if err := EnsureSelfSignedCert(cert, key, "other"); err != nil {
		t.Fatal(err)
	}
	if st2, _ := os.Stat(cert); !st2.ModTime().Equal(mod) {
		t.Error("existing certificate should be kept")
	}
}

func TestBuildPostgresDSNFromEnv(t *testing.T) {
	for _, k := range []string{"PG_DSN", "PG_HOST", "PG_PORT", "PG_USER", "PG_PASSWORD", "PG_DB", "PG_SSLMODE"} {
		t.Setenv(k, "")
	}
	if got := BuildPostgresDSNFromEnv(); got != "postgres://postgres@localhost:5432/listingmap?sslmode=disable" {
		t.Errorf("dsn = %q", got)
	}
	t.Setenv("PG_PASSWORD", "s3cret")
	t.Setenv("PG_HOST", "db")
	if got := BuildPostgresDSNFromEnv(); !strings.HasPrefix(got, "postgres://postgres:s3cret@db:5432/") {
		t.Errorf("dsn = %q", got)
	}
	t.Setenv("PG_PASSWORD", "p@ss/word")
	if got := BuildPostgresDSNFromEnv(); !strings.HasPrefix(got, "postgres://postgres:p%40ss%2Fword@db:5432/") {
		t.Errorf("password not escaped: %q", got)
	}
	t.Setenv("PG_DSN", "postgres://x@y/z")
	if got := BuildPostgresDSNFromEnv(); got != "postgres://x@y/z" {
		t.Errorf("PG_DSN override ignored: %q", got)
	}
}

func TestRedisOptionsFromEnv(t *testing.T) {
	for _, k := range []string{"REDIS_URL", "REDIS_HOST", "REDIS_PORT", "REDIS_PASS", "REDIS_DB"} {
		t.Setenv(k, "")
	}
	if _, ok := RedisOptionsFromEnv(); ok {
		t.Error("unset host should leave redis disabled")
	}
	if OpenRedisFromEnv() != nil {
		t.Error("unconfigured client should be nil")
	}

	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_DB", "-2")
	opt, ok := RedisOptionsFromEnv()
	if !ok || opt.Addr != "cache:6379" || opt.DB != 0 {
		t.Errorf("opts = %+v ok=%v", opt, ok)
	}

	t.Setenv("REDIS_URL", "redis://:pw@urlhost:6380/3")
	opt, ok = RedisOptionsFromEnv()
	if !ok || opt.Addr != "urlhost:6380" || opt.DB != 3 || opt.Password != "pw" {
		t.Errorf("url opts = %+v ok=%v", opt, ok)
	}

	t.Setenv("REDIS_URL", "://bad")
	if _, ok := RedisOptionsFromEnv(); ok {
		t.Error("invalid url should disable redis")
	}
}
