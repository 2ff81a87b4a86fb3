package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/kronuz/fqueue/pkg/fqueue"
)

func TestLoad_NoFiles_ReturnsDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg, sources, err := Load(dir, "", Config{}, nil)
	require.NoError(t, err)
	require.Empty(t, sources.Global)
	require.Empty(t, sources.Project)
	require.EqualValues(t, fqueue.DefaultBucketSize, cfg.BucketSize)
	require.EqualValues(t, fqueue.DefaultSyncAge, cfg.SyncAge)
	require.Equal(t, "auto", cfg.Backend)
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	projectPath := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(projectPath, []byte(`{
		// tiny buckets for this project's tests
		"bucket_size": 4096,
		"backend": "file",
	}`), 0o644))

	cfg, sources, err := Load(dir, "", Config{}, nil)
	require.NoError(t, err)
	require.Equal(t, projectPath, sources.Project)
	require.EqualValues(t, 4096, cfg.BucketSize)
	require.Equal(t, "file", cfg.Backend)
	require.EqualValues(t, fqueue.DefaultSyncAge, cfg.SyncAge) // untouched field keeps its default
}

func TestLoad_CLIOverridesWinOverProjectConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(`{"backend": "sysv"}`), 0o644))

	cfg, _, err := Load(dir, "", Config{Backend: "file"}, nil)
	require.NoError(t, err)
	require.Equal(t, "file", cfg.Backend)
}

func TestLoad_ExplicitConfigPath_MustExist(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, _, err := Load(dir, "does-not-exist.json", Config{}, nil)
	require.ErrorIs(t, err, errConfigFileNotFound)
}

func TestLoad_InvalidBackend_IsRejected(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(`{"backend": "carrier-pigeon"}`), 0o644))

	_, _, err := Load(dir, "", Config{}, nil)
	require.ErrorIs(t, err, errBackendInvalid)
}

func TestConfig_Options_MapsToFqueueOptions(t *testing.T) {
	t.Parallel()

	cfg := Config{Name: "/tmp/q", BucketSize: 1024, SyncAge: 10, Backend: "sysv", Compression: "none"}
	opts := cfg.Options()

	require.Equal(t, "/tmp/q", opts.Name)
	require.EqualValues(t, 1024, opts.BucketSize)
	require.EqualValues(t, 10, opts.SyncAge)
	require.Equal(t, fqueue.BackendSysV, opts.Backend)
	require.Equal(t, fqueue.CompressionNone, opts.Compression)
}

func TestConfig_Options_FullRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []Config{
		{Name: "/tmp/q", BucketSize: 1024, SyncAge: 10, Backend: "sysv", Compression: "none"},
		{Name: "/tmp/q2", BucketSize: 2048, SyncAge: 20, Backend: "file", Compression: "deflate"},
		{Name: "/tmp/q3", BucketSize: 4096, SyncAge: 30, Backend: "auto", Compression: "deflate"},
	}

	for _, cfg := range cases {
		want := fqueue.Options{
			Name:       cfg.Name,
			BucketSize: cfg.BucketSize,
			SyncAge:    cfg.SyncAge,
		}
		switch cfg.Backend {
		case "sysv":
			want.Backend = fqueue.BackendSysV
		case "file":
			want.Backend = fqueue.BackendFile
		default:
			want.Backend = fqueue.BackendAuto
		}
		if cfg.Compression == "none" {
			want.Compression = fqueue.CompressionNone
		} else {
			want.Compression = fqueue.CompressionDeflate
		}

		got := cfg.Options()
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Options() mismatch for %+v (-want +got):\n%s", cfg, diff)
		}
	}
}
