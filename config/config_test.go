package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"tidywatch/version"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()
	if cfg.AgentVersion.Latest != version.Version {
		t.Fatalf("expected latest version %s, got %s", version.Version, cfg.AgentVersion.Latest)
	}
	if cfg.Server.Address != "0.0.0.0:8111" {
		t.Fatalf("unexpected default address %s", cfg.Server.Address)
	}
	if cfg.Hub.AuthPath != "/gateway/auth/agent" {
		t.Fatalf("unexpected default auth path %s", cfg.Hub.AuthPath)
	}
	if cfg.Hub.RetryInitialSeconds != 5 {
		t.Fatalf("unexpected retry interval %d", cfg.Hub.RetryInitialSeconds)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"lister": {"dirs": ["/data/inbox"], "max_io_per_second": 200},
		"watcher": {"dirs": ["/data/inbox"]},
		"store": {"db_path": "/var/lib/tidywatch/files.db", "drop_db_on_start": true},
		"hub": {"host": "hub.internal", "port": "9000", "protocol": "https"},
		"log_level": "debug"
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg := defaults()
	if err := cfg.loadFromFile(path); err != nil {
		t.Fatalf("loadFromFile: %v", err)
	}
	if !reflect.DeepEqual(cfg.Lister.Dirs, []string{"/data/inbox"}) {
		t.Fatalf("unexpected lister dirs: %v", cfg.Lister.Dirs)
	}
	if cfg.Lister.MaxIOPerSecond != 200 {
		t.Fatalf("unexpected io limit: %d", cfg.Lister.MaxIOPerSecond)
	}
	if cfg.Store.DBPath != "/var/lib/tidywatch/files.db" || !cfg.Store.DropDBOnStart {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Hub.Host != "hub.internal" || cfg.Hub.Port != "9000" || cfg.Hub.Protocol != "https" {
		t.Fatalf("unexpected hub config: %+v", cfg.Hub)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Hub.AuthPath != "/gateway/auth/agent" {
		t.Fatalf("auth path default lost: %s", cfg.Hub.AuthPath)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("unexpected log level: %s", cfg.LogLevel)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := defaults()
	err := cfg.loadFromFile(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLoadFromFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if err := defaults().loadFromFile(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaults()
		cfg.Lister.Dirs = []string{"/data"}
		cfg.Watcher.Dirs = []string{"/data"}
		return cfg
	}

	if err := valid().validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	noDirs := defaults()
	if err := noDirs.validate(); err == nil {
		t.Fatal("expected error when no directories are configured")
	}

	emptyEntry := valid()
	emptyEntry.Watcher.Dirs = []string{"/data", ""}
	if err := emptyEntry.validate(); err == nil {
		t.Fatal("expected error for empty directory entry")
	}

	noDB := valid()
	noDB.Store.DBPath = ""
	if err := noDB.validate(); err == nil {
		t.Fatal("expected error for empty db path")
	}

	badProtocol := valid()
	badProtocol.Hub.Protocol = "gopher"
	if err := badProtocol.validate(); err == nil {
		t.Fatal("expected error for unsupported hub protocol")
	}

	negativeLimit := valid()
	negativeLimit.Hub.ConnectionAttemptLimit = -1
	if err := negativeLimit.validate(); err == nil {
		t.Fatal("expected error for negative attempt limit")
	}

	zeroRetry := valid()
	zeroRetry.Hub.RetryInitialSeconds = 0
	if err := zeroRetry.validate(); err != nil {
		t.Fatalf("zero retry interval should fall back, got %v", err)
	}
	if zeroRetry.Hub.RetryInitialSeconds != 5 {
		t.Fatalf("retry interval not defaulted, got %d", zeroRetry.Hub.RetryInitialSeconds)
	}

	negativeIO := valid()
	negativeIO.Lister.MaxIOPerSecond = -3
	if err := negativeIO.validate(); err == nil {
		t.Fatal("expected error for negative io limit")
	}
}

func TestValidateResolvesRelativeDirs(t *testing.T) {
	t.Chdir(t.TempDir())
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	cfg := defaults()
	cfg.Lister.Dirs = []string{"inbox"}
	cfg.Watcher.Dirs = []string{"inbox", "./archive"}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	want := []string{filepath.Join(cwd, "inbox"), filepath.Join(cwd, "archive")}
	if cfg.Lister.Dirs[0] != want[0] {
		t.Fatalf("lister dir not absolute: %s", cfg.Lister.Dirs[0])
	}
	if !reflect.DeepEqual(cfg.Watcher.Dirs, want) {
		t.Fatalf("watcher dirs not absolute: %v", cfg.Watcher.Dirs)
	}
}

func TestParseCommaSeparated(t *testing.T) {
	cases := []struct {
		input string
		want  []string
	}{
		{"", []string{}},
		{"/a", []string{"/a"}},
		{"/a,/b", []string{"/a", "/b"}},
		{" /a , /b ", []string{"/a", "/b"}},
		{"/a,,/b,", []string{"/a", "/b"}},
	}
	for _, tc := range cases {
		got := parseCommaSeparated(tc.input)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("parseCommaSeparated(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}
