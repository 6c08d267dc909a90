package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/lifecycle-go/lifecycle"
	"github.com/dshills/lifecycle-go/lifecycle/store"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Workers != 1 {
		t.Errorf("Workers = %d, want 1", cfg.Workers)
	}
	if cfg.PoolMaxIdle != lifecycle.DefaultMaxIdle {
		t.Errorf("PoolMaxIdle = %d, want %d", cfg.PoolMaxIdle, lifecycle.DefaultMaxIdle)
	}
	if cfg.Journal.Driver != DriverNone {
		t.Errorf("Journal.Driver = %q, want none", cfg.Journal.Driver)
	}
}

func TestParse_AllFields(t *testing.T) {
	data := []byte(`
workers: 8
max_queue_depth: 4096
strict: true
trace: true
continue_on_error: true
pass_timeout: 30s
pool_max_idle: 64
journal:
  driver: sqlite
  dsn: ./journal.db
metrics:
  enabled: true
log:
  level: debug
  format: json
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := Config{
		Workers:         8,
		MaxQueueDepth:   4096,
		Strict:          true,
		Trace:           true,
		ContinueOnError: true,
		PassTimeout:     30 * time.Second,
		PoolMaxIdle:     64,
		Journal:         JournalConfig{Driver: DriverSQLite, DSN: "./journal.db"},
		Metrics:         MetricsConfig{Enabled: true},
		Log:             LogConfig{Level: "debug", Format: "json"},
	}
	if *cfg != want {
		t.Errorf("config = %+v, want %+v", *cfg, want)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"negative workers", "workers: -1", "workers"},
		{"negative queue depth", "max_queue_depth: -5", "max_queue_depth"},
		{"negative timeout", "pass_timeout: -1s", "pass_timeout"},
		{"unknown driver", "journal:\n  driver: redis", "unknown journal driver"},
		{"sqlite without dsn", "journal:\n  driver: sqlite", "requires a dsn"},
		{"bad level", "log:\n  level: loud", "unknown log level"},
		{"bad format", "log:\n  format: xml", "unknown log format"},
		{"unknown field", "wrokers: 3", "wrokers"},
		{"malformed", "workers: [", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParse_EnvOverridesDSN(t *testing.T) {
	t.Setenv(EnvJournalDSN, "user:secret@tcp(db:3306)/lifecycle")

	cfg, err := Parse([]byte("journal:\n  driver: mysql\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Journal.DSN != "user:secret@tcp(db:3306)/lifecycle" {
		t.Errorf("DSN = %q", cfg.Journal.DSN)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lifecycle.yaml")
	if err := os.WriteFile(path, []byte("workers: 3\nstrict: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 3 || !cfg.Strict {
		t.Errorf("config = %+v", cfg)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestOptions_ConfigureLifecycle(t *testing.T) {
	cfg := Default()
	cfg.Workers = 4
	cfg.MaxQueueDepth = 100
	cfg.Strict = true
	cfg.PassTimeout = time.Second

	lc, err := lifecycle.New(nil, lifecycle.NewComponent("view"), nil, cfg.Options()...)
	if err != nil {
		t.Fatalf("lifecycle.New: %v", err)
	}
	got := lc.Options()
	if got.Workers != 4 || got.MaxQueueDepth != 100 || !got.Strict || got.PassTimeout != time.Second {
		t.Errorf("options = %+v", got)
	}
}

func TestOpenJournal(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		j, err := Default().OpenJournal()
		if err != nil || j != nil {
			t.Fatalf("OpenJournal = %v, %v; want nil, nil", j, err)
		}
	})

	t.Run("memory", func(t *testing.T) {
		cfg := Default()
		cfg.Journal.Driver = DriverMemory
		j, err := cfg.OpenJournal()
		if err != nil {
			t.Fatalf("OpenJournal: %v", err)
		}
		if _, ok := j.(*store.MemStore); !ok {
			t.Errorf("journal is %T, want *store.MemStore", j)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := Default()
		cfg.Journal = JournalConfig{Driver: DriverSQLite, DSN: filepath.Join(t.TempDir(), "j.db")}
		j, err := cfg.OpenJournal()
		if err != nil {
			t.Fatalf("OpenJournal: %v", err)
		}
		defer func() { _ = j.Close() }()
		if _, ok := j.(*store.SQLiteStore); !ok {
			t.Errorf("journal is %T, want *store.SQLiteStore", j)
		}
	})
}

func TestNewMetrics(t *testing.T) {
	cfg := Default()
	if m := cfg.NewMetrics(prometheus.NewRegistry()); m != nil {
		t.Error("metrics created while disabled")
	}
	cfg.Metrics.Enabled = true
	m := cfg.NewMetrics(prometheus.NewRegistry())
	if m == nil {
		t.Fatal("metrics not created while enabled")
	}
	if pool := cfg.NewPool(m); pool == nil {
		t.Fatal("NewPool returned nil")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log = LogConfig{Level: "warn", Format: "json"}

	logger := cfg.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record passed a warn level logger")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("unexpected output %q", out)
	}
}
