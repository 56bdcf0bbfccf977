// Package config loads mitostat settings from defaults, an optional YAML file
// and MITOSTAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"mitostat/internal/blob"
	"mitostat/internal/core"
	"mitostat/internal/ingest"
)

// EnvPrefix prefixes every environment override, e.g. MITOSTAT_STORAGE_DRIVER.
const EnvPrefix = "MITOSTAT"

// DefaultFileName is searched for in the working directory when no explicit
// config file is given.
const DefaultFileName = "mitostat"

// Report defaults, matching the workbook builder's.
const (
	DefaultDistRange  = 20
	DefaultReferences = "EVA,ANDREWS"
)

// Keys.
const (
	KeyStorageDriver     = "storage.driver"
	KeySQLitePath        = "storage.sqlite_path"
	KeyPostgresDSN       = "storage.postgres_dsn"
	KeyBlobDriver        = "blob.driver"
	KeyBlobFSRoot        = "blob.fs_root"
	KeyS3Region          = "blob.s3.region"
	KeyS3Bucket          = "blob.s3.bucket"
	KeyS3Prefix          = "blob.s3.prefix"
	KeyS3Endpoint        = "blob.s3.endpoint"
	KeyS3AccessKeyID     = "blob.s3.access_key_id"
	KeyS3SecretAccessKey = "blob.s3.secret_access_key"
	KeyS3PathStyle       = "blob.s3.path_style"
	KeyDistRange         = "report.dist_range"
	KeyReferences        = "report.references"
	KeyRegions           = "report.regions"
	KeyOutput            = "report.output"
	KeySourceBaseURL     = "ingest.source_base_url"
	KeyDebug             = "debug"
	KeyMetricsTextfile   = "metrics.textfile"
	KeyTraceFile         = "trace.file"
)

// Config is the resolved runtime configuration handed to the CLI commands.
type Config struct {
	Storage core.StorageConfig
	Blob    blob.Config
	Report  Report
	Ingest  Ingest
	Debug   bool
	Metrics Metrics
	Trace   Trace
}

// Report configures workbook generation.
type Report struct {
	DistRange  int
	References []string
	// Regions limits the sheets written; empty means ALL plus every stored region.
	Regions []string
	// Output is the artifact key; empty generates one.
	Output string
}

// Ingest configures feed loading.
type Ingest struct {
	SourceBaseURL string
}

// Metrics configures the optional Prometheus textfile export.
type Metrics struct {
	Textfile string
}

// Trace configures the JSON lines span log.
type Trace struct {
	// File receives one JSON object per service operation; empty disables tracing.
	File string
}

// New returns a viper instance with defaults and environment binding applied
// and, when available, the config file read. An explicit path must exist.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return v, nil
	}
	v.SetConfigName(DefaultFileName)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyStorageDriver, string(core.StorageSQLite))
	v.SetDefault(KeySQLitePath, "mitostat.db")
	v.SetDefault(KeyPostgresDSN, "")
	v.SetDefault(KeyBlobDriver, string(blob.DriverFilesystem))
	v.SetDefault(KeyBlobFSRoot, "./reports")
	v.SetDefault(KeyS3Region, "")
	v.SetDefault(KeyS3Bucket, "")
	v.SetDefault(KeyS3Prefix, "")
	v.SetDefault(KeyS3Endpoint, "")
	v.SetDefault(KeyS3AccessKeyID, "")
	v.SetDefault(KeyS3SecretAccessKey, "")
	v.SetDefault(KeyS3PathStyle, false)
	v.SetDefault(KeyDistRange, DefaultDistRange)
	v.SetDefault(KeyReferences, DefaultReferences)
	v.SetDefault(KeyRegions, "")
	v.SetDefault(KeyOutput, "")
	v.SetDefault(KeySourceBaseURL, ingest.DefaultSourceBaseURL)
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyMetricsTextfile, "")
	v.SetDefault(KeyTraceFile, "")
}

// Decode resolves v into a validated Config.
func Decode(v *viper.Viper) (Config, error) {
	cfg := Config{
		Storage: core.StorageConfig{
			Driver:      core.StorageDriver(strings.ToLower(v.GetString(KeyStorageDriver))),
			SQLitePath:  v.GetString(KeySQLitePath),
			PostgresDSN: v.GetString(KeyPostgresDSN),
		},
		Blob: blob.Config{
			Driver: blob.Driver(strings.ToLower(v.GetString(KeyBlobDriver))),
			FSRoot: v.GetString(KeyBlobFSRoot),
			S3: blob.S3Config{
				Region:          v.GetString(KeyS3Region),
				Bucket:          v.GetString(KeyS3Bucket),
				Prefix:          v.GetString(KeyS3Prefix),
				Endpoint:        v.GetString(KeyS3Endpoint),
				AccessKeyID:     v.GetString(KeyS3AccessKeyID),
				SecretAccessKey: v.GetString(KeyS3SecretAccessKey),
				PathStyle:       v.GetBool(KeyS3PathStyle),
			},
		},
		Report: Report{
			DistRange:  v.GetInt(KeyDistRange),
			References: list(v.Get(KeyReferences)),
			Regions:    list(v.Get(KeyRegions)),
			Output:     v.GetString(KeyOutput),
		},
		Ingest:  Ingest{SourceBaseURL: v.GetString(KeySourceBaseURL)},
		Debug:   v.GetBool(KeyDebug),
		Metrics: Metrics{Textfile: v.GetString(KeyMetricsTextfile)},
		Trace:   Trace{File: v.GetString(KeyTraceFile)},
	}
	return cfg, cfg.Validate()
}

// Load reads the configuration in one step.
func Load(path string) (Config, error) {
	v, err := New(path)
	if err != nil {
		return Config{}, err
	}
	return Decode(v)
}

// Validate rejects settings no command can run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		errs = append(errs, fmt.Errorf("%s: unknown driver %q", KeyStorageDriver, c.Storage.Driver))
	}
	if c.Storage.Driver == core.StoragePostgres && c.Storage.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("%s: required for postgres", KeyPostgresDSN))
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, fmt.Errorf("%s: required for s3", KeyS3Bucket))
		}
	default:
		errs = append(errs, fmt.Errorf("%s: unknown driver %q", KeyBlobDriver, c.Blob.Driver))
	}
	if c.Report.DistRange <= 0 {
		errs = append(errs, fmt.Errorf("%s: must be positive, got %d", KeyDistRange, c.Report.DistRange))
	}
	if len(c.Report.References) == 0 {
		errs = append(errs, fmt.Errorf("%s: at least one reference required", KeyReferences))
	}
	return errors.Join(errs...)
}

// list accepts comma separated strings from env and flags as well as YAML
// sequences.
func list(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case nil:
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []any:
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
	default:
		parts = strings.Split(fmt.Sprint(val), ",")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
