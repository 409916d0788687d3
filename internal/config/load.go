package config

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// PHOENIX_OUTPUT_LOCATION=s3://bucket/run.parquet.
const EnvPrefix = "PHOENIX"

// SetDefaults installs default values for every optional setting.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("job", "genome_phoenix")
	v.SetDefault("output.location", "genome_phoenix.parquet")
	v.SetDefault("output.compression", "snappy")
	v.SetDefault("output.s3.region", "us-east-1")
	v.SetDefault("output.s3.endpoint", "")
	v.SetDefault("output.s3.path_style", false)
	v.SetDefault("runtime.parse_workers", 1)
	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.pushgateway_url", "http://localhost:9091")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// NewViper returns a viper instance with defaults and PHOENIX_* environment
// overrides bound, but no config file.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads the pipeline file at path (format chosen by extension: .yaml,
// .yml, .json or .toml), applies defaults and environment overrides, and
// decodes it.
func Load(path string) (Pipeline, error) {
	v := NewViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Pipeline{}, errors.Wrapf(err, "read config %s", path)
	}
	return LoadWithViper(v)
}

// LoadWithViper decodes a pipeline from an already configured viper instance.
func LoadWithViper(v *viper.Viper) (Pipeline, error) {
	var p Pipeline
	if err := v.Unmarshal(&p); err != nil {
		return Pipeline{}, errors.Wrap(err, "decode config")
	}
	for i := range p.Sources {
		if p.Sources[i].Options == nil {
			p.Sources[i].Options = Options{}
		}
	}
	return p, nil
}
