// Package config loads skillpack settings from defaults, an optional
// skillpack.yaml, SKILLPACK_* environment variables and command-line flags,
// with named profiles layered over the base settings.
package config

import (
	"path/filepath"
	"strings"

	"github.com/jingkaihe/skillpack/pkg/skills"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is prepended to every environment variable name.
	EnvPrefix = "SKILLPACK"
	// FileName is the config file name without extension.
	FileName = "skillpack"

	DefaultSourceDir  = ".claude/skills"
	DefaultOutputDir  = "desktop-skills"
	DefaultArchiveDir = "skill-zips"
)

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled bool    `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Sampler string  `mapstructure:"sampler" json:"sampler" yaml:"sampler"`
	Ratio   float64 `mapstructure:"ratio" json:"ratio" yaml:"ratio"`
}

// Config holds everything a run needs.
type Config struct {
	SourceDir           string   `mapstructure:"source_dir" json:"source_dir" yaml:"source_dir"`
	OutputDir           string   `mapstructure:"output_dir" json:"output_dir" yaml:"output_dir"`
	ArchiveDir          string   `mapstructure:"archive_dir" json:"archive_dir" yaml:"archive_dir"`
	Include             []string `mapstructure:"include" json:"include" yaml:"include"`
	Exclude             []string `mapstructure:"exclude" json:"exclude" yaml:"exclude"`
	NameFromFrontmatter bool     `mapstructure:"name_from_frontmatter" json:"name_from_frontmatter" yaml:"name_from_frontmatter"`
	Verify              bool     `mapstructure:"verify" json:"verify" yaml:"verify"`

	Profile  string                    `mapstructure:"profile" json:"profile,omitempty" yaml:"profile,omitempty"`
	Profiles map[string]map[string]any `mapstructure:"profiles" json:"profiles,omitempty" yaml:"profiles,omitempty"`

	LogLevel  string        `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	LogFormat string        `mapstructure:"log_format" json:"log_format" yaml:"log_format"`
	Tracing   TracingConfig `mapstructure:"tracing" json:"tracing" yaml:"tracing"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		SourceDir:  DefaultSourceDir,
		OutputDir:  DefaultOutputDir,
		ArchiveDir: DefaultArchiveDir,
		Include:    []string{},
		Exclude:    []string{},
		Verify:     true,
		LogLevel:   "info",
		LogFormat:  "fmt",
		Tracing: TracingConfig{
			Sampler: "ratio",
			Ratio:   1,
		},
	}
}

// SetDefaults registers every key with its default value on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("source_dir", d.SourceDir)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("archive_dir", d.ArchiveDir)
	v.SetDefault("include", d.Include)
	v.SetDefault("exclude", d.Exclude)
	v.SetDefault("name_from_frontmatter", d.NameFromFrontmatter)
	v.SetDefault("verify", d.Verify)
	v.SetDefault("profile", "")
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.sampler", d.Tracing.Sampler)
	v.SetDefault("tracing.ratio", d.Tracing.Ratio)
}

// Setup prepares v for loading: defaults, environment variables and the
// config file. An explicit file must exist; otherwise skillpack.yaml is
// looked up in $HOME/.skillpack and the working directory, and a missing
// file is not an error.
func Setup(v *viper.Viper, file string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "failed to read config file %s", file)
		}
		return nil
	}

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.skillpack")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "failed to read config file")
	}
	return nil
}

// Load unmarshals v, applies the active profile and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal configuration")
	}

	if err := cfg.applyActiveProfile(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyActiveProfile() error {
	name := c.Profile
	if name == "" || name == "default" {
		return nil
	}

	profile, ok := c.Profiles[name]
	if !ok {
		return errors.Errorf("profile %q is not defined", name)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		WeaklyTypedInput: true,
		ZeroFields:       false,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create profile decoder")
	}

	if err := decoder.Decode(profile); err != nil {
		return errors.Wrapf(err, "failed to apply profile %q", name)
	}

	// a profile cannot switch to another profile
	c.Profile = name
	return nil
}

// Validate rejects settings that would make a run destructive or
// meaningless.
func (c *Config) Validate() error {
	if c.SourceDir == "" {
		return errors.New("source_dir must not be empty")
	}
	if c.OutputDir == "" {
		return errors.New("output_dir must not be empty")
	}
	if c.ArchiveDir == "" {
		return errors.New("archive_dir must not be empty")
	}

	source, err := filepath.Abs(c.SourceDir)
	if err != nil {
		return errors.Wrap(err, "failed to resolve source_dir")
	}
	output, err := filepath.Abs(c.OutputDir)
	if err != nil {
		return errors.Wrap(err, "failed to resolve output_dir")
	}
	archive, err := filepath.Abs(c.ArchiveDir)
	if err != nil {
		return errors.Wrap(err, "failed to resolve archive_dir")
	}

	// the output tree is deleted on every run
	if within(output, source) {
		return errors.Errorf("output_dir %s must not contain source_dir %s", c.OutputDir, c.SourceDir)
	}
	if within(output, archive) {
		return errors.Errorf("archive_dir %s must not be inside output_dir %s", c.ArchiveDir, c.OutputDir)
	}

	if _, err := skills.CompileFilter(c.Include, c.Exclude); err != nil {
		return err
	}

	switch c.LogFormat {
	case "", "fmt", "text", "json":
	default:
		return errors.Errorf("unsupported log_format %q", c.LogFormat)
	}

	return nil
}

// within reports whether path equals dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
