// Package convert implements the first packaging stage: every discovered
// SKILL.md is normalized into <output>/<name>/Skill.md and its resources/
// directory is copied alongside.
package convert

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/jingkaihe/skillpack/pkg/batch"
	"github.com/jingkaihe/skillpack/pkg/config"
	"github.com/jingkaihe/skillpack/pkg/logger"
	"github.com/jingkaihe/skillpack/pkg/skills"
	"github.com/jingkaihe/skillpack/pkg/telemetry"
	"github.com/jingkaihe/skillpack/pkg/utils"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Stage is the report stage name for conversion.
const Stage = "convert"

// Rendered is one unit converted in memory.
type Rendered struct {
	Unit       *skills.Unit    `json:"-" yaml:"-"`
	OutputName string          `json:"output_name" yaml:"output_name"`
	Original   string          `json:"-" yaml:"-"`
	Output     string          `json:"-" yaml:"-"`
	Metadata   skills.Metadata `json:"metadata" yaml:"metadata"`
}

// Converter normalizes every skill below the configured source directory.
type Converter struct {
	cfg       *config.Config
	discovery *skills.Discovery
	verify    func(content []byte, meta skills.Metadata) error
}

// Option is a function that configures a Converter
type Option func(*Converter) error

// WithDiscovery replaces the discovery built from the configuration.
func WithDiscovery(d *skills.Discovery) Option {
	return func(c *Converter) error {
		c.discovery = d
		return nil
	}
}

// New creates a converter for cfg.
func New(cfg *config.Config, opts ...Option) (*Converter, error) {
	if cfg == nil {
		return nil, errors.New("converter requires a configuration")
	}

	c := &Converter{cfg: cfg, verify: skills.Verify}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.discovery == nil {
		d, err := skills.NewDiscovery(
			skills.WithRoot(cfg.SourceDir),
			skills.WithIncludes(cfg.Include...),
			skills.WithExcludes(cfg.Exclude...),
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to initialize skill discovery")
		}
		c.discovery = d
	}

	return c, nil
}

// Run converts every unit and reports per-unit outcomes. The returned error
// is set only when the run could not start: discovery failed or the output
// directory could not be reset. Unit failures never stop the run.
func (c *Converter) Run(ctx context.Context) (*batch.Report, error) {
	report := batch.NewReport(Stage)
	ctx = logger.WithFields(ctx, logrus.Fields{"stage": Stage})

	err := telemetry.WithSpan(ctx, "convert.run", func(ctx context.Context) error {
		units, err := c.discovery.Discover(ctx)
		if err != nil {
			return err
		}

		if err := c.resetOutput(); err != nil {
			return err
		}

		claimed := make(map[string]string, len(units))
		for _, unit := range units {
			if err := ctx.Err(); err != nil {
				return err
			}

			name, err := c.convertUnit(ctx, unit, claimed)
			if err != nil {
				logger.G(ctx).WithError(err).WithField("path", unit.SourcePath).Error("failed to convert skill")
				report.Fail(unit.SourcePath, err)
				continue
			}
			report.Succeed(name)
		}

		telemetry.SetAttributes(ctx,
			attribute.Int("skills.converted", len(report.Succeeded)),
			attribute.Int("skills.failed", len(report.Failures)),
		)
		return nil
	}, attribute.String("source_dir", c.cfg.SourceDir), attribute.String("output_dir", c.cfg.OutputDir))

	return report, err
}

// Plan renders every unit without touching the filesystem. Units that cannot
// be read, or that collide with an earlier output name, are recorded in the
// report instead of the returned slice.
func (c *Converter) Plan(ctx context.Context) ([]Rendered, *batch.Report, error) {
	report := batch.NewReport(Stage)

	units, err := c.discovery.Discover(ctx)
	if err != nil {
		return nil, report, err
	}

	claimed := make(map[string]string, len(units))
	planned := make([]Rendered, 0, len(units))
	for _, unit := range units {
		if err := ctx.Err(); err != nil {
			return planned, report, err
		}

		r, err := c.render(unit)
		if err == nil {
			err = claim(claimed, r.OutputName, unit.SourcePath)
		}
		if err != nil {
			report.Fail(unit.SourcePath, err)
			continue
		}

		planned = append(planned, *r)
		report.Succeed(r.OutputName)
	}

	return planned, report, nil
}

func (c *Converter) resetOutput() error {
	if err := os.RemoveAll(c.cfg.OutputDir); err != nil {
		return errors.Wrapf(err, "failed to clean output directory %s", c.cfg.OutputDir)
	}
	if err := os.MkdirAll(c.cfg.OutputDir, utils.DirMode); err != nil {
		return errors.Wrapf(err, "failed to create output directory %s", c.cfg.OutputDir)
	}
	return nil
}

func (c *Converter) convertUnit(ctx context.Context, unit *skills.Unit, claimed map[string]string) (string, error) {
	ctx = logger.WithFields(ctx, logrus.Fields{"skill": unit.Name, "path": unit.SourcePath})

	var name string
	err := telemetry.WithSpan(ctx, "convert.unit", func(ctx context.Context) error {
		r, err := c.render(unit)
		if err != nil {
			return err
		}
		if err := claim(claimed, r.OutputName, unit.SourcePath); err != nil {
			return err
		}
		name = r.OutputName

		dir := filepath.Join(c.cfg.OutputDir, r.OutputName)
		if err := c.writeUnit(unit, r, dir); err != nil {
			return err
		}

		logger.G(ctx).WithField("output", dir).Debug("converted skill")
		return nil
	}, telemetry.UnitAttributes(unit.Name, unit.SourcePath)...)

	return name, err
}

// writeUnit materializes r into dir. A unit that fails after dir was
// created is removed again so the archive stage never packs it.
func (c *Converter) writeUnit(unit *skills.Unit, r *Rendered, dir string) (err error) {
	if _, statErr := os.Lstat(dir); os.IsNotExist(statErr) {
		defer func() {
			if err == nil {
				return
			}
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				err = multierror.Append(err, errors.Wrapf(rmErr, "failed to remove incomplete output %s", dir))
			}
		}()
	}

	target := filepath.Join(dir, skills.OutputFileName)
	if err := utils.WriteFile(target, []byte(r.Output)); err != nil {
		return err
	}

	if unit.HasResources() {
		if err := utils.CopyDir(unit.ResourcesDir, filepath.Join(dir, skills.ResourcesDirName)); err != nil {
			return errors.Wrapf(err, "failed to copy resources from %s", unit.ResourcesDir)
		}
	}

	if c.cfg.Verify {
		written, err := os.ReadFile(target)
		if err != nil {
			return errors.Wrapf(err, "failed to read back %s", target)
		}
		if err := c.verify(written, r.Metadata); err != nil {
			return errors.Wrapf(err, "verification of %s failed", target)
		}
	}
	return nil
}

// render reads and normalizes one unit.
func (c *Converter) render(unit *skills.Unit) (*Rendered, error) {
	data, err := os.ReadFile(unit.SourcePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", unit.SourcePath)
	}

	original := normalizeNewlines(string(data))
	output, meta, fields := skills.Normalize(original)

	return &Rendered{
		Unit:       unit,
		OutputName: c.outputName(unit, fields),
		Original:   original,
		Output:     output,
		Metadata:   meta,
	}, nil
}

func (c *Converter) outputName(unit *skills.Unit, fields skills.Frontmatter) string {
	if !c.cfg.NameFromFrontmatter {
		return unit.Name
	}
	name, ok := fields.Get("name")
	if !ok {
		return unit.Name
	}
	if s := Slug(skills.Truncate(name, skills.MaxNameLength)); s != "" {
		return s
	}
	return unit.Name
}

func claim(claimed map[string]string, name, source string) error {
	if first, ok := claimed[name]; ok {
		return errors.Errorf("duplicate skill %q, already produced from %s", name, first)
	}
	claimed[name] = source
	return nil
}

// Slug lowercases name and joins its runs of letters and digits with dashes.
func Slug(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
