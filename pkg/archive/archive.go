// Package archive implements the second packaging stage: each normalized
// skill directory is packed into <archive>/<name>.zip with entries rooted at
// the skill directory name.
package archive

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jingkaihe/skillpack/pkg/batch"
	"github.com/jingkaihe/skillpack/pkg/logger"
	"github.com/jingkaihe/skillpack/pkg/telemetry"
	"github.com/jingkaihe/skillpack/pkg/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// Stage is the report stage name for archiving.
	Stage = "archive"
	// Extension is appended to the skill name to form the archive file name.
	Extension = ".zip"
)

// Epoch is the modification time stamped on every entry so that identical
// trees produce identical archives. It is the earliest time a zip header
// can represent.
var Epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Archiver packs skill directories into zip files.
type Archiver struct {
	modTime time.Time
}

// Option is a function that configures an Archiver
type Option func(*Archiver)

// WithModTime overrides the modification time written to entries.
func WithModTime(t time.Time) Option {
	return func(a *Archiver) {
		a.modTime = t
	}
}

// New creates an archiver.
func New(opts ...Option) *Archiver {
	a := &Archiver{modTime: Epoch}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// PackDir writes a zip of skillDir to zipPath using the default settings.
func PackDir(skillDir, zipPath string) error {
	return New().PackDir(skillDir, zipPath)
}

// PackAll replaces every archive in archiveDir with one archive per
// immediate subdirectory of skillsDir, in name order. The returned error is
// set only when the run could not start; a skill that fails to pack is
// recorded in the report.
func (a *Archiver) PackAll(ctx context.Context, skillsDir, archiveDir string) (*batch.Report, error) {
	report := batch.NewReport(Stage)
	ctx = logger.WithFields(ctx, logrus.Fields{"stage": Stage})

	err := telemetry.WithSpan(ctx, "archive.run", func(ctx context.Context) error {
		names, err := skillDirs(skillsDir)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(archiveDir, utils.DirMode); err != nil {
			return errors.Wrapf(err, "failed to create archive directory %s", archiveDir)
		}
		if err := removeArchives(archiveDir); err != nil {
			return err
		}

		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return err
			}

			skillDir := filepath.Join(skillsDir, name)
			zipPath := filepath.Join(archiveDir, name+Extension)
			unitCtx := logger.WithFields(ctx, logrus.Fields{"skill": name, "path": skillDir})

			err := telemetry.WithSpan(unitCtx, "archive.unit", func(context.Context) error {
				return a.PackDir(skillDir, zipPath)
			}, telemetry.UnitAttributes(name, skillDir)...)
			if err != nil {
				logger.G(unitCtx).WithError(err).Error("failed to archive skill")
				report.Fail(name, err)
				continue
			}

			logger.G(unitCtx).WithField("archive", zipPath).Debug("archived skill")
			report.Succeed(name + Extension)
		}

		telemetry.SetAttributes(ctx,
			attribute.Int("archives.created", len(report.Succeeded)),
			attribute.Int("archives.failed", len(report.Failures)),
		)
		return nil
	}, attribute.String("skills_dir", skillsDir), attribute.String("archive_dir", archiveDir))

	return report, err
}

// PackDir writes a zip of skillDir to zipPath. Entry names are relative to
// the parent of skillDir, so every entry starts with the skill directory
// name. A partially written archive is removed on failure.
func (a *Archiver) PackDir(skillDir, zipPath string) (err error) {
	files, err := regularFiles(skillDir)
	if err != nil {
		return err
	}

	out, err := os.Create(zipPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", zipPath)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(zipPath)
		}
	}()

	base := filepath.Dir(skillDir)
	zw := zip.NewWriter(out)
	for _, path := range files {
		if err := a.addFile(zw, base, path); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return errors.Wrapf(err, "failed to finish %s", zipPath)
	}
	return out.Close()
}

func (a *Archiver) addFile(zw *zip.Writer, base, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "failed to stat %s", path)
	}

	rel, err := filepath.Rel(base, path)
	if err != nil {
		return err
	}

	header := &zip.FileHeader{
		Name:     filepath.ToSlash(rel),
		Method:   zip.Deflate,
		Modified: a.modTime,
	}
	header.SetMode(info.Mode().Perm())

	w, err := zw.CreateHeader(header)
	if err != nil {
		return errors.Wrapf(err, "failed to add %s", header.Name)
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return errors.Wrapf(err, "failed to compress %s", path)
	}
	return nil
}

// regularFiles lists the regular files below dir in lexical order.
func regularFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to walk %s", dir)
	}
	return files, nil
}

func skillDirs(skillsDir string) ([]string, error) {
	entries, err := os.ReadDir(skillsDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read skills directory %s", skillsDir)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func removeArchives(archiveDir string) error {
	stale, err := filepath.Glob(filepath.Join(archiveDir, "*"+Extension))
	if err != nil {
		return errors.Wrap(err, "failed to list existing archives")
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			return errors.Wrapf(err, "failed to remove %s", path)
		}
	}
	return nil
}
