// Package utils provides filesystem helpers shared by the convert and
// archive stages, plus polling helpers used by tests.
package utils

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	// DirMode is the permission used for directories created in the output tree.
	DirMode os.FileMode = 0o755
	// FileMode is the permission used for generated files.
	FileMode os.FileMode = 0o644
)

// WriteFile writes data to path, creating parent directories as needed.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	if err := os.WriteFile(path, data, FileMode); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// CopyDir copies the tree rooted at src into dst. Symlinks are followed
// when they point at regular files; anything else that is not a plain file
// or directory is skipped.
func CopyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		destPath := filepath.Join(dst, relPath)

		if d.IsDir() {
			return os.MkdirAll(destPath, DirMode)
		}

		info, err := os.Stat(path)
		if err != nil {
			return errors.Wrapf(err, "failed to stat %s", path)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		return CopyFile(path, destPath)
	})
}

// CopyFile copies a single file, keeping the source permission bits.
func CopyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), DirMode); err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return errors.Wrapf(err, "failed to copy %s", src)
	}
	return dstFile.Close()
}
