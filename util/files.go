// Package util - File helpers for the command line.
package util

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-objrec/images"
)

// ErrBadExtension is returned by CheckFile when the file has an unexpected extension.
var ErrBadExtension = errors.New("util: unexpected file extension")

// CheckFile verifies that path names an existing regular file with the given
// extension, compared case-insensitively.
func CheckFile(path, ext string) error {
	if !strings.EqualFold(filepath.Ext(path), ext) {
		return errors.Wrapf(ErrBadExtension, "%s: want %s", path, ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "util: %s", path)
	}
	if info.IsDir() {
		return errors.Errorf("util: %s is a directory", path)
	}
	return nil
}

// SnapshotPath names a snapshot file <dir>/<prefix><unix-seconds><ext>.
func SnapshotPath(dir, prefix string, at time.Time, format images.ImageFormat) string {
	return filepath.Join(dir, prefix+strconv.FormatInt(at.Unix(), 10)+format.Extension())
}
