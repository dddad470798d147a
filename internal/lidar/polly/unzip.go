package polly

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"

	"github.com/banshee-data/lidar.scc/internal/lidar/measurement"
	"github.com/banshee-data/lidar.scc/internal/monitoring"
)

// checkDir reports ErrPathMissing when dir is absent or not a directory.
func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("temp directory %q: %w", dir, measurement.ErrPathMissing)
		}
		return err
	}
	return nil
}

// scratchDir creates a fresh directory below parent.
func scratchDir(parent string) (string, error) {
	if err := checkDir(parent); err != nil {
		return "", err
	}
	return os.MkdirTemp(parent, "raw-")
}

// Unzip extracts the first member of archive into dir and returns its path.
// dir must already exist.
func Unzip(archive, dir string) (string, error) {
	if err := checkDir(dir); err != nil {
		return "", err
	}

	zr, err := zip.OpenReader(archive)
	if err != nil {
		return "", fmt.Errorf("open archive %s: %v: %w", archive, err, measurement.ErrMalformedFile)
	}
	defer zr.Close()

	var member *zip.File
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			member = f
			break
		}
	}
	if member == nil {
		return "", fmt.Errorf("archive %s is empty: %w", archive, measurement.ErrMalformedFile)
	}

	// only the base name is kept so members cannot escape dir
	dst := filepath.Join(dir, filepath.Base(member.Name))
	if err := extract(member, dst); err != nil {
		return "", fmt.Errorf("extract %s from %s: %w", member.Name, archive, err)
	}
	monitoring.Debugw("extracted raw file", "archive", archive, "member", member.Name,
		"size", humanize.Bytes(member.UncompressedSize64))
	return dst, nil
}

func extract(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
