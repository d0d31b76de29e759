package blob

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SnapshotName is the object name used for index snapshots.
const SnapshotName = "snapshot.tar.gz"

// Snapshot packs the named files into a tar.gz archive and uploads it
// to the store under SnapshotName. Paths inside the archive are the
// file base names only.
func Snapshot(ctx context.Context, store Store, files []string) error {
	pr, pw := io.Pipe()

	go func() {
		pw.CloseWithError(writeArchive(pw, files))
	}()

	if err := store.Put(ctx, SnapshotName, pr); err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("uploading snapshot: %w", err)
	}
	return nil
}

func writeArchive(w io.Writer, files []string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, path := range files {
		if err := addFile(tw, path); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}
	return nil
}

func addFile(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stating %s: %w", path, err)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("building header for %s: %w", path, err)
	}
	hdr.Name = filepath.Base(path)

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %s: %w", path, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("archiving %s: %w", path, err)
	}
	return nil
}

// Restore downloads SnapshotName from the store and unpacks it into dir.
// Entries with path separators or parent references are rejected.
func Restore(ctx context.Context, store Store, dir string) error {
	rc, err := store.Get(ctx, SnapshotName)
	if err != nil {
		return fmt.Errorf("downloading snapshot: %w", err)
	}
	defer rc.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating restore directory: %w", err)
	}

	gz, err := gzip.NewReader(rc)
	if err != nil {
		return fmt.Errorf("opening snapshot archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading snapshot archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := extractFile(tr, hdr, dir); err != nil {
			return err
		}
	}
}

func extractFile(tr *tar.Reader, hdr *tar.Header, dir string) error {
	name := hdr.Name
	if name != filepath.Base(name) || strings.Contains(name, "..") || name == "" {
		return fmt.Errorf("snapshot entry %q escapes restore directory", name)
	}

	dst := filepath.Join(dir, name)
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}

	if _, err := io.Copy(f, tr); err != nil {
		f.Close()
		return fmt.Errorf("restoring %s: %w", name, err)
	}
	return f.Close()
}
