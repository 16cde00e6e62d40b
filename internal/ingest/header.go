package ingest

import (
	"archive/zip"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ReadHeader reads the first row of a CSV file without touching the body.
// Plain, gzip-compressed (.gz) and single-member zip (.zip) files are
// supported.
func ReadHeader(path string) ([]string, error) {
	reader, closer, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer closer()

	header, err := csv.NewReader(reader).Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv %s is empty: missing header row", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header from %s: %w", path, err)
	}
	return header, nil
}

func openCSV(path string) (io.Reader, func(), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", path, err)
		}
		gz, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, nil, fmt.Errorf("open gzip %s: %w", path, err)
		}
		return gz, func() { _ = gz.Close(); _ = f.Close() }, nil
	case ".zip":
		zr, err := zip.OpenReader(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open zip %s: %w", path, err)
		}
		member, err := singleZipMember(&zr.Reader, path)
		if err != nil {
			_ = zr.Close()
			return nil, nil, err
		}
		rc, err := member.Open()
		if err != nil {
			_ = zr.Close()
			return nil, nil, fmt.Errorf("open zip member %s in %s: %w", member.Name, path, err)
		}
		return rc, func() { _ = rc.Close(); _ = zr.Close() }, nil
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", path, err)
		}
		return f, func() { _ = f.Close() }, nil
	}
}

func singleZipMember(zr *zip.Reader, path string) (*zip.File, error) {
	var member *zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if member != nil {
			return nil, fmt.Errorf("zip %s contains more than one file entry", path)
		}
		member = f
	}
	if member == nil {
		return nil, fmt.Errorf("zip %s contains no file entries", path)
	}
	return member, nil
}

// MaterializeLocal returns a path DuckDB can read directly. Gzip inputs
// are handled natively by read_csv/COPY, but zip is not, so a zip member
// is extracted to a temporary file first. The returned cleanup func is
// always safe to call.
func MaterializeLocal(path string) (string, func(), error) {
	if strings.ToLower(filepath.Ext(path)) != ".zip" {
		return path, func() {}, nil
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", func() {}, fmt.Errorf("open zip %s: %w", path, err)
	}
	defer func() { _ = zr.Close() }()

	member, err := singleZipMember(&zr.Reader, path)
	if err != nil {
		return "", func() {}, err
	}
	rc, err := member.Open()
	if err != nil {
		return "", func() {}, fmt.Errorf("open zip member %s in %s: %w", member.Name, path, err)
	}
	defer func() { _ = rc.Close() }()

	tmp, err := os.CreateTemp("", "ingest-*.csv")
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file for %s: %w", path, err)
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", func() {}, fmt.Errorf("extract zip member from %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", func() {}, fmt.Errorf("close temp file for %s: %w", path, err)
	}
	name := tmp.Name()
	return name, func() { _ = os.Remove(name) }, nil
}
