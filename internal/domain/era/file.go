package era

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
)

// ReadImportFile loads an import from path. Files ending in .gz are
// decompressed. The payload is either a full ImportRequest object or a bare
// array of records; the file name fills in a missing filename.
func ReadImportFile(path string) (ImportRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportRequest{}, fmt.Errorf("open era file: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	name := filepath.Base(path)
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		zr, err := newGzipReader(r)
		if err != nil {
			return ImportRequest{}, fmt.Errorf("open gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}

	req, err := DecodeImport(r)
	if err != nil {
		return ImportRequest{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if req.Filename == nil || strings.TrimSpace(*req.Filename) == "" {
		req.Filename = &name
	}
	return req, nil
}

// DecodeImport reads an ImportRequest object or a bare record array.
func DecodeImport(r io.Reader) (ImportRequest, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return ImportRequest{}, err
	}
	raw = bytes.TrimSpace(raw)
	var req ImportRequest
	if len(raw) > 0 && raw[0] == '[' {
		err = json.Unmarshal(raw, &req.Claims)
	} else {
		err = json.Unmarshal(raw, &req)
	}
	if err != nil {
		return ImportRequest{}, err
	}
	return req, nil
}

func newGzipReader(r io.Reader) (io.ReadCloser, error) {
	return pgzip.NewReader(r)
}
