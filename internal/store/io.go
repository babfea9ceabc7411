package store

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
)

// readJSON reads path into out; a missing file is reported through ok.
func readJSON(path string, out any) (ok bool, err error) {
	b, err := readFile(path)
	if err != nil {
		return false, err
	}
	if b == nil { // file didn't exist
		return false, nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, errors.Wrapf(err, "decode %s", path)
	}
	return true, nil
}

// readFile reads the file at path into b; a missing file is not an error.
func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return b, nil
}

// writeJSON atomically replaces path with the indented JSON form of v.
func writeJSON(path string, v any, mode os.FileMode) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(b)); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return os.Chmod(path, mode)
}
