// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsutil resolves request-supplied paths against served directories.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrEscapesRoot = errors.New("path escapes root")

// ConfineRelPath joins root and rel and returns the resolved path, failing
// when the result lies outside the resolved root. Symlinks are followed.
func ConfineRelPath(root, rel string) (string, error) {
	if strings.Contains(rel, "\\") {
		return "", fmt.Errorf("path contains backslash: %s", rel)
	}
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("target path must be relative: %s", rel)
	}
	if escapes(clean) {
		return "", fmt.Errorf("%w: %s", ErrEscapesRoot, rel)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", err
	}

	full := filepath.Join(realRoot, clean)
	real, err := filepath.EvalSymlinks(full)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("resolve path: %w", err)
		}
		// Missing target: confine its parent instead.
		dir, derr := filepath.EvalSymlinks(filepath.Dir(full))
		if derr != nil {
			return "", err
		}
		real = filepath.Join(dir, filepath.Base(full))
	}

	within, err := filepath.Rel(realRoot, real)
	if err != nil {
		return "", fmt.Errorf("rel computation failed: %w", err)
	}
	if escapes(within) {
		return "", fmt.Errorf("%w via symlink: %s", ErrEscapesRoot, real)
	}
	return real, nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// IsRegularFile fails unless path exists and is a regular file.
func IsRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	return nil
}
