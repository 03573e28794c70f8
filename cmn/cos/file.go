// Package cos provides low-level file and checksum helpers shared by the
// rest of the tree.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"io"
	"math/rand"
	"os"
	"path/filepath"
)

// CreateFile creates (or truncates) the file at path, including any
// missing parent directories.
func CreateFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

// FlushClose syncs file to disk and closes it.
func FlushClose(file *os.File) error {
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Close closes c, discarding the error - used where the caller is
// already unwinding from an earlier error.
func Close(c io.Closer) {
	_ = c.Close()
}

// RemoveFile removes path, ignoring a not-exist error.
func RemoveFile(path string) error {
	err := os.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// GenTie returns a short random suffix for scratch/tmp filenames.
func GenTie() string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 8)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
