// Package jsp (JSON persistence) provides utilities to store and load
// arbitrary JSON-encoded structures to disk with a trailing checksum,
// via an atomic tmp-file-then-rename write.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package jsp

import (
	"errors"
	"os"

	"github.com/golang/glog"
	jsoniter "github.com/json-iterator/go"

	"github.com/nlevitt/outbackcdx/cmn/cos"
)

// Opts lets a persisted type opt into non-default encoding behavior.
// Config structs in this repo use the zero value (plain JSON + checksum).
type Opts interface {
	JspOpts() Options
}

type Options struct{}

func Plain() Options { return Options{} }

// SaveMeta persists meta under filepath using its own JspOpts.
func SaveMeta(filepath string, meta Opts) error {
	return Save(filepath, meta, meta.JspOpts())
}

// Save atomically writes v as checksummed JSON to filepath.
func Save(filepath string, v interface{}, _ Options) (err error) {
	tmp := filepath + ".tmp." + cos.GenTie()
	file, err := cos.CreateFile(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if nestedErr := cos.RemoveFile(tmp); nestedErr != nil {
				glog.Errorf("Nested (%v): failed to remove %s, err: %v", err, tmp, nestedErr)
			}
		}
	}()

	data, err := jsoniter.Marshal(v)
	if err != nil {
		glog.Errorf("Failed to encode %s: %v", filepath, err)
		cos.Close(file)
		return err
	}
	data = append(data, cos.NewCksum(data).Bytes()...)
	if _, err = file.Write(data); err != nil {
		glog.Errorf("Failed to write %s: %v", filepath, err)
		cos.Close(file)
		return err
	}
	if err = cos.FlushClose(file); err != nil {
		glog.Errorf("Failed to flush and close %s: %v", tmp, err)
		return err
	}
	return os.Rename(tmp, filepath)
}

// LoadMeta reads back a file written by SaveMeta.
func LoadMeta(filepath string, meta Opts) (*cos.Cksum, error) {
	return Load(filepath, meta, meta.JspOpts())
}

// Load reads back a file written by Save, verifying its checksum.
func Load(filepath string, v interface{}, _ Options) (checksum *cos.Cksum, err error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, errors.New("jsp: truncated file: " + filepath)
	}
	payload, sum := data[:len(data)-4], data[len(data)-4:]
	checksum = cos.NewCksum(payload)
	if string(checksum.Bytes()) != string(sum) {
		if errRm := os.Remove(filepath); errRm == nil {
			glog.Errorf("bad checksum: removing %s", filepath)
		} else {
			glog.Errorf("bad checksum: failed to remove %s: %v", filepath, errRm)
		}
		return nil, &cos.ErrBadCksum{}
	}
	err = jsoniter.Unmarshal(payload, v)
	return checksum, err
}
