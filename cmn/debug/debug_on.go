//go:build debug

// Package debug provides assertion helpers compiled in only under the
// "debug" build tag; the release build gets no-op counterparts in
// debug_off.go.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package debug

import (
	"bytes"
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"

	"github.com/golang/glog"
)

// AssertMutexLocked panics if m is not currently held. Intended for a
// single call right after Lock(), documenting that the following code
// relies on exclusive access.
func AssertMutexLocked(m *sync.Mutex) {
	state := reflect.ValueOf(m).Elem().FieldByName("state")
	if state.Int()&1 != 1 {
		panicWithCallers("Mutex not locked")
	}
}

func panicWithCallers(msg string) {
	buffer := bytes.NewBuffer(make([]byte, 0, 1024))
	fmt.Fprintf(buffer, "DEBUG PANIC: %s: ", msg)
	for i := 2; i < 9; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok || !strings.Contains(file, "outbackcdx") {
			break
		}
		if buffer.Len() > len(msg)+14 {
			buffer.WriteString(" <- ")
		}
		fmt.Fprintf(buffer, "%s:%d", filepath.Base(file), line)
	}
	glog.Errorf("%s", buffer.Bytes())
	glog.Flush()
	panic(buffer.String())
}
