// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package clrvm

import (
	"os"

	"github.com/go-kratos/kratos/v2/log"
)

// newDefaultLogger mirrors the teacher's file.go: when no Logger is
// supplied in Options, fall back to a stdout logger filtered to error
// level, wrapped in a *log.Helper so every decoder can log through the
// same small interface regardless of what the caller plugged in.
func newDefaultLogger() *log.Helper {
	logger := log.NewStdLogger(os.Stdout)
	return log.NewHelper(log.NewFilter(logger, log.FilterLevel(log.LevelError)))
}

func helperFor(l log.Logger) *log.Helper {
	if l == nil {
		return newDefaultLogger()
	}
	return log.NewHelper(l)
}
