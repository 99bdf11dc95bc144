// Copyright 2026 The Kestrel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package util groups helpers shared by the kboot commands.
package util

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"kestrel.dev/kestrel/pkg/log"
)

// ErrorLogger is where error messages should be written to. These messages
// are consumed by tooling that drives kboot, so they are structured.
var ErrorLogger io.Writer

// errorLog returns a logger writing JSON entries to ErrorLogger, or nil if
// ErrorLogger is unset.
func errorLog() *logrus.Logger {
	if ErrorLogger == nil {
		return nil
	}
	l := logrus.New()
	l.SetOutput(ErrorLogger)
	l.SetFormatter(&logrus.JSONFormatter{})
	return l
}

// Fatalf logs the same message to the regular log, ErrorLogger and stderr,
// and then exits.
func Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Warningf("FATAL ERROR: %s", msg)
	if l := errorLog(); l != nil {
		l.WithField("fatal", true).Error(msg)
	}
	fmt.Fprintf(os.Stderr, "kboot: %s\n", msg)
	os.Exit(128)
}

// Errorf logs the same message to the regular log, ErrorLogger and stderr.
func Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Warningf("%s", msg)
	if l := errorLog(); l != nil {
		l.Error(msg)
	}
	fmt.Fprintf(os.Stderr, "kboot: %s\n", msg)
}

// Infof logs to the regular log and to stderr.
func Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Infof("%s", msg)
	fmt.Fprintln(os.Stderr, msg)
}
