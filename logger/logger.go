// Copyright (c) 2021 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package logger defines a generic logging interface so that the core
// doesn't have to depend on either golang/glog or aristanetworks/glog
// directly; see the glog subpackage for the default implementation.
package logger

// Logger is an interface to pass a generic logger without depending on either golang/glog or
// aristanetworks/glog
type Logger interface {
	// Info logs at the info level
	Info(args ...interface{})
	// Infof logs at the info level, with format
	Infof(format string, args ...interface{})
	// Error logs at the error level
	Error(args ...interface{})
	// Errorf logs at the error level, with format
	Errorf(format string, args ...interface{})
	// Fatal logs at the fatal level
	Fatal(args ...interface{})
	// Fatalf logs at the fatal level, with format
	Fatalf(format string, args ...interface{})
}

// Nop is a Logger that discards everything. It is the default for
// constructors that accept a logger.Logger but aren't given one, since the
// core must stay silent unless a caller opts in to diagnostics.
type Nop struct{}

// Info implements Logger.
func (Nop) Info(args ...interface{}) {}

// Infof implements Logger.
func (Nop) Infof(format string, args ...interface{}) {}

// Error implements Logger.
func (Nop) Error(args ...interface{}) {}

// Errorf implements Logger.
func (Nop) Errorf(format string, args ...interface{}) {}

// Fatal implements Logger.
func (Nop) Fatal(args ...interface{}) {}

// Fatalf implements Logger.
func (Nop) Fatalf(format string, args ...interface{}) {}
