// Package logevent defines the log event model consumed by the appender.
//
// An Event is a read-only snapshot produced by a logging pipeline: a severity
// level, the formatted message and a handful of optional fields (marker,
// source location, thread context, thrown error). Missing optional fields are
// represented by their zero value and never cause an error downstream.
//
// Events arrive either from the service's own logger (pkg/logx forward sink)
// or as JSON Lines decoded with Decode.
package logevent
