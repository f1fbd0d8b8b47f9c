// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package vestig

import (
	"errors"
	"net"
	"os"
	"reflect"
	"runtime/debug"
	"strconv"
	"syscall"
)

// SerializedError is the transport-safe form of an error: name, message,
// optional stack, a cause chain bounded to depth 10, and whatever OS-level
// detail the error carried.
type SerializedError struct {
	Name    string           `json:"name"`
	Message string           `json:"message"`
	Stack   string           `json:"stack,omitempty"`
	Cause   *SerializedError `json:"cause,omitempty"`

	Code       string `json:"code,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
	Errno      int    `json:"errno,omitempty"`
	Syscall    string `json:"syscall,omitempty"`
	Path       string `json:"path,omitempty"`
	Address    string `json:"address,omitempty"`
	Port       int    `json:"port,omitempty"`
}

// maxCauseDepth bounds the serialized cause chain.
const maxCauseDepth = 10

// statusCoder is implemented by typed HTTP errors.
type statusCoder interface{ StatusCode() int }

// coder is implemented by errors carrying a short machine-readable code.
type coder interface{ Code() string }

// SerializeError converts any error into its transport-safe form. A nil
// error yields nil. The current stack is captured for the top-level error
// only, matching how spans record error stacks.
func SerializeError(err error) *SerializedError {
	if err == nil {
		return nil
	}
	s := serialize(err, 0)
	s.Stack = string(debug.Stack())
	return s
}

func serialize(err error, depth int) *SerializedError {
	s := &SerializedError{
		Name:    errorName(err),
		Message: err.Error(),
	}
	fillDetail(s, err)
	if depth >= maxCauseDepth {
		return s
	}
	if cause := errors.Unwrap(err); cause != nil {
		s.Cause = serialize(cause, depth+1)
	}
	return s
}

func errorName(err error) string {
	t := reflect.TypeOf(err)
	if t == nil {
		return "error"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "error"
	}
	return t.String()
}

// fillDetail copies OS- and transport-level fields off well-known error
// shapes. Each probe works on the error itself, not the unwrapped chain;
// causes carry their own detail.
func fillDetail(s *SerializedError, err error) {
	switch e := err.(type) {
	case *os.PathError:
		s.Syscall = e.Op
		s.Path = e.Path
	case *os.SyscallError:
		s.Syscall = e.Syscall
	case *net.OpError:
		s.Syscall = e.Op
		if e.Addr != nil {
			s.Address = e.Addr.String()
			if host, port, splitErr := net.SplitHostPort(e.Addr.String()); splitErr == nil {
				s.Address = host
				if p, convErr := strconv.Atoi(port); convErr == nil {
					s.Port = p
				}
			}
		}
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		s.Errno = int(errno)
		if s.Code == "" {
			s.Code = errno.Error()
		}
	}
	if sc, ok := err.(statusCoder); ok {
		s.StatusCode = sc.StatusCode()
	}
	if c, ok := err.(coder); ok {
		s.Code = c.Code()
	}
}

// IsError reports whether v is error-like: an error value, or a mapping with
// a string "message" entry.
func IsError(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.(error); ok {
		return true
	}
	if m, ok := v.(map[string]any); ok {
		_, has := m["message"].(string)
		return has
	}
	return false
}

// ErrorMessage extracts a human-readable message from an error-like value,
// or the empty string.
func ErrorMessage(v any) string {
	switch e := v.(type) {
	case error:
		return e.Error()
	case map[string]any:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
	}
	return ""
}

// SerializeValue converts an error-like value (see IsError) into its
// transport-safe form. Mappings keep their message and optional name.
func SerializeValue(v any) *SerializedError {
	switch e := v.(type) {
	case error:
		return SerializeError(e)
	case map[string]any:
		msg, _ := e["message"].(string)
		s := &SerializedError{Name: "error", Message: msg}
		if name, ok := e["name"].(string); ok {
			s.Name = name
		}
		if stack, ok := e["stack"].(string); ok {
			s.Stack = stack
		}
		return s
	}
	return nil
}
