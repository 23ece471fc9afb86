// Package apperr 游戏核心的错误分类，调用方按 Kind 决定提示方式
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation           Kind = "validation"
	KindAuthorization        Kind = "authorization"
	KindInsufficientResource Kind = "insufficient_resource"
	KindNotFound             Kind = "not_found"
	KindConsistency          Kind = "consistency"
	KindConflict             Kind = "conflict"
	KindInternal             Kind = "internal"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 同类错误视为相等，便于 errors.Is(err, apperr.ErrNotFound) 这种写法
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

// 仅用于 errors.Is 的哨兵
var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrAuthorization        = &Error{Kind: KindAuthorization}
	ErrInsufficientResource = &Error{Kind: KindInsufficientResource}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrConsistency          = &Error{Kind: KindConsistency}
	ErrConflict             = &Error{Kind: KindConflict}
)

func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Authorization(format string, args ...interface{}) error {
	return &Error{Kind: KindAuthorization, Msg: fmt.Sprintf(format, args...)}
}

func Insufficient(format string, args ...interface{}) error {
	return &Error{Kind: KindInsufficientResource, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Consistency(format string, args ...interface{}) error {
	return &Error{Kind: KindConsistency, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(err error, format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 非 apperr 的错误一律算 internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message 返回给用户看的简短原因
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}
