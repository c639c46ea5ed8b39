package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind 错误类别
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindExternalService Kind = "external_service"
	KindInternal        Kind = "internal"
)

// Error 带类别的业务错误，调用方通过 KindOf 判断如何处理
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Forbidden(format string, args ...interface{}) *Error {
	return New(KindForbidden, fmt.Sprintf(format, args...))
}

func External(message string, err error) *Error {
	return Wrap(KindExternalService, message, err)
}

func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// List 多个错误的集合，用于一次性返回全部校验失败
type List []*Error

func (l List) Error() string {
	msgs := make([]string, 0, len(l))
	for _, e := range l {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Kind 返回第一个错误的类别
func (l List) Kind() Kind {
	if len(l) == 0 {
		return KindInternal
	}
	return l[0].Kind
}

// OrNil 空列表返回 nil，避免返回非 nil 的空错误
func (l List) OrNil() error {
	if len(l) == 0 {
		return nil
	}
	if len(l) == 1 {
		return l[0]
	}
	return l
}

// KindOf 获取错误类别，未分类的错误视为 internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var list List
	if errors.As(err, &list) {
		return list.Kind()
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is 判断错误是否属于指定类别
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Messages 展开错误消息，供响应体展示
func Messages(err error) []string {
	if err == nil {
		return nil
	}
	var list List
	if errors.As(err, &list) {
		msgs := make([]string, 0, len(list))
		for _, e := range list {
			msgs = append(msgs, e.Message)
		}
		return msgs
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return []string{appErr.Message}
	}
	return []string{err.Error()}
}
