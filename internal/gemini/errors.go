package gemini

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Kind 客户端边界上的错误分类，编排器只根据Kind分派，不检查错误文本
type Kind int

const (
	KindUnknown Kind = iota
	KindMissingCredential
	KindInvalidCredential
	KindUnavailable
	KindMalformed
)

// Error 带分类的客户端错误，用Errorf构造
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// Kind 返回错误分类
func (e *Error) Kind() Kind { return e.kind }

// Errorf 构造带分类的错误
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, msg string) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

// KindOf 提取错误分类，nil返回KindUnknown
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.kind
	}
	return KindUnknown
}

// classify 在客户端边界把provider错误映射为有限的Kind集合
func classify(err error, op string) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return wrapError(KindInvalidCredential, err, op+": credential rejected")
		case http.StatusBadRequest:
			// Gemini对无效API key返回400 INVALID_ARGUMENT
			if strings.Contains(strings.ToLower(apiErr.Message), "api key") {
				return wrapError(KindInvalidCredential, err, op+": credential rejected")
			}
			return wrapError(KindUnknown, err, op+": request failed")
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return wrapError(KindUnavailable, err, op+": service unavailable")
		default:
			return wrapError(KindUnknown, err, op+": request failed")
		}
	}
	return wrapError(KindUnknown, err, op+": request failed")
}
