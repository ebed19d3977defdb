// Package apperr 统一错误分类
//
// 同步提交路径上的错误按 Kind 映射为 HTTP 状态码返回给调用方；
// 回调路径上的错误只分类并记录日志，从不返回给外部调用方。
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/containerd/errdefs"
)

// Kind 错误类别
type Kind string

const (
	KindAuthFailure               Kind = "auth_failure"                // 凭据获取被拒绝
	KindInvalidEngine             Kind = "invalid_engine"              // 无法识别的引擎标识
	KindInvalidInput              Kind = "invalid_input"               // 请求参数错误（如本地包不存在）
	KindRemoteCreateFailure       Kind = "remote_create_failure"       // 执行引擎拒绝创建 bundle/activity/workitem
	KindArtifactIOFailure         Kind = "artifact_io_failure"         // 上传/下载失败
	KindCallbackProcessingFailure Kind = "callback_processing_failure" // 回调处理失败（只记录）
	KindEngineFailure             Kind = "engine_failure"              // 其他执行引擎调用失败
)

// Error 带分类的错误
type Error struct {
	Kind Kind
	Op   string // 出错的操作，如 "EnsureBundle"
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建分类错误
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf 以格式化消息创建分类错误
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// AuthFailure 凭据获取失败
func AuthFailure(op string, err error) *Error { return New(KindAuthFailure, op, err) }

// InvalidEngine 引擎标识无法匹配任何已知引擎族
func InvalidEngine(engineID string) *Error {
	return Errorf(KindInvalidEngine, "LookupEngine", "unknown engine %q", engineID)
}

// RemoteCreateFailure 执行引擎拒绝创建
func RemoteCreateFailure(op string, err error) *Error { return New(KindRemoteCreateFailure, op, err) }

// ArtifactIOFailure 制品读写失败
func ArtifactIOFailure(op string, err error) *Error { return New(KindArtifactIOFailure, op, err) }

// CallbackProcessingFailure 回调处理步骤失败
func CallbackProcessingFailure(op string, err error) *Error {
	return New(KindCallbackProcessingFailure, op, err)
}

// Wrap 为未分类的错误补充类别，已分类的错误原样返回
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return New(kind, op, err)
}

// KindOf 返回错误链中第一个分类错误的类别
//
// 未分类的错误按 errdefs 语义兜底归类，无法识别时归为 EngineFailure。
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errdefs.IsUnauthorized(err), errdefs.IsPermissionDenied(err):
		return KindAuthFailure
	case errdefs.IsInvalidArgument(err):
		return KindInvalidInput
	default:
		return KindEngineFailure
	}
}

// Is 判断错误是否属于指定类别
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// HTTPStatus 将错误映射为 HTTP 状态码
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidEngine, KindInvalidInput:
		return http.StatusBadRequest
	case KindAuthFailure:
		return http.StatusBadGateway
	case KindRemoteCreateFailure:
		switch {
		case errdefs.IsConflict(err), errdefs.IsAlreadyExists(err):
			return http.StatusConflict
		case errdefs.IsInvalidArgument(err), errdefs.IsNotFound(err):
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	case KindArtifactIOFailure, KindEngineFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus 按执行引擎返回的 HTTP 状态码构造 errdefs 哨兵错误
func FromStatus(status int, body string) error {
	var base error
	switch {
	case status == http.StatusNotFound:
		base = errdefs.ErrNotFound
	case status == http.StatusConflict:
		base = errdefs.ErrConflict
	case status == http.StatusUnauthorized:
		base = errdefs.ErrUnauthenticated
	case status == http.StatusForbidden:
		base = errdefs.ErrPermissionDenied
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		base = errdefs.ErrInvalidArgument
	case status == http.StatusTooManyRequests:
		base = errdefs.ErrResourceExhausted
	case status >= 500:
		base = errdefs.ErrUnavailable
	default:
		base = errdefs.ErrUnknown
	}
	if body == "" {
		return fmt.Errorf("%w: status %d", base, status)
	}
	return fmt.Errorf("%w: status %d: %s", base, status, body)
}
