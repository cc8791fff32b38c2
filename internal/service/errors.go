package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	Conflict            = 409
	TooManyRequests     = 429
	InternalServerError = 500
	ServiceUnavailable  = 503
)

var (
	ErrParamInvalid          = errors.New("参数错误")
	ErrConversationNotFound  = errors.New("会话不存在")
	ErrNotConversationMember = errors.New("不是会话成员")
	ErrMessageNotFound       = errors.New("消息不存在")
	ErrMessageBlocked        = errors.New("消息被拉黑关系拦截")
	ErrBlockSelf             = errors.New("不能拉黑自己")
	ErrAlreadyBlocked        = errors.New("已拉黑该用户")
	ErrBlockNotFound         = errors.New("拉黑关系不存在")
	ErrStorageUnavailable    = errors.New("存储暂不可用，请稍后重试")
	UnauthorizedError        = errors.New("权限不足")
	UnExpectedError          = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:          BadRequest,
	ErrConversationNotFound:  NotFound,
	ErrNotConversationMember: NotFound,
	ErrMessageNotFound:       NotFound,
	ErrMessageBlocked:        Forbidden,
	ErrBlockSelf:             BadRequest,
	ErrAlreadyBlocked:        Conflict,
	ErrBlockNotFound:         NotFound,
	ErrStorageUnavailable:    ServiceUnavailable,
	UnauthorizedError:        Unauthorized,
	UnExpectedError:          InternalServerError,
}
