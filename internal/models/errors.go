package models

import "github.com/cockroachdb/errors"

// 错误分类，具体错误通过 errors.Mark 标记后可用 errors.Is 判断
var (
	ErrNotConnected      = errors.New("not connected")
	ErrConnection        = errors.New("connection error")
	ErrProtocol          = errors.New("protocol error")
	ErrToolNotFound      = errors.New("tool not found")
	ErrToolExecution     = errors.New("tool execution error")
	ErrGateway           = errors.New("gateway error")
	ErrArgumentParse     = errors.New("argument parse error")
	ErrLoopLimitExceeded = errors.New("loop limit exceeded")
	ErrDuplicateName     = errors.New("duplicate name")
	ErrNotFound          = errors.New("not found")
	ErrInvalidConfig     = errors.New("invalid config")
)
