package models

import (
	"errors"
	"fmt"
)

var (
	ErrElementNotFound = errors.New("元素不存在")
	ErrUnknownHandle   = errors.New("未知句柄")
	ErrNotReady        = errors.New("页面内容尚未就绪")
	ErrTabInvariant    = errors.New("标签页数量不变量被破坏")
	ErrOperatorAborted = errors.New("操作员终止了会话")
)

// InputError 操作员输入错误
// 在发生的组件内部处理(提示后重新输入),不向上传播
type InputError struct {
	Input  string
	Reason string
}

// Error 实现error接口
func (e *InputError) Error() string {
	return fmt.Sprintf("输入无效 [%s]: %s", e.Input, e.Reason)
}

// StructureError 页面结构假设被破坏
// 致命错误: 会话在释放浏览器后终止
type StructureError struct {
	// What 出问题的页面部件 (如 "next导航", "属性表格")
	What string

	// Detail 补充说明
	Detail string

	// Cause 底层错误
	Cause error
}

// Error 实现error接口
func (e *StructureError) Error() string {
	msg := fmt.Sprintf("页面结构异常 [%s]", e.What)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (%v)", e.Cause)
	}
	return msg
}

// Unwrap 支持errors.Unwrap
func (e *StructureError) Unwrap() error {
	return e.Cause
}

// IsStructural 判断错误链中是否包含StructureError
func IsStructural(err error) bool {
	var se *StructureError
	return errors.As(err, &se)
}
