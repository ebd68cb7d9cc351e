package models

import (
	"context"
	"fmt"
	"time"
)

// ElementID 元素句柄
// 由Navigator持有的注册表分配,调用方只能通过句柄访问页面元素
type ElementID int

// TabID 标签页句柄
type TabID int

// NoTab 表示没有激活的标签页
const NoTab TabID = 0

// SelectorKind 选择器类型
type SelectorKind string

const (
	SelectorCSS      SelectorKind = "css"      // CSS选择器
	SelectorXPath    SelectorKind = "xpath"    // XPath表达式
	SelectorLinkText SelectorKind = "linktext" // 链接文本精确匹配
)

// Selector 元素定位器
type Selector struct {
	Kind SelectorKind
	Expr string
}

// CSS 创建CSS选择器
func CSS(expr string) Selector { return Selector{Kind: SelectorCSS, Expr: expr} }

// XPath 创建XPath选择器
func XPath(expr string) Selector { return Selector{Kind: SelectorXPath, Expr: expr} }

// LinkText 创建链接文本选择器
func LinkText(text string) Selector { return Selector{Kind: SelectorLinkText, Expr: text} }

func (s Selector) String() string {
	return fmt.Sprintf("%s(%s)", s.Kind, s.Expr)
}

// Navigator 浏览器自动化能力
// 所有元素和标签页都通过整数句柄引用,句柄的所有权属于Navigator
//
// 约定:
//   - Locate 在元素不存在时立即返回 ErrElementNotFound,不等待
//   - WaitFor 轮询直到元素出现或超时
//   - OpenInNewTab 只打开标签页,不切换焦点; 标签页已创建但导航失败时
//     同时返回该标签页和错误,调用方负责关闭
//   - WaitFor 在超时前ctx先结束时返回ctx的错误,而不是 ErrElementNotFound
//   - Tabs 按打开顺序返回,主标签页在第一位
type Navigator interface {
	Open(ctx context.Context, url string) error
	Locate(ctx context.Context, sel Selector) (ElementID, error)
	LocateAll(ctx context.Context, sel Selector) ([]ElementID, error)
	WaitFor(ctx context.Context, sel Selector, timeout time.Duration) (ElementID, error)
	Text(ctx context.Context, el ElementID) (string, error)
	Attribute(ctx context.Context, el ElementID, name string) (string, bool, error)
	Click(ctx context.Context, el ElementID) error
	OpenInNewTab(ctx context.Context, el ElementID) (TabID, error)
	Tabs(ctx context.Context) ([]TabID, error)
	Active() TabID
	SwitchTo(ctx context.Context, tab TabID) error
	CloseTab(ctx context.Context, tab TabID) error
	Release(el ElementID)
	Close() error
}

// Operator 操作员交互接口(终端输入输出)
type Operator interface {
	// Ask 打印提示并读取一行输入(不含换行符)
	// 输入流结束时返回 io.EOF
	Ask(ctx context.Context, prompt string) (string, error)

	// Say 向操作员输出一行信息
	Say(format string, args ...interface{})
}
