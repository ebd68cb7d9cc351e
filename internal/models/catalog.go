package models

import (
	"fmt"
	"strings"
)

// CatalogOption 子图鉴选项
type CatalogOption struct {
	Label   string    // 页面显示的文本,如 "Red & Blue (Kanto)"
	Target  string    // 去掉括号后缀后的链接文本,如 "Red & Blue"
	Element ElementID // 读取该选项的元素句柄(静态探测时为0)
}

// trimLabelSuffix 去掉末尾一个完整配对的括号说明(允许嵌套),如 " (Kanto)" 或 " (a (b))"
// 括号不配对或跨行时原样返回
func trimLabelSuffix(s string) string {
	if !strings.HasSuffix(s, ")") {
		return s
	}
	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case ')':
			depth++
		case '(':
			depth--
			if depth == 0 {
				return strings.TrimSuffix(s[:i], " ")
			}
		case '\n':
			return s
		}
	}
	return s
}

// NormalizeCatalogLabel 去掉选项文本末尾的括号说明,得到可点击的链接文本
// "Red & Blue (Kanto)" -> "Red & Blue"; 没有括号后缀时原样返回
func NormalizeCatalogLabel(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &StructureError{What: "子图鉴选项", Detail: "选项文本为空"}
	}
	target := strings.TrimSpace(trimLabelSuffix(trimmed))
	if target == "" {
		return "", &StructureError{What: "子图鉴选项", Detail: fmt.Sprintf("去掉括号后缀后为空: %q", raw)}
	}
	return target, nil
}

// CatalogWindow 把 [start,end) 截断到 [0,n); end为0表示到末尾
func CatalogWindow(start, end, n int) (int, int) {
	if end <= 0 || end > n {
		end = n
	}
	if start > end {
		start = end
	}
	return start, end
}

// EntryRef 图鉴条目引用
// 身份由遍历顺序决定,不按内容比较
type EntryRef struct {
	Position int       // 在遍历顺序中的位置(从0开始)
	Element  ElementID // 主标签页上的链接元素句柄
	Label    string    // 链接文本,仅用于日志
}

func (r EntryRef) String() string {
	return fmt.Sprintf("#%d %s", r.Position, r.Label)
}

// TagIndex 属性 -> 条目 的有序多重映射
//
// 不变量:
//   - 键统一为大写,无重复
//   - 每个序列按插入顺序(即遍历顺序)排列
//   - 拥有N个属性的条目恰好出现在N个序列中,每个序列一次
type TagIndex struct {
	order   []string
	entries map[string][]EntryRef
}

// NewTagIndex 创建空索引
func NewTagIndex() *TagIndex {
	return &TagIndex{
		order:   make([]string, 0),
		entries: make(map[string][]EntryRef),
	}
}

// NormalizeTag 属性名规范化(去空白,转大写)
func NormalizeTag(tag string) string {
	return strings.ToUpper(strings.TrimSpace(tag))
}

// Add 把条目追加到属性序列,首次出现时创建序列
func (ti *TagIndex) Add(tag string, ref EntryRef) {
	key := NormalizeTag(tag)
	if key == "" {
		return
	}
	if _, exists := ti.entries[key]; !exists {
		ti.order = append(ti.order, key)
	}
	ti.entries[key] = append(ti.entries[key], ref)
}

// Lookup 查找属性对应的条目序列
// 返回的切片是副本,调用方修改不会影响索引
func (ti *TagIndex) Lookup(tag string) ([]EntryRef, bool) {
	refs, ok := ti.entries[NormalizeTag(tag)]
	if !ok {
		return nil, false
	}
	out := make([]EntryRef, len(refs))
	copy(out, refs)
	return out, true
}

// Tags 按首次出现顺序返回所有属性
func (ti *TagIndex) Tags() []string {
	out := make([]string, len(ti.order))
	copy(out, ti.order)
	return out
}

// Count 返回某属性下的条目数
func (ti *TagIndex) Count(tag string) int {
	return len(ti.entries[NormalizeTag(tag)])
}

// Len 返回属性数量
func (ti *TagIndex) Len() int {
	return len(ti.order)
}

// Occurrences 统计条目在所有序列中出现的次数(按Position)
func (ti *TagIndex) Occurrences(position int) int {
	n := 0
	for _, refs := range ti.entries {
		for _, ref := range refs {
			if ref.Position == position {
				n++
			}
		}
	}
	return n
}
