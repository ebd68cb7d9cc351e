package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RecoveryAshes/TypeDex/internal/models"
)

// MaxTagsPerEntry 每个条目最多的属性数
const MaxTagsPerEntry = 2

// TagExtractor 从条目页面的属性表格中读取属性
type TagExtractor struct {
	xpathTemplate string
	label         string
	timeout       time.Duration
	interval      time.Duration
}

// NewTagExtractor 创建属性提取器
func NewTagExtractor(site models.SiteConfig, timeouts models.TimeoutConfig) *TagExtractor {
	return &TagExtractor{
		xpathTemplate: site.AttributeTableXPath,
		label:         site.AttributeLabel,
		timeout:       timeouts.PageLoad,
		interval:      timeouts.PollInterval,
	}
}

// TableSelector 编号为id的条目的属性表格
func (te *TagExtractor) TableSelector(id int) models.Selector {
	return models.XPath(fmt.Sprintf(te.xpathTemplate, id))
}

// Tags 等待属性表格渲染出文本后解析属性
// 表格为空时重试,超时后返回StructureError
func (te *TagExtractor) Tags(ctx context.Context, nav models.Navigator, id int) ([]string, error) {
	sel := te.TableSelector(id)

	var text string
	err := pollUntil(ctx, te.timeout, te.interval, func(ctx context.Context) error {
		el, err := nav.Locate(ctx, sel)
		if err != nil {
			return err
		}
		defer nav.Release(el)

		t, err := nav.Text(ctx, el)
		if err != nil {
			return err
		}
		if strings.TrimSpace(t) == "" {
			return models.ErrNotReady
		}
		text = t
		return nil
	})
	if err != nil {
		return nil, &models.StructureError{What: "属性表格", Detail: sel.String(), Cause: err}
	}

	return ParseTags(text, te.label)
}

// ParseTags 找到第一列等于label的行,返回其余各列的大写形式
// 例: "Type Grass Poison" -> [GRASS POISON]
func ParseTags(text, label string) ([]string, error) {
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != label {
			continue
		}

		tags := make([]string, 0, len(fields)-1)
		for _, f := range fields[1:] {
			tags = append(tags, strings.ToUpper(f))
		}
		if len(tags) == 0 || len(tags) > MaxTagsPerEntry {
			return nil, &models.StructureError{
				What:   "属性行",
				Detail: fmt.Sprintf("期望1-%d个属性,得到%d个: %q", MaxTagsPerEntry, len(tags), line),
			}
		}
		return tags, nil
	}
	return nil, &models.StructureError{What: "属性行", Detail: fmt.Sprintf("未找到以 %q 开头的行", label)}
}
