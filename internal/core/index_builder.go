package core

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/RecoveryAshes/TypeDex/internal/models"
	"github.com/RecoveryAshes/TypeDex/internal/utils"
)

// IndexBuilder 逐个访问条目,构建 属性 -> 条目 索引
type IndexBuilder struct {
	resolver     *IdentifierResolver
	extractor    *TagExtractor
	entryTimeout time.Duration
	progressOut  io.Writer
}

// NewIndexBuilder 创建索引构建器
// progressOut为nil时进度条写到stderr
func NewIndexBuilder(resolver *IdentifierResolver, extractor *TagExtractor, entryTimeout time.Duration, progressOut io.Writer) *IndexBuilder {
	return &IndexBuilder{
		resolver:     resolver,
		extractor:    extractor,
		entryTimeout: entryTimeout,
		progressOut:  progressOut,
	}
}

// Build 按顺序在独立标签页中处理每个条目
// 任一条目失败都会终止构建,不返回部分索引
func (ib *IndexBuilder) Build(ctx context.Context, nav models.Navigator, refs []models.EntryRef) (*models.TagIndex, models.BuildStats, error) {
	start := time.Now()
	stats := models.BuildStats{}

	guard, err := NewTabGuard(ctx, nav)
	if err != nil {
		return nil, stats, err
	}

	index := models.NewTagIndex()
	bar := utils.NewProgressBar(len(refs), "构建属性索引", ib.progressOut)
	defer bar.Close()

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		tags, err := ib.visit(ctx, guard, nav, ref)
		if err != nil {
			return nil, stats, fmt.Errorf("条目 %s: %w", ref, err)
		}
		for _, tag := range tags {
			index.Add(tag, ref)
			stats.Links++
		}
		stats.Entries++
		bar.Add(1)

		utils.Logger.Debug().
			Int("position", ref.Position).
			Str("label", ref.Label).
			Strs("tags", tags).
			Msg("条目已索引")
	}

	stats.Tags = index.Len()
	stats.Duration = time.Since(start).Seconds()
	return index, stats, nil
}

// visit 处理单个条目,返回其属性
func (ib *IndexBuilder) visit(ctx context.Context, guard *TabGuard, nav models.Navigator, ref models.EntryRef) ([]string, error) {
	stepCtx := ctx
	if ib.entryTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, ib.entryTimeout)
		defer cancel()
	}

	var tags []string
	err := guard.Isolate(stepCtx, ref.Element, func(ctx context.Context, _ models.TabID) error {
		id, err := ib.resolver.CurrentID(ctx, nav)
		if err != nil {
			return err
		}
		t, err := ib.extractor.Tags(ctx, nav, id)
		if err != nil {
			return fmt.Errorf("编号 %d: %w", id, err)
		}
		tags = t
		return nil
	})
	return tags, err
}
