package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/RecoveryAshes/TypeDex/internal/models"
)

func TestParseChoice(t *testing.T) {
	tests := []struct {
		input      string
		want       int
		wantReason string
	}{
		{"0", 0, ""},
		{" 1 ", 1, ""},
		{"2", 0, "超出范围 [0-1]"},
		{"-1", 0, "超出范围 [0-1]"},
		{"x", 0, "不是数字"},
		{"", 0, "不是数字"},
		{"1.5", 0, "不是数字"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseChoice(tt.input, 2)
			if tt.wantReason == "" {
				if err != nil || got != tt.want {
					t.Errorf("ParseChoice(%q) = %d, %v; want %d", tt.input, got, err, tt.want)
				}
				return
			}
			var ie *models.InputError
			if !errors.As(err, &ie) {
				t.Fatalf("期望InputError, 得到 %v", err)
			}
			if ie.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", ie.Reason, tt.wantReason)
			}
		})
	}
}

func twoOptions() []models.CatalogOption {
	return []models.CatalogOption{
		{Label: "Red & Blue (Kanto)", Target: "Red & Blue"},
		{Label: "Gold & Silver", Target: "Gold & Silver"},
	}
}

func TestCatalogSelector_Choose(t *testing.T) {
	t.Run("序号0选择第一个选项", func(t *testing.T) {
		op := newScriptedOperator("0")
		cs := NewCatalogSelector(newFakeNavigator(), op, testSiteConfig(), testTimeouts().PageLoad, 3)

		got, err := cs.Choose(context.Background(), twoOptions())
		if err != nil {
			t.Fatalf("Choose() error = %v", err)
		}
		if got.Target != "Red & Blue" {
			t.Errorf("Target = %q, want %q", got.Target, "Red & Blue")
		}
		if !strings.Contains(op.output(), "[0]: Red & Blue (Kanto)") || !strings.Contains(op.output(), "[1]: Gold & Silver") {
			t.Errorf("应列出所有选项: %s", op.output())
		}
	})

	t.Run("无效输入后重新询问", func(t *testing.T) {
		op := newScriptedOperator("x", "2", "1")
		cs := NewCatalogSelector(newFakeNavigator(), op, testSiteConfig(), testTimeouts().PageLoad, 3)

		got, err := cs.Choose(context.Background(), twoOptions())
		if err != nil {
			t.Fatalf("Choose() error = %v", err)
		}
		if got.Target != "Gold & Silver" {
			t.Errorf("Target = %q, want Gold & Silver", got.Target)
		}
		if len(op.asked) != 3 {
			t.Errorf("期望询问3次, 实际%d次", len(op.asked))
		}
		out := op.output()
		if !strings.Contains(out, "不是数字") || !strings.Contains(out, "超出范围 [0-1]") {
			t.Errorf("应提示两种输入错误: %s", out)
		}
	})

	t.Run("连续无效输入达到上限", func(t *testing.T) {
		op := newScriptedOperator("a", "b", "c", "0")
		cs := NewCatalogSelector(newFakeNavigator(), op, testSiteConfig(), testTimeouts().PageLoad, 3)

		_, err := cs.Choose(context.Background(), twoOptions())
		if !errors.Is(err, models.ErrOperatorAborted) {
			t.Fatalf("期望ErrOperatorAborted, 得到 %v", err)
		}
		if models.IsStructural(err) {
			t.Error("操作员终止不是结构错误")
		}
	})

	t.Run("输入结束", func(t *testing.T) {
		cs := NewCatalogSelector(newFakeNavigator(), newScriptedOperator(), testSiteConfig(), testTimeouts().PageLoad, 3)
		if _, err := cs.Choose(context.Background(), twoOptions()); !errors.Is(err, models.ErrOperatorAborted) {
			t.Fatalf("期望ErrOperatorAborted, 得到 %v", err)
		}
	})

	t.Run("没有选项", func(t *testing.T) {
		cs := NewCatalogSelector(newFakeNavigator(), newScriptedOperator("0"), testSiteConfig(), testTimeouts().PageLoad, 3)
		if _, err := cs.Choose(context.Background(), nil); !models.IsStructural(err) {
			t.Fatalf("期望StructureError, 得到 %v", err)
		}
	})
}

func TestCatalogSelector_ListOptionsAndEnter(t *testing.T) {
	ctx := context.Background()
	nav := newTestSite(grassPoisonFire()...)
	if err := nav.Open(ctx, testBaseURL); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	cs := NewCatalogSelector(nav, newScriptedOperator(), testSiteConfig(), testTimeouts().PageLoad, 3)

	options, err := cs.ListOptions(ctx)
	if err != nil {
		t.Fatalf("ListOptions() error = %v", err)
	}
	if len(options) != 2 {
		t.Fatalf("窗口[1,3)应得到2个选项, 得到 %d", len(options))
	}
	if options[0].Label != "Red & Blue (Kanto)" || options[0].Target != "Red & Blue" {
		t.Errorf("options[0] = %+v", options[0])
	}
	if options[1].Target != "Gold & Silver" {
		t.Errorf("options[1] = %+v", options[1])
	}

	if err := cs.Enter(ctx, options[0]); err != nil {
		t.Fatalf("Enter() error = %v", err)
	}
	refs, err := DiscoverEntries(ctx, nav, testEntryLinks)
	if err != nil {
		t.Fatalf("DiscoverEntries() error = %v", err)
	}
	if len(refs) != 3 || refs[0].Label != "Bulbasaur" || refs[2].Position != 2 {
		t.Errorf("条目引用不正确: %v", refs)
	}
}

func TestCatalogSelector_StructureErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("窗口外没有选项", func(t *testing.T) {
		nav := newTestSite()
		if err := nav.Open(ctx, testBaseURL); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		site := testSiteConfig()
		site.CatalogRangeStart, site.CatalogRangeEnd = 69, 86
		cs := NewCatalogSelector(nav, newScriptedOperator(), site, testTimeouts().PageLoad, 3)

		if _, err := cs.ListOptions(ctx); !models.IsStructural(err) {
			t.Fatalf("期望StructureError, 得到 %v", err)
		}
	})

	t.Run("链接文本不存在", func(t *testing.T) {
		nav := newTestSite()
		if err := nav.Open(ctx, testBaseURL); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		cs := NewCatalogSelector(nav, newScriptedOperator(), testSiteConfig(), testTimeouts().PageLoad, 3)

		err := cs.Enter(ctx, models.CatalogOption{Label: "Ruby (Hoenn)", Target: "Ruby"})
		if !models.IsStructural(err) || !errors.Is(err, models.ErrElementNotFound) {
			t.Fatalf("期望包装ErrElementNotFound的StructureError, 得到 %v", err)
		}
	})
}
