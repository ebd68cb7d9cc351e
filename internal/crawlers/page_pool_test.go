package crawlers

import (
	"errors"
	"reflect"
	"testing"

	"github.com/RecoveryAshes/TypeDex/internal/models"
	"github.com/go-rod/rod"
)

func TestPagePool_Tabs(t *testing.T) {
	pool := NewPagePool()
	primary := pool.AddPage(&rod.Page{}, nil)
	second := pool.AddPage(&rod.Page{}, nil)
	third := pool.AddPage(&rod.Page{}, nil)

	if got := pool.Tabs(); !reflect.DeepEqual(got, []models.TabID{primary, second, third}) {
		t.Errorf("Tabs() = %v, 应按打开顺序", got)
	}
	if primary == models.NoTab {
		t.Error("句柄不能是NoTab")
	}

	if _, _, err := pool.RemovePage(second); err != nil {
		t.Fatalf("RemovePage() error = %v", err)
	}
	if got := pool.Tabs(); !reflect.DeepEqual(got, []models.TabID{primary, third}) {
		t.Errorf("移除后 Tabs() = %v", got)
	}
	if _, err := pool.Page(second); !errors.Is(err, models.ErrUnknownHandle) {
		t.Errorf("已移除的标签页应返回ErrUnknownHandle, 得到 %v", err)
	}
	if _, _, err := pool.RemovePage(second); !errors.Is(err, models.ErrUnknownHandle) {
		t.Errorf("重复移除应返回ErrUnknownHandle, 得到 %v", err)
	}

	// 句柄不复用
	if next := pool.AddPage(&rod.Page{}, nil); next == second {
		t.Errorf("标签页句柄被复用: %d", next)
	}
}

func TestPagePool_Elements(t *testing.T) {
	pool := NewPagePool()
	primary := pool.AddPage(&rod.Page{}, nil)
	aux := pool.AddPage(&rod.Page{}, nil)

	link := pool.AddElement(primary, &rod.Element{})
	table := pool.AddElement(aux, &rod.Element{})
	nav := pool.AddElement(aux, &rod.Element{})

	if _, tab, err := pool.Element(table); err != nil || tab != aux {
		t.Fatalf("Element() tab = %d, err = %v", tab, err)
	}

	pool.ReleaseElement(nav)
	pool.ReleaseElement(nav)
	if _, _, err := pool.Element(nav); !errors.Is(err, models.ErrUnknownHandle) {
		t.Errorf("释放后应返回ErrUnknownHandle, 得到 %v", err)
	}

	// 关闭标签页吊销其上的所有元素
	if _, _, err := pool.RemovePage(aux); err != nil {
		t.Fatalf("RemovePage() error = %v", err)
	}
	if _, _, err := pool.Element(table); !errors.Is(err, models.ErrUnknownHandle) {
		t.Errorf("标签页关闭后元素句柄应失效, 得到 %v", err)
	}
	if _, _, err := pool.Element(link); err != nil {
		t.Errorf("其他标签页的元素不应受影响: %v", err)
	}
	if pool.ElementCount() != 1 {
		t.Errorf("ElementCount() = %d, want 1", pool.ElementCount())
	}
}

func TestPagePool_Drain(t *testing.T) {
	pool := NewPagePool()
	tab := pool.AddPage(&rod.Page{}, nil)
	pool.AddElement(tab, &rod.Element{})
	pool.AddPage(&rod.Page{}, nil)

	if drained := pool.Drain(); len(drained) != 2 {
		t.Errorf("Drain() 返回 %d 个标签页, want 2", len(drained))
	}
	if pool.CurrentSize() != 0 || pool.ElementCount() != 0 {
		t.Errorf("Drain后应为空: %d tabs, %d elements", pool.CurrentSize(), pool.ElementCount())
	}
}

func TestLinkTextRegex(t *testing.T) {
	if got := linkTextRegex("Red & Blue"); got != `/^\s*Red & Blue\s*$/` {
		t.Errorf("linkTextRegex() = %s", got)
	}
	if got := linkTextRegex("Let's Go (Pikachu)"); got != `/^\s*Let's Go \(Pikachu\)\s*$/` {
		t.Errorf("括号应被转义: %s", got)
	}
}
