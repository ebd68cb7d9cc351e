package crawlers

import (
	"fmt"
	"sync"

	"github.com/RecoveryAshes/TypeDex/internal/models"
	"github.com/go-rod/rod"
)

// pooledPage 标签页池中的一个标签页
type pooledPage struct {
	id     models.TabID
	page   *rod.Page
	router *rod.HijackRouter
}

// pooledElement 句柄对应的元素及其所属标签页
type pooledElement struct {
	tab models.TabID
	el  *rod.Element
}

// PagePool 标签页和元素句柄的注册表
// 职责: 分配整数句柄,保证 *rod.Page 和 *rod.Element 不离开crawlers包
type PagePool struct {
	mu sync.Mutex

	// pages 按打开顺序排列,主标签页在第一位
	pages    []*pooledPage
	elements map[models.ElementID]pooledElement

	nextTab     models.TabID
	nextElement models.ElementID
}

// NewPagePool 创建空的标签页池
func NewPagePool() *PagePool {
	return &PagePool{
		pages:    make([]*pooledPage, 0),
		elements: make(map[models.ElementID]pooledElement),
	}
}

// AddPage 登记标签页,返回新句柄
func (pp *PagePool) AddPage(page *rod.Page, router *rod.HijackRouter) models.TabID {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	pp.nextTab++
	pp.pages = append(pp.pages, &pooledPage{id: pp.nextTab, page: page, router: router})
	return pp.nextTab
}

// Page 按句柄查找标签页
func (pp *PagePool) Page(tab models.TabID) (*rod.Page, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	for _, p := range pp.pages {
		if p.id == tab {
			return p.page, nil
		}
	}
	return nil, fmt.Errorf("%w: 标签页 %d", models.ErrUnknownHandle, tab)
}

// RemovePage 注销标签页并吊销其上的所有元素句柄
// 返回被注销的标签页,由调用方负责关闭
func (pp *PagePool) RemovePage(tab models.TabID) (*rod.Page, *rod.HijackRouter, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	for i, p := range pp.pages {
		if p.id != tab {
			continue
		}
		pp.pages = append(pp.pages[:i], pp.pages[i+1:]...)
		for id, e := range pp.elements {
			if e.tab == tab {
				delete(pp.elements, id)
			}
		}
		return p.page, p.router, nil
	}
	return nil, nil, fmt.Errorf("%w: 标签页 %d", models.ErrUnknownHandle, tab)
}

// Tabs 按打开顺序返回所有标签页句柄
func (pp *PagePool) Tabs() []models.TabID {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	ids := make([]models.TabID, 0, len(pp.pages))
	for _, p := range pp.pages {
		ids = append(ids, p.id)
	}
	return ids
}

// CurrentSize 当前标签页数量
func (pp *PagePool) CurrentSize() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.pages)
}

// AddElement 登记元素,返回新句柄
func (pp *PagePool) AddElement(tab models.TabID, el *rod.Element) models.ElementID {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	pp.nextElement++
	pp.elements[pp.nextElement] = pooledElement{tab: tab, el: el}
	return pp.nextElement
}

// Element 按句柄查找元素
func (pp *PagePool) Element(id models.ElementID) (*rod.Element, models.TabID, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	e, ok := pp.elements[id]
	if !ok {
		return nil, models.NoTab, fmt.Errorf("%w: 元素 %d", models.ErrUnknownHandle, id)
	}
	return e.el, e.tab, nil
}

// ReleaseElement 吊销元素句柄,未知句柄忽略
func (pp *PagePool) ReleaseElement(id models.ElementID) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	delete(pp.elements, id)
}

// ElementCount 当前有效的元素句柄数
func (pp *PagePool) ElementCount() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.elements)
}

// Drain 注销全部标签页和元素,返回需要关闭的标签页
func (pp *PagePool) Drain() []*pooledPage {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	pages := pp.pages
	pp.pages = make([]*pooledPage, 0)
	pp.elements = make(map[models.ElementID]pooledElement)
	return pages
}
