package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/TypeDex/internal/models"
	"github.com/RecoveryAshes/TypeDex/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"
)

// CatalogScout 静态探测器(使用Colly)
// 不启动浏览器,直接抓取图鉴索引页并列出子图鉴
type CatalogScout struct {
	site           models.SiteConfig
	headerProvider models.HeaderProvider
	timeout        time.Duration
	insecure       bool
}

// NewCatalogScout 创建静态探测器
func NewCatalogScout(site models.SiteConfig, headerProvider models.HeaderProvider, timeout time.Duration, ignoreCertErrors bool) *CatalogScout {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CatalogScout{
		site:           site,
		headerProvider: headerProvider,
		timeout:        timeout,
		insecure:       ignoreCertErrors,
	}
}

// newCollector 创建单次使用的collector
func (cp *CatalogScout) newCollector() *colly.Collector {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(cp.timeout)
	if cp.insecure {
		c.WithTransport(&http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		})
		utils.Debugf("静态探测器: TLS证书验证已禁用")
	}
	return c
}

// List 抓取索引页,按配置的窗口返回子图鉴选项
// 返回的选项没有元素句柄,只用于展示
func (cp *CatalogScout) List(ctx context.Context) ([]models.CatalogOption, error) {
	c := cp.newCollector()

	var (
		options  []models.CatalogOption
		parseErr error
		visitErr error
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if cp.headerProvider != nil {
			headers, err := cp.headerProvider.GetHeaders()
			if err != nil {
				utils.Warnf("获取HTTP头部失败,使用默认头部: %v", err)
			} else {
				for name, values := range headers {
					if len(values) > 0 {
						r.Headers.Set(name, values[0])
					}
				}
			}
		}
		utils.Debugf("访问: %s", r.URL.String())
	})

	c.OnResponse(func(r *colly.Response) {
		body, err := decompressResponse(r.Headers.Get("Content-Encoding"), r.Body)
		if err != nil {
			parseErr = fmt.Errorf("解压响应失败: %w", err)
			return
		}
		options, parseErr = cp.parseOptions(body)
	})

	c.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("请求失败 [%s] (状态码=%d): %w", r.Request.URL, r.StatusCode, err)
	})

	if err := c.Visit(cp.site.BaseURL); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("访问图鉴索引页失败: %w", err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if visitErr != nil {
		return nil, visitErr
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return options, nil
}

// parseOptions 解析HTML并读取窗口内的列表项
func (cp *CatalogScout) parseOptions(body []byte) ([]models.CatalogOption, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}

	items := goquery.NewDocumentFromNode(root).Find(cp.site.CatalogItemSelector)
	if items.Length() == 0 {
		return nil, &models.StructureError{
			What:   "子图鉴列表",
			Detail: fmt.Sprintf("选择器 %q 没有匹配", cp.site.CatalogItemSelector),
		}
	}

	start, end := models.CatalogWindow(cp.site.CatalogRangeStart, cp.site.CatalogRangeEnd, items.Length())
	options := make([]models.CatalogOption, 0, end-start)
	for i := start; i < end; i++ {
		label := strings.TrimSpace(items.Eq(i).Text())
		target, err := models.NormalizeCatalogLabel(label)
		if err != nil {
			return nil, err
		}
		options = append(options, models.CatalogOption{Label: label, Target: target})
	}
	if len(options) == 0 {
		return nil, &models.StructureError{What: "子图鉴列表", Detail: "窗口内没有选项"}
	}
	return options, nil
}

// decompressResponse 根据Content-Encoding头部解压响应体
// 支持 gzip, deflate, br (Brotli) 三种压缩格式
// Colly已经解过gzip时头部仍会保留,此时按魔数判断后原样返回
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip":
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip读取失败: %w", err)
		}
		return decompressed, nil

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		reader := brotli.NewReader(bytes.NewReader(body))
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "", "identity":
		return body, nil

	default:
		// 未知编码,仍然返回原始内容
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}
