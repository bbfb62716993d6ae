package sources

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/RecoveryAshes/XSSdawn/internal/models"
	"github.com/RecoveryAshes/XSSdawn/internal/utils"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/publicsuffix"
)

const (
	defaultCDXTimeout = 60 * time.Second

	// CDX单页响应可能很大, 不沿用页面抓取的10MB上限
	cdxMaxBodySize = 64 * 1024 * 1024

	ctxKeyCDXBody = "cdx_body"
)

// cdxClient Wayback CDX Server API客户端
// 每次查询使用独立的colly.Context取回文本响应
type cdxClient struct {
	collector *colly.Collector
	endpoint  string
}

func newCDXClient(endpoint string, timeoutSec int, headers models.HeaderProvider) *cdxClient {
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultCDXTimeout
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cdxMaxBodySize),
		colly.UserAgent(models.DefaultUserAgent),
	)
	c.SetClient(&http.Client{
		Transport: &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{},
		},
		Timeout: timeout,
	})
	c.SetRequestTimeout(timeout)

	c.OnRequest(func(r *colly.Request) {
		if headers == nil {
			return
		}
		h, err := headers.GetHeaders()
		if err != nil {
			return
		}
		// 只转发UA, 目标站点的认证头部不应发给第三方归档服务
		if ua := h.Get("User-Agent"); ua != "" {
			r.Headers.Set("User-Agent", ua)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxKeyCDXBody, r.Body)
	})

	return &cdxClient{collector: c, endpoint: endpoint}
}

// cdxPage 一页CDX查询结果
type cdxPage struct {
	urls      []string
	resumeKey string
}

// query 执行一次CDX查询
func (c *cdxClient) query(ctx context.Context, params url.Values) (*cdxPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	requestURL := c.endpoint + "?" + params.Encode()
	utils.Debugf("CDX查询: %s", requestURL)

	reqCtx := colly.NewContext()
	if err := c.collector.Request(http.MethodGet, requestURL, nil, reqCtx, nil); err != nil {
		return nil, fmt.Errorf("CDX请求失败: %w", err)
	}

	body, _ := reqCtx.GetAny(ctxKeyCDXBody).([]byte)
	return parseCDXText(body), nil
}

// parseCDXText 解析 output=text 的CDX响应
// showResumeKey=true 时结果之后是一个空行, 再跟一行恢复键
func parseCDXText(body []byte) *cdxPage {
	page := &cdxPage{}
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	afterBlank := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			afterBlank = true
			continue
		}
		if afterBlank {
			page.resumeKey = line
			continue
		}
		page.urls = append(page.urls, line)
	}
	return page
}

// targetHost 从目标(URL或裸域名)中提取主机名(不含端口)
func targetHost(target string) string {
	target = strings.TrimSpace(target)
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		return u.Hostname()
	}
	// 裸域名: example.com 或 example.com/path
	host, _, _ := strings.Cut(target, "/")
	if h, _, ok := strings.Cut(host, ":"); ok {
		return h
	}
	return host
}

// registrableDomain 返回主机的可注册域名(eTLD+1), 无法判断时返回原主机
func registrableDomain(host string) string {
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// cdxURLPattern 构造CDX的url参数
func cdxURLPattern(host string, includeSubdomains bool) string {
	if includeSubdomains {
		return "*." + host + "/*"
	}
	return host + "/*"
}
