package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/XSSdawn/internal/models"
	"github.com/RecoveryAshes/XSSdawn/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

const (
	// DefaultRequestTimeout 单次页面抓取超时
	DefaultRequestTimeout = 10 * time.Second

	// DefaultMaxBodySize 响应体最大字节数 (10MB)
	DefaultMaxBodySize = 10 * 1024 * 1024

	ctxKeyBody        = "xssdawn_body"
	ctxKeyStatus      = "xssdawn_status"
	ctxKeyContentType = "xssdawn_content_type"
)

// ErrNotHTML 响应Content-Type不是HTML
var ErrNotHTML = errors.New("非HTML响应")

// StaticFetcher 基于Colly的同步页面抓取器
//
// 每次Fetch通过独立的colly.Context取回响应体, collector本身不保留页面状态.
// 非2xx状态码、超时与网络错误都以 *models.FetchError 返回.
type StaticFetcher struct {
	collector      *colly.Collector
	headerProvider models.HeaderProvider
}

// NewStaticFetcher 创建页面抓取器
func NewStaticFetcher(config models.CrawlConfig, headerProvider models.HeaderProvider) *StaticFetcher {
	timeout := time.Duration(config.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	maxBodySize := config.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: config.InsecureSkipVerify, // 允许自签名、过期证书的测试目标
			},
		},
		Timeout: timeout,
	}

	// 同步模式; 去重由爬取器的已访问集合负责, 关闭Colly自身的重访检查.
	// Colly默认把203及以上状态码当作错误, 状态码由Fetch自行判断
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(maxBodySize),
		colly.UserAgent(models.DefaultUserAgent),
	)
	c.SetClient(httpClient)
	c.SetRequestTimeout(timeout)

	utils.Debugf("页面抓取器: 超时 %v, 响应体上限 %d bytes, 跳过证书验证=%v",
		timeout, maxBodySize, config.InsecureSkipVerify)

	f := &StaticFetcher{
		collector:      c,
		headerProvider: headerProvider,
	}
	f.setupCallbacks()

	return f
}

// setupCallbacks 设置Colly回调
func (f *StaticFetcher) setupCallbacks() {
	f.collector.OnRequest(func(r *colly.Request) {
		if f.headerProvider == nil {
			return
		}
		headers, err := f.headerProvider.GetHeaders()
		if err != nil {
			utils.Warnf("获取HTTP头部失败: %v", err)
			return
		}
		for name, values := range headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
	})

	f.collector.OnResponse(func(r *colly.Response) {
		body := r.Body
		if encoding := r.Headers.Get("Content-Encoding"); encoding != "" {
			decoded, err := decompressResponse(encoding, r.Body)
			if err != nil {
				// 解压失败仍使用原始body
				utils.Debugf("解压响应失败 [%s] (编码=%s): %v", r.Request.URL, encoding, err)
			} else {
				body = decoded
			}
		}

		r.Ctx.Put(ctxKeyStatus, r.StatusCode)
		r.Ctx.Put(ctxKeyContentType, r.Headers.Get("Content-Type"))
		r.Ctx.Put(ctxKeyBody, body)
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Ctx != nil {
			r.Ctx.Put(ctxKeyStatus, r.StatusCode)
		}
	})
}

// Fetch 同步抓取页面并返回响应体
func (f *StaticFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &models.FetchError{URL: pageURL, Cause: err}
	}

	reqCtx := colly.NewContext()
	if err := f.collector.Request(http.MethodGet, pageURL, nil, reqCtx, nil); err != nil {
		status, _ := reqCtx.GetAny(ctxKeyStatus).(int)
		return nil, &models.FetchError{URL: pageURL, StatusCode: status, Cause: err}
	}

	status, _ := reqCtx.GetAny(ctxKeyStatus).(int)
	if status < 200 || status >= 300 {
		return nil, &models.FetchError{
			URL:        pageURL,
			StatusCode: status,
			Cause:      fmt.Errorf("HTTP %d: %s", status, http.StatusText(status)),
		}
	}
	if contentType, _ := reqCtx.GetAny(ctxKeyContentType).(string); !isHTMLContentType(contentType) {
		return nil, &models.FetchError{
			URL:        pageURL,
			StatusCode: status,
			Cause:      fmt.Errorf("%w: %s", ErrNotHTML, contentType),
		}
	}

	body, ok := reqCtx.GetAny(ctxKeyBody).([]byte)
	if !ok {
		return nil, &models.FetchError{URL: pageURL, StatusCode: status, Cause: errors.New("未收到响应体")}
	}

	return body, nil
}

// isHTMLContentType 未声明Content-Type时按HTML处理
func isHTMLContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "html")
}

// decompressResponse 根据Content-Encoding解压响应体
// Colly已自动处理gzip, 这里只在body仍带gzip魔数时再解一次
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
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "", "identity":
		return body, nil

	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}
