package crawlers

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// AnchorExtractor 基于goquery的<a href>提取器
// 只返回原始href(去除首尾空白), 解析与过滤由爬取器负责
type AnchorExtractor struct{}

// NewAnchorExtractor 创建链接提取器
func NewAnchorExtractor() *AnchorExtractor {
	return &AnchorExtractor{}
}

// ExtractLinks 提取页面中所有存在且非空的href属性
func (e *AnchorExtractor) ExtractLinks(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}

	links := make([]string, 0)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists {
			return
		}
		// HTML规范: URL属性值去除首尾ASCII空白
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		links = append(links, href)
	})

	return links, nil
}
