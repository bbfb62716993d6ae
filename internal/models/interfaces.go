package models

import "context"

// PageFetcher 页面抓取能力
// 实现负责超时控制, 任何失败(网络错误、非2xx、超时)都以error返回
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

// LinkExtractor 从HTML中提取所有<a>标签的非空href(原始值, 未解析)
// 无法解析的HTML返回错误, 调用方按"零链接"处理
type LinkExtractor interface {
	ExtractLinks(body []byte) ([]string, error)
}

// URLSource 外部URL数据源(历史归档、参数挖掘等)
// 结果与爬取结果合并, 数据源之间互不依赖
type URLSource interface {
	// Name 数据源名称(用于日志和报告)
	Name() string

	// Collect 收集目标相关的URL集合
	Collect(ctx context.Context, target string) (URLSet, error)
}
