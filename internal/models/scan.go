package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// ScanStatus 扫描状态
type ScanStatus string

const (
	ScanStatusCompleted ScanStatus = "completed" // 已完成
	ScanStatusPartial   ScanStatus = "partial"   // 被中断, 结果不完整
	ScanStatusFailed    ScanStatus = "failed"    // 失败
)

// 数据源名称
const (
	SourceCrawler     = "crawler"
	SourceArchive     = "wayback"
	SourceParamSpider = "paramspider"
)

// CrawlConfig 爬取配置
type CrawlConfig struct {
	MaxPages             int  `json:"max_pages" mapstructure:"max_pages"`                           // 最大抓取页面数 (默认:100)
	AllowSubdomains      bool `json:"allow_subdomains" mapstructure:"allow_subdomains"`             // 是否允许子域名
	LegacySubdomainMatch bool `json:"legacy_subdomain_match" mapstructure:"legacy_subdomain_match"` // 子域名使用子串匹配(旧行为)
	RequestTimeout       int  `json:"request_timeout" mapstructure:"request_timeout"`               // 单次请求超时(秒) (默认:10)
	MaxBodySize          int  `json:"max_body_size" mapstructure:"max_body_size"`                   // 响应体最大字节数
	InsecureSkipVerify   bool `json:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`     // 跳过TLS证书验证
	ShowProgress         bool `json:"show_progress" mapstructure:"show_progress"`                   // 显示进度条
}

// Validate 验证配置
func (c *CrawlConfig) Validate() error {
	if c.MaxPages < 0 || c.MaxPages > 100000 {
		return fmt.Errorf("最大页面数必须在0-100000之间")
	}
	if c.RequestTimeout < 1 || c.RequestTimeout > 300 {
		return fmt.Errorf("请求超时必须在1-300秒之间")
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("响应体大小限制不能为负数")
	}
	return nil
}

// CrawlStats 爬取统计
type CrawlStats struct {
	VisitedURLs     int     `json:"visited_urls"`     // 已处理URL数(含失败)
	FailedURLs      int     `json:"failed_urls"`      // 抓取失败URL数
	DiscoveredLinks int     `json:"discovered_links"` // 提取到的href总数
	EnqueuedURLs    int     `json:"enqueued_urls"`    // 入队次数(不去重)
	SkippedLinks    int     `json:"skipped_links"`    // 协议/作用域/解析过滤掉的链接
	ParamURLs       int     `json:"param_urls"`       // 带查询参数的URL数
	Duration        float64 `json:"duration"`         // 耗时(秒)
}

// SourceStats 单个数据源的统计
type SourceStats struct {
	Name     string  `json:"name"`
	URLs     int     `json:"urls"`
	Error    string  `json:"error,omitempty"`
	Duration float64 `json:"duration"` // 秒
}

// ScanReport 扫描报告
type ScanReport struct {
	// 任务信息
	ID        string     `json:"id"`
	TargetURL string     `json:"target_url"`
	Host      string     `json:"host"`
	Status    ScanStatus `json:"status"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 统计信息
	Crawl   CrawlStats    `json:"crawl"`
	Sources []SourceStats `json:"sources"`

	// 结果
	MergedURLs   int    `json:"merged_urls"`             // 合并后URL数
	NewURLs      int    `json:"new_urls"`                // 历史扫描中未出现过的URL数
	FilteredURLs int    `json:"filtered_urls,omitempty"` // gf过滤后URL数
	OutputFile   string `json:"output_file"`
	ArjunRan     bool   `json:"arjun_ran"`
	Error        string `json:"error,omitempty"`

	// 配置快照
	Config CrawlConfig `json:"config"`
}

// NewScanReport 创建扫描报告
func NewScanReport(targetURL string, config CrawlConfig) (*ScanReport, error) {
	if err := ValidateURL(targetURL); err != nil {
		return nil, err
	}

	parsed, _ := url.Parse(targetURL)

	return &ScanReport{
		ID:        generateID(),
		TargetURL: targetURL,
		Host:      parsed.Host,
		Status:    ScanStatusCompleted,
		StartTime: time.Now(),
		Sources:   make([]SourceStats, 0, 3),
		Config:    config,
	}, nil
}

// SourceCount 返回指定数据源的URL数
func (r *ScanReport) SourceCount(name string) int {
	for _, s := range r.Sources {
		if s.Name == name {
			return s.URLs
		}
	}
	return 0
}

// ToJSON 序列化为JSON
func (r *ScanReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *ScanReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}
