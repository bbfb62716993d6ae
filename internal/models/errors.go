package models

import (
	"errors"
	"fmt"
)

// ErrInvalidSeed 起始URL不是合法的绝对URL(缺少协议或主机名)
var ErrInvalidSeed = errors.New("无效的起始URL")

// FetchError 单个URL抓取失败
// 包括网络错误、非2xx状态码和超时, 爬取器记录日志后继续处理下一个URL
type FetchError struct {
	// URL 抓取失败的URL
	URL string

	// StatusCode HTTP状态码 (网络错误时为0)
	StatusCode int

	// Cause 底层错误
	Cause error
}

// Error 实现error接口
func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("抓取失败 [%s]: HTTP %d: %v", e.URL, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("抓取失败 [%s]: %v", e.URL, e.Cause)
}

// Unwrap 支持errors.Is / errors.As
func (e *FetchError) Unwrap() error {
	return e.Cause
}
