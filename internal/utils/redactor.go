package utils

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

var (
	// SensitiveKeywords 敏感名称关键字, 用于头部与查询参数脱敏
	SensitiveKeywords = []string{
		"authorization",
		"cookie",
		"token",
		"key",
		"secret",
		"password",
		"passwd",
		"credential",
		"session",
	}
)

const redactedMark = "***"

// HeaderRedactor 日志脱敏器
// 自定义头部经常携带授权凭据, 参数URL的查询串里也常有token,
// 写日志和报告前都要经过这里
type HeaderRedactor struct {
	sensitiveKeywords []string
}

// NewHeaderRedactor 创建脱敏器
func NewHeaderRedactor() *HeaderRedactor {
	return &HeaderRedactor{
		sensitiveKeywords: SensitiveKeywords,
	}
}

// IsSensitiveHeader 按名称关键字判断是否敏感(头部名或参数名)
func (hr *HeaderRedactor) IsSensitiveHeader(name string) bool {
	nameLower := strings.ToLower(name)
	for _, keyword := range hr.sensitiveKeywords {
		if strings.Contains(nameLower, keyword) {
			return true
		}
	}
	return false
}

// RedactHeaderValue 脱敏单个值
func (hr *HeaderRedactor) RedactHeaderValue(name, value string) string {
	if !hr.IsSensitiveHeader(name) {
		return value
	}

	// Bearer/Basic 等认证方案只保留方案名
	if scheme, _, ok := strings.Cut(value, " "); ok && (scheme == "Bearer" || scheme == "Basic") {
		return scheme + " " + redactedMark
	}

	if len(value) > 8 {
		return value[:4] + redactedMark + value[len(value)-4:]
	}
	return redactedMark
}

// Redact 脱敏整个http.Header,返回可安全写入日志的map
func (hr *HeaderRedactor) Redact(headers http.Header) map[string]string {
	result := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		result[name] = hr.RedactHeaderValue(name, values[0])
	}
	return result
}

// RedactToString 脱敏后按头部名称排序输出 "Name: value, ..."
func (hr *HeaderRedactor) RedactToString(headers http.Header) string {
	redacted := hr.Redact(headers)
	names := make([]string, 0, len(redacted))
	for name := range redacted {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+redacted[name])
	}
	return strings.Join(parts, ", ")
}

// RedactURL 脱敏URL中敏感查询参数的值(参数名保留)
// 无法解析的URL原样返回
func (hr *HeaderRedactor) RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return rawURL
	}

	changed := false
	pairs := strings.Split(u.RawQuery, "&")
	for i, pair := range pairs {
		name, _, hasValue := strings.Cut(pair, "=")
		if !hasValue {
			continue
		}
		decoded, err := url.QueryUnescape(name)
		if err != nil {
			decoded = name
		}
		if hr.IsSensitiveHeader(decoded) {
			pairs[i] = name + "=" + redactedMark
			changed = true
		}
	}
	if !changed {
		return rawURL
	}

	u.RawQuery = strings.Join(pairs, "&")
	return u.String()
}
