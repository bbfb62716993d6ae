package crawlers

import "strings"

// ScopeMode 作用域判定方式
type ScopeMode int

const (
	// ScopeExactHost 主机必须与起始URL主机完全相同
	ScopeExactHost ScopeMode = iota

	// ScopeSubdomain 主机等于起始主机, 或以 "."+起始主机 结尾(按域名标签边界匹配)
	ScopeSubdomain

	// ScopeContains 主机包含起始主机子串即可
	// 会误判 notexample.com.evil.org 之类的主机, 仅为兼容旧版行为保留
	ScopeContains
)

// String 返回模式名称(用于日志)
func (m ScopeMode) String() string {
	switch m {
	case ScopeExactHost:
		return "exact"
	case ScopeSubdomain:
		return "subdomain"
	case ScopeContains:
		return "contains"
	default:
		return "unknown"
	}
}

// ScopePolicy 作用域判定
// 纯函数: 只依赖候选主机、起始主机与模式, 无可变状态
//
// 主机比较使用URL的authority(包含端口), 区分大小写,
// 不做默认端口或末尾点号的规范化
type ScopePolicy struct {
	seedHost string
	mode     ScopeMode
}

// NewScopePolicy 根据爬取选项创建作用域判定
//   - allowSubdomains=false: 精确匹配
//   - allowSubdomains=true: 标签边界后缀匹配; legacyContains=true 时退化为子串匹配
func NewScopePolicy(seedHost string, allowSubdomains bool, legacyContains bool) ScopePolicy {
	mode := ScopeExactHost
	if allowSubdomains {
		mode = ScopeSubdomain
		if legacyContains {
			mode = ScopeContains
		}
	}
	return ScopePolicy{seedHost: seedHost, mode: mode}
}

// Mode 返回判定模式
func (p ScopePolicy) Mode() ScopeMode {
	return p.mode
}

// InScope 判断候选主机是否在作用域内
func (p ScopePolicy) InScope(host string) bool {
	if host == "" {
		return false
	}

	switch p.mode {
	case ScopeSubdomain:
		return host == p.seedHost || strings.HasSuffix(host, "."+p.seedHost)
	case ScopeContains:
		return strings.Contains(host, p.seedHost)
	default:
		return host == p.seedHost
	}
}
