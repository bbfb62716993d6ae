package models

import "sort"

// URLSet URL集合(无序, 去重)
// 爬取结果、各数据源结果及合并结果统一使用该类型
type URLSet map[string]struct{}

// NewURLSet 创建URL集合
func NewURLSet(urls ...string) URLSet {
	s := make(URLSet, len(urls))
	for _, u := range urls {
		s.Add(u)
	}
	return s
}

// Add 添加URL, 返回是否为新元素
func (s URLSet) Add(u string) bool {
	if _, exists := s[u]; exists {
		return false
	}
	s[u] = struct{}{}
	return true
}

// Has 检查URL是否存在
func (s URLSet) Has(u string) bool {
	_, exists := s[u]
	return exists
}

// Len 集合大小
func (s URLSet) Len() int {
	return len(s)
}

// Merge 将other中的所有URL并入当前集合, 返回新增数量
func (s URLSet) Merge(other URLSet) int {
	added := 0
	for u := range other {
		if s.Add(u) {
			added++
		}
	}
	return added
}

// Union 返回多个集合的并集(不修改输入)
func Union(sets ...URLSet) URLSet {
	result := make(URLSet)
	for _, set := range sets {
		result.Merge(set)
	}
	return result
}

// Sorted 返回排序后的URL列表
// 集合本身无顺序, 排序仅用于输出稳定
func (s URLSet) Sorted() []string {
	urls := make([]string, 0, len(s))
	for u := range s {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}
