// Package filters 提供合并结果的二次筛选.
//
// GFFilter 读取gf格式的模式目录(默认 ~/.gf), 保留至少命中一个模式的URL,
// 用于从大量归档URL中挑出可能存在XSS/SQLi/SSRF等问题的参数.
package filters

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/RecoveryAshes/XSSdawn/internal/models"
	"github.com/RecoveryAshes/XSSdawn/internal/utils"
)

// ErrNoPatterns 目录中没有可用的模式
var ErrNoPatterns = errors.New("没有可用的gf模式")

// gfPatternFile gf的JSON模式文件
// pattern 与 patterns 二选一, 后者按 "|" 合并
type gfPatternFile struct {
	Flags    string   `json:"flags"`
	Pattern  string   `json:"pattern"`
	Patterns []string `json:"patterns"`
}

// Pattern 编译后的单个模式
type Pattern struct {
	Name   string
	Invert bool // grep -v
	expr   *regexp.Regexp
}

// Match 判断一行是否命中
func (p *Pattern) Match(line string) bool {
	return p.expr.MatchString(line) != p.Invert
}

// GFFilter gf模式过滤器
type GFFilter struct {
	patterns []*Pattern
}

// LoadGFFilter 从目录加载模式
//
// 支持 *.json (gf格式) 与 *.txt (每行一个正则, #开头为注释).
// only 非空时只加载名称(不含扩展名)在列表中的模式.
// 无法编译的正则(如RE2不支持的环视)记录警告后跳过.
func LoadGFFilter(dir string, only []string) (*GFFilter, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("读取gf模式目录失败 [%s]: %w", dir, err)
	}

	wanted := make(map[string]bool, len(only))
	for _, name := range only {
		wanted[strings.TrimSpace(name)] = true
	}

	filter := &GFFilter{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".json" && ext != ".txt" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		if len(wanted) > 0 && !wanted[name] {
			continue
		}

		pattern, err := loadPattern(filepath.Join(dir, entry.Name()), name, ext)
		if err != nil {
			utils.Warnf("跳过gf模式 [%s]: %v", entry.Name(), err)
			continue
		}
		filter.patterns = append(filter.patterns, pattern)
	}

	if len(filter.patterns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPatterns, dir)
	}

	utils.Infof("加载了 %d 个gf模式: %s", len(filter.patterns), strings.Join(filter.Names(), ", "))
	return filter, nil
}

func loadPattern(path, name, ext string) (*Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var def gfPatternFile
	if ext == ".json" {
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("解析JSON失败: %w", err)
		}
	} else {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			def.Patterns = append(def.Patterns, line)
		}
	}

	expr := def.Pattern
	if expr == "" {
		if len(def.Patterns) == 0 {
			return nil, fmt.Errorf("模式为空")
		}
		expr = "(" + strings.Join(def.Patterns, "|") + ")"
	}

	pattern := &Pattern{Name: name}
	for _, flag := range strings.Fields(def.Flags) {
		flag = strings.TrimLeft(flag, "-")
		if strings.ContainsRune(flag, 'i') {
			expr = "(?i)" + expr
		}
		if strings.ContainsRune(flag, 'v') {
			pattern.Invert = true
		}
	}

	compiled, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("正则编译失败: %w", err)
	}
	pattern.expr = compiled
	return pattern, nil
}

// Names 已加载的模式名称(排序)
func (f *GFFilter) Names() []string {
	names := make([]string, 0, len(f.patterns))
	for _, p := range f.patterns {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// Filter 返回至少命中一个模式的行
func (f *GFFilter) Filter(lines []string) models.URLSet {
	result := models.NewURLSet()
	hits := make(map[string]int, len(f.patterns))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, p := range f.patterns {
			if p.Match(line) {
				hits[p.Name]++
				result.Add(line)
			}
		}
	}

	for _, name := range f.Names() {
		if hits[name] == 0 {
			utils.Debugf("gf模式 %s 没有命中", name)
			continue
		}
		utils.Debugf("gf模式 %s 命中 %d 行", name, hits[name])
	}
	utils.Infof("🔎 gf过滤: %d 行中保留 %d 个URL", len(lines), result.Len())
	return result
}
