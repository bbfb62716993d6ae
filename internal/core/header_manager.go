package core

import (
	"net/http"
	"sync"

	"github.com/RecoveryAshes/XSSdawn/internal/config"
	"github.com/RecoveryAshes/XSSdawn/internal/models"
	"github.com/RecoveryAshes/XSSdawn/internal/utils"
)

// HeaderManager 管理HTTP请求头部
// 实现 models.HeaderProvider; 爬取、归档查询共用同一个实例
//
// 头部按 默认 < 配置文件 < 命令行 的优先级合并,
// 首次GetHeaders时加载并验证, 之后返回缓存结果的副本.
type HeaderManager struct {
	defaults http.Header
	config   http.Header
	cli      http.Header

	validator    *utils.HeaderValidator
	redactor     *utils.HeaderRedactor
	configLoader *config.HeaderConfigLoader

	mu     sync.Mutex
	merged http.Header
}

// NewHeaderManager 创建头部管理器
// 参数:
//   - headersFile: 头部配置文件路径 (为空则使用 configs/headers.yaml)
//   - cliHeaders: 命令行 -H 传入的 "Name: Value" 列表
//
// 命令行格式错误时立即返回错误, 配置文件延迟到首次GetHeaders时加载
func NewHeaderManager(headersFile string, cliHeaders []string) (*HeaderManager, error) {
	cli := make(http.Header)
	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		cli = parsed
	}

	return &HeaderManager{
		defaults:     getDefaultHeaders(),
		cli:          cli,
		validator:    utils.NewHeaderValidator(),
		redactor:     utils.NewHeaderRedactor(),
		configLoader: config.NewHeaderConfigLoader(headersFile),
	}, nil
}

// getDefaultHeaders 模拟浏览器的默认头部
func getDefaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      []string{models.DefaultUserAgent},
		"Accept":          []string{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": []string{"en-US,en;q=0.9,zh-CN;q=0.8"},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// LoadConfig 加载头部配置文件
func (hm *HeaderManager) LoadConfig() error {
	headerConfig, err := hm.configLoader.LoadConfig()
	if err != nil {
		utils.Errorf("加载HTTP头部配置失败: %v", err)
		return err
	}

	hm.config = make(http.Header, len(headerConfig.Headers))
	for name, value := range headerConfig.Headers {
		hm.config.Set(name, value)
	}

	if len(hm.config) > 0 {
		utils.Debugf("加载%d个HTTP头部配置 [%s]: %s",
			len(hm.config), hm.configLoader.Path(), hm.redactor.RedactToString(hm.config))
	}
	return nil
}

// Validate 依次验证默认、配置文件与命令行头部
func (hm *HeaderManager) Validate() error {
	if err := hm.validator.Validate(hm.defaults); err != nil {
		return err
	}
	if err := hm.validator.Validate(hm.config); err != nil {
		utils.Errorf("配置文件头部验证失败: %v", err)
		return err
	}
	if err := hm.validator.Validate(hm.cli); err != nil {
		utils.Errorf("命令行头部验证失败: %v", err)
		return err
	}
	return nil
}

// GetMergedHeaders 按优先级合并头部 (default < config < cli)
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = values
		}
	}
	return result
}

// GetSafeHeaders 返回脱敏后的合并头部 (用于日志)
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders())
}

// GetHeaders 实现 HeaderProvider 接口
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.merged == nil {
		if err := hm.LoadConfig(); err != nil {
			return nil, err
		}
		if err := hm.Validate(); err != nil {
			return nil, err
		}
		hm.merged = hm.GetMergedHeaders()
		utils.Debugf("请求头部: %s", hm.redactor.RedactToString(hm.merged))
	}

	return hm.merged.Clone(), nil
}
