package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/XSSdawn/internal/models"
	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Crawl       models.CrawlConfig `mapstructure:"crawl"`
	Sources     SourcesConfig      `mapstructure:"sources"`
	Filters     FiltersConfig      `mapstructure:"filters"`
	Tools       ToolsConfig        `mapstructure:"tools"`
	Output      OutputConfig       `mapstructure:"output"`
	Storage     StorageConfig      `mapstructure:"storage"`
	Logging     LoggingConfig      `mapstructure:"logging"`
	HeadersFile string             `mapstructure:"headers_file"`
}

// SourcesConfig 外部URL数据源配置
type SourcesConfig struct {
	Archive     ArchiveConfig     `mapstructure:"archive"`
	ParamSpider ParamSpiderConfig `mapstructure:"paramspider"`
}

// ArchiveConfig 历史归档(Wayback CDX)配置
type ArchiveConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Endpoint          string `mapstructure:"endpoint"`
	Timeout           int    `mapstructure:"timeout"`   // 单次请求超时(秒)
	Limit             int    `mapstructure:"limit"`     // 每页条数
	MaxPages          int    `mapstructure:"max_pages"` // 最多翻页次数
	IncludeSubdomains bool   `mapstructure:"include_subdomains"`
	// RegistrableDomain 子域名查询以可注册域名(eTLD+1)为锚点
	RegistrableDomain bool `mapstructure:"registrable_domain"`
}

// ParamSpiderConfig 参数挖掘配置
type ParamSpiderConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	Endpoint          string   `mapstructure:"endpoint"`
	Timeout           int      `mapstructure:"timeout"`
	Placeholder       string   `mapstructure:"placeholder"`
	IncludeSubdomains bool     `mapstructure:"include_subdomains"`
	ExcludeExtensions []string `mapstructure:"exclude_extensions"`
}

// FiltersConfig 过滤配置
type FiltersConfig struct {
	GF GFConfig `mapstructure:"gf"`
}

// GFConfig gf模式过滤配置
type GFConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	PatternsDir string   `mapstructure:"patterns_dir"`
	Patterns    []string `mapstructure:"patterns"` // 只使用这些模式, 为空时使用目录下全部
}

// ToolsConfig 外部工具配置
type ToolsConfig struct {
	Arjun ArjunConfig `mapstructure:"arjun"`
}

// ArjunConfig Arjun隐藏参数扫描配置
// Args中的 {target} 会被替换为目标URL
type ArjunConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	Timeout int      `mapstructure:"timeout"` // 秒
}

// OutputConfig 输出配置
type OutputConfig struct {
	File      string `mapstructure:"file"`
	ReportDir string `mapstructure:"report_dir"`
}

// StorageConfig 扫描历史存储配置
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// DefaultGFPatternsDir gf默认模式目录 (~/.gf)
func DefaultGFPatternsDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".gf")
	}
	return ".gf"
}

// DefaultStorageDir 扫描历史默认目录 ($XDG_DATA_HOME/xssdawn)
func DefaultStorageDir() string {
	return filepath.Join(xdg.DataHome, "xssdawn")
}

// LoadConfig 加载配置文件
// configPath为空时依次搜索 ./configs、当前目录、~/.xssdawn 下的 config.yaml,
// 找不到时使用默认值. 环境变量 XSSDAWN_<SECTION>_<KEY> 覆盖配置文件.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".xssdawn"))
		}
	}

	v.SetEnvPrefix("XSSDAWN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: fmt.Errorf("读取配置文件失败: %w", err)}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 配置文件中显式写空字符串时仍使用默认目录
	if config.Filters.GF.PatternsDir == "" {
		config.Filters.GF.PatternsDir = DefaultGFPatternsDir()
	}
	if config.Storage.Dir == "" {
		config.Storage.Dir = DefaultStorageDir()
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.max_pages", 100)
	v.SetDefault("crawl.allow_subdomains", false)
	v.SetDefault("crawl.legacy_subdomain_match", false)
	v.SetDefault("crawl.request_timeout", 10)
	v.SetDefault("crawl.max_body_size", 10*1024*1024)
	v.SetDefault("crawl.insecure_skip_verify", true)
	v.SetDefault("crawl.show_progress", true)

	v.SetDefault("sources.archive.enabled", true)
	v.SetDefault("sources.archive.endpoint", "https://web.archive.org/cdx/search/cdx")
	v.SetDefault("sources.archive.timeout", 60)
	v.SetDefault("sources.archive.limit", 10000)
	v.SetDefault("sources.archive.max_pages", 5)
	v.SetDefault("sources.archive.include_subdomains", true)
	v.SetDefault("sources.archive.registrable_domain", false)

	v.SetDefault("sources.paramspider.enabled", true)
	v.SetDefault("sources.paramspider.endpoint", "https://web.archive.org/cdx/search/cdx")
	v.SetDefault("sources.paramspider.timeout", 60)
	v.SetDefault("sources.paramspider.placeholder", "FUZZ")
	v.SetDefault("sources.paramspider.include_subdomains", false)
	v.SetDefault("sources.paramspider.exclude_extensions", []string{
		".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp", ".bmp",
		".css", ".js", ".woff", ".woff2", ".ttf", ".eot", ".otf",
		".pdf", ".txt", ".mp3", ".mp4", ".avi", ".zip",
	})

	v.SetDefault("filters.gf.enabled", false)
	v.SetDefault("filters.gf.patterns_dir", DefaultGFPatternsDir())
	v.SetDefault("filters.gf.patterns", []string{})

	v.SetDefault("tools.arjun.enabled", false)
	v.SetDefault("tools.arjun.command", "python3")
	v.SetDefault("tools.arjun.args", []string{"-m", "arjun", "-u", "{target}"})
	v.SetDefault("tools.arjun.timeout", 600)

	v.SetDefault("output.file", "merged_urls.txt")
	v.SetDefault("output.report_dir", "reports")

	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.dir", DefaultStorageDir())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("headers_file", DefaultHeadersFile)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.Crawl.Validate(); err != nil {
		return fmt.Errorf("crawl配置无效: %w", err)
	}
	if c.Sources.Archive.Enabled {
		if c.Sources.Archive.Endpoint == "" {
			return fmt.Errorf("sources.archive.endpoint 不能为空")
		}
		if c.Sources.Archive.Limit <= 0 || c.Sources.Archive.MaxPages <= 0 {
			return fmt.Errorf("sources.archive.limit 与 max_pages 必须大于0")
		}
	}
	if c.Sources.ParamSpider.Enabled && c.Sources.ParamSpider.Endpoint == "" {
		return fmt.Errorf("sources.paramspider.endpoint 不能为空")
	}
	if c.Tools.Arjun.Enabled && c.Tools.Arjun.Command == "" {
		return fmt.Errorf("tools.arjun.command 不能为空")
	}
	if c.Output.File == "" {
		return fmt.Errorf("output.file 不能为空")
	}
	return nil
}

// GetCrawlConfig 从配置中提取爬取配置
func (c *Config) GetCrawlConfig() models.CrawlConfig {
	return c.Crawl
}

// CLIOverrides 命令行参数覆盖项
// 指针字段为nil表示用户未显式指定, 保留配置文件中的值
type CLIOverrides struct {
	MaxPages             *int
	AllowSubdomains      *bool
	LegacySubdomainMatch *bool
	RequestTimeout       *int
	OutputFile           *string
	GF                   *bool
	GFPatternsDir        *string
	Arjun                *bool
	NoArchive            bool
	NoParamSpider        bool
	StorageDir           *string
	NoProgress           bool
}

// MergeCLIFlags 合并命令行参数到配置(命令行优先)
func (c *Config) MergeCLIFlags(o CLIOverrides) {
	if o.MaxPages != nil {
		c.Crawl.MaxPages = *o.MaxPages
	}
	if o.AllowSubdomains != nil {
		c.Crawl.AllowSubdomains = *o.AllowSubdomains
	}
	if o.LegacySubdomainMatch != nil {
		c.Crawl.LegacySubdomainMatch = *o.LegacySubdomainMatch
	}
	if o.RequestTimeout != nil {
		c.Crawl.RequestTimeout = *o.RequestTimeout
	}
	if o.OutputFile != nil {
		c.Output.File = *o.OutputFile
	}
	if o.GF != nil {
		c.Filters.GF.Enabled = *o.GF
	}
	if o.GFPatternsDir != nil {
		c.Filters.GF.PatternsDir = *o.GFPatternsDir
	}
	if o.Arjun != nil {
		c.Tools.Arjun.Enabled = *o.Arjun
	}
	if o.NoArchive {
		c.Sources.Archive.Enabled = false
	}
	if o.NoParamSpider {
		c.Sources.ParamSpider.Enabled = false
	}
	if o.StorageDir != nil {
		c.Storage.Enabled = true
		c.Storage.Dir = *o.StorageDir
	}
	if o.NoProgress {
		c.Crawl.ShowProgress = false
	}
}
