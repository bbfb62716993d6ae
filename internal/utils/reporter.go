package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/RecoveryAshes/XSSdawn/internal/models"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/schollz/progressbar/v3"
)

const (
	// JSONReportFile JSON报告文件名
	JSONReportFile = "scan_report.json"

	// MarkdownReportFile Markdown报告文件名
	MarkdownReportFile = "scan_report.md"
)

// Reporter 报告生成器
// 报告写入 <reportDir>/<host>/ 下, 同一目标的多次扫描覆盖前一次
type Reporter struct {
	reportDir string
}

// NewReporter 创建报告生成器
func NewReporter(reportDir string) *Reporter {
	return &Reporter{reportDir: reportDir}
}

// ReportPath 返回目标主机的报告目录
func (r *Reporter) ReportPath(host string) string {
	return filepath.Join(r.reportDir, SanitizeFilename(host))
}

// GenerateReport 生成JSON与Markdown报告, 返回报告目录
func (r *Reporter) GenerateReport(report *models.ScanReport) (string, error) {
	reportsDir := r.ReportPath(report.Host)
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	if err := r.saveJSONReport(reportsDir, JSONReportFile, report); err != nil {
		return "", err
	}

	mdPath := filepath.Join(reportsDir, MarkdownReportFile)
	f, err := os.Create(mdPath)
	if err != nil {
		return "", fmt.Errorf("创建Markdown报告失败: %w", err)
	}
	defer f.Close()

	if err := WriteMarkdownReport(f, report); err != nil {
		return "", fmt.Errorf("写入Markdown报告失败: %w", err)
	}

	Infof("✅ 报告已生成: %s", reportsDir)
	return reportsDir, nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(dir string, filename string, data interface{}) error {
	path := filepath.Join(dir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return nil
}

// WriteMarkdownReport 输出Markdown格式的扫描报告
func WriteMarkdownReport(w io.Writer, report *models.ScanReport) error {
	md := markdown.NewMarkdown(w)

	md.H1("XSSdawn 扫描报告")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"项目", "值"},
		Rows: [][]string{
			{"扫描ID", "`" + report.ID + "`"},
			{"目标", "`" + report.TargetURL + "`"},
			{"开始时间", report.StartTime.Format("2006-01-02 15:04:05 MST")},
			{"耗时", fmt.Sprintf("%.2f秒", report.Duration)},
			{"状态", statusText(report)},
			{"输出文件", "`" + report.OutputFile + "`"},
		},
	})
	md.PlainText("")

	md.H2("URL来源")
	md.PlainText("")
	rows := make([][]string, 0, len(report.Sources)+2)
	for _, s := range report.Sources {
		errText := "-"
		if s.Error != "" {
			errText = s.Error
		}
		rows = append(rows, []string{s.Name, strconv.Itoa(s.URLs), fmt.Sprintf("%.2f秒", s.Duration), errText})
	}
	rows = append(rows, []string{"**合并**", "**" + strconv.Itoa(report.MergedURLs) + "**", "", ""})
	md.Table(markdown.TableSet{
		Header: []string{"来源", "URL数", "耗时", "错误"},
		Rows:   rows,
	})
	md.PlainText("")
	writeSourceChart(md, report)

	md.H2("爬取统计")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"指标", "数值"},
		Rows: [][]string{
			{"已访问页面", strconv.Itoa(report.Crawl.VisitedURLs)},
			{"抓取失败", strconv.Itoa(report.Crawl.FailedURLs)},
			{"提取链接", strconv.Itoa(report.Crawl.DiscoveredLinks)},
			{"过滤链接", strconv.Itoa(report.Crawl.SkippedLinks)},
			{"参数URL", strconv.Itoa(report.Crawl.ParamURLs)},
		},
	})
	md.PlainText("")

	md.H2("配置")
	md.PlainText("")
	md.BulletList(
		"最大页面数: "+strconv.Itoa(report.Config.MaxPages),
		"允许子域名: "+strconv.FormatBool(report.Config.AllowSubdomains),
		"子串匹配作用域: "+strconv.FormatBool(report.Config.LegacySubdomainMatch),
		"请求超时: "+strconv.Itoa(report.Config.RequestTimeout)+"秒",
	)
	md.PlainText("")

	switch {
	case report.Status == models.ScanStatusFailed:
		md.Cautionf("扫描失败: %s", report.Error)
	case report.Status == models.ScanStatusPartial:
		md.Warningf("扫描被中断, 已访问 %d 个页面, 结果不完整.", report.Crawl.VisitedURLs)
	case report.FilteredURLs > 0:
		md.Note(fmt.Sprintf("gf过滤后保留 %d 个URL.", report.FilteredURLs))
	case report.MergedURLs == 0:
		md.Note("没有发现任何URL.")
	default:
		md.Tip(fmt.Sprintf("本次共发现 %d 个URL, 其中 %d 个为新增.", report.MergedURLs, report.NewURLs))
	}
	md.PlainText("")

	return md.Build()
}

// writeSourceChart 各来源URL数量的饼图
func writeSourceChart(md *markdown.Markdown, report *models.ScanReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("URL来源分布"),
		piechart.WithShowData(true),
	)

	hasData := false
	for _, s := range report.Sources {
		if s.URLs > 0 {
			chart.LabelAndIntValue(s.Name, uint64(s.URLs))
			hasData = true
		}
	}
	if !hasData {
		return
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func statusText(report *models.ScanReport) string {
	switch report.Status {
	case models.ScanStatusPartial:
		return "⚠️ 已中断 (部分结果)"
	case models.ScanStatusFailed:
		return "❌ 失败"
	default:
		return "✅ 完成"
	}
}

// SanitizeFilename 将主机名转换为可用作目录名的字符串
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(":", "_", "/", "_", "\\", "_", "*", "_", "?", "_")
	name = replacer.Replace(name)
	if name == "" {
		return "unknown"
	}
	return name
}

// NewProgressBar 创建进度条
// 输出到stderr, 不干扰stdout上的URL结果
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
