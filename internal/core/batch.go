package core

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/XSSdawn/internal/config"
	"github.com/RecoveryAshes/XSSdawn/internal/models"
	"github.com/RecoveryAshes/XSSdawn/internal/utils"
)

// BatchScanner 批量扫描器
// 按顺序逐个扫描目标, 每个目标写入独立的输出文件
type BatchScanner struct {
	cfg            *config.Config
	headerProvider models.HeaderProvider
	batchDelay     time.Duration
	continueOnErr  bool
	scannerOpts    []ScannerOption
}

// BatchResult 单个目标的扫描结果
type BatchResult struct {
	URL         string
	Success     bool
	Error       error
	Report      *models.ScanReport
	OutputFile  string
	ProcessedAt time.Time
	Duration    float64
}

// BatchSummary 批量扫描摘要
type BatchSummary struct {
	TotalURLs     int
	SuccessCount  int
	FailCount     int
	TotalFound    int // 各目标合并URL数之和
	TotalDuration float64
	Results       []BatchResult
}

// NewBatchScanner 创建批量扫描器
// scannerOpts 应用到每个目标的Scanner上(输出文件除外)
func NewBatchScanner(cfg *config.Config, headerProvider models.HeaderProvider, batchDelay int, continueOnErr bool, scannerOpts ...ScannerOption) *BatchScanner {
	return &BatchScanner{
		cfg:            cfg,
		headerProvider: headerProvider,
		batchDelay:     time.Duration(batchDelay) * time.Second,
		continueOnErr:  continueOnErr,
		scannerOpts:    scannerOpts,
	}
}

// BatchOutputFile 目标的输出文件: <stem>_<host><ext>
//
//	BatchOutputFile("out/merged_urls.txt", "https://a.com:8080/") == "out/merged_urls_a.com_8080.txt"
func BatchOutputFile(base, target string) string {
	host := target
	if u, err := url.Parse(target); err == nil && u.Host != "" {
		host = u.Host
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return stem + "_" + utils.SanitizeFilename(host) + ext
}

// ScanBatch 批量扫描目标列表
// ctx被取消时停止处理剩余目标, 返回已有结果的摘要和ctx.Err()
func (bs *BatchScanner) ScanBatch(ctx context.Context, targets []string) (*BatchSummary, error) {
	utils.Infof("🚀 开始批量扫描: %d个目标", len(targets))

	summary := &BatchSummary{
		TotalURLs: len(targets),
		Results:   make([]BatchResult, 0, len(targets)),
	}
	startTime := time.Now()

	var runErr error
	for i, target := range targets {
		utils.Infof("==================== [%d/%d] ====================", i+1, len(targets))

		result := bs.scanSingle(ctx, target)
		summary.Results = append(summary.Results, result)

		if result.Report != nil {
			summary.TotalFound += result.Report.MergedURLs
		}

		if result.Success {
			summary.SuccessCount++
		} else {
			summary.FailCount++
			utils.Errorf("❌ 扫描失败 [%s]: %v", target, result.Error)

			if !bs.continueOnErr {
				utils.Warn("批量扫描中止 (--continue-on-error=false)")
				break
			}
		}

		if ctx.Err() != nil {
			runErr = ctx.Err()
			utils.Warnf("批量扫描被中断, 剩余 %d 个目标未处理", len(targets)-i-1)
			break
		}

		// 最后一个目标不需要延迟
		if i < len(targets)-1 && bs.batchDelay > 0 {
			utils.Debugf("等待 %.0f 秒后处理下一个目标...", bs.batchDelay.Seconds())
			select {
			case <-ctx.Done():
				runErr = ctx.Err()
			case <-time.After(bs.batchDelay):
			}
			if runErr != nil {
				utils.Warnf("批量扫描被中断, 剩余 %d 个目标未处理", len(targets)-i-1)
				break
			}
		}
	}

	summary.TotalDuration = time.Since(startTime).Seconds()
	bs.printSummary(summary)

	return summary, runErr
}

// scanSingle 扫描单个目标
func (bs *BatchScanner) scanSingle(ctx context.Context, target string) BatchResult {
	outputFile := BatchOutputFile(bs.cfg.Output.File, target)
	result := BatchResult{
		URL:         target,
		OutputFile:  outputFile,
		ProcessedAt: time.Now(),
	}
	startTime := time.Now()

	opts := append(append([]ScannerOption{}, bs.scannerOpts...), WithOutputFile(outputFile))
	scanner, err := NewScanner(target, bs.cfg, bs.headerProvider, opts...)
	if err != nil {
		result.Error = fmt.Errorf("创建扫描器失败: %w", err)
		result.Duration = time.Since(startTime).Seconds()
		return result
	}

	report, err := scanner.Run(ctx)
	result.Report = report
	result.Duration = time.Since(startTime).Seconds()
	if err != nil {
		result.Error = err
		return result
	}

	result.Success = true
	return result
}

// printSummary 打印批量扫描摘要
func (bs *BatchScanner) printSummary(summary *BatchSummary) {
	utils.Info("==================================================")
	utils.Info("📊 批量扫描摘要")
	utils.Info("==================================================")
	utils.Infof("总目标数: %d", summary.TotalURLs)
	utils.Infof("✅ 成功: %d", summary.SuccessCount)
	utils.Infof("❌ 失败: %d", summary.FailCount)
	utils.Infof("🔗 合并URL总数: %d", summary.TotalFound)
	utils.Infof("⏱️  总耗时: %.2f秒", summary.TotalDuration)
	utils.Info("==================================================")

	if summary.FailCount > 0 {
		utils.Warn("失败的目标:")
		for _, result := range summary.Results {
			if !result.Success {
				utils.Warnf("  - %s: %v", result.URL, result.Error)
			}
		}
	}
}
