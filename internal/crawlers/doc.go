// Package crawlers 提供参数URL爬取功能
//
// # 概述
//
// crawlers包实现了一个单线程、广度优先的站内爬取器, 从起始URL出发沿<a href>遍历,
// 收集所有带查询字符串的URL, 作为后续XSS测试的候选输入.
//
// # 核心组件
//
// ## ParamCrawler
//
// 持有一次爬取的队列(frontier)、已访问集合与结果集合. 抓取与解析能力通过接口注入:
//
//	fetcher := NewStaticFetcher(config, headerProvider)
//	crawler := NewParamCrawler(fetcher, NewAnchorExtractor())
//	urls, err := crawler.Crawl(ctx, "https://example.com", false, 100)
//
// 处理流程:
//  1. 队列出队, 已访问则跳过
//  2. 标记已访问并抓取(失败只记录日志)
//  3. 提取href, 相对当前页面解析为绝对URL
//  4. 过滤非http(s)协议与作用域外主机
//  5. 未访问的URL入队(队列本身不去重, 出队时去重)
//  6. URL字符串包含 "?" 则加入结果集合
//
// 终止条件: 队列为空, 或已访问数达到maxPages.
//
// ## ScopePolicy (作用域)
//
//   - exact: 主机与起始主机完全相同
//   - subdomain: 主机等于起始主机或以 "."+起始主机 结尾
//   - contains: 主机包含起始主机子串 (兼容旧版本, 需显式开启)
//
// ## StaticFetcher
//
// 基于Colly的同步抓取器. 每次请求有固定超时, 支持自定义请求头(HeaderProvider),
// 自动解压 gzip/deflate/br 响应, 非HTML响应视为抓取失败.
//
// ## AnchorExtractor
//
// 基于goquery提取所有存在且非空的href属性.
//
// # 错误处理
//
// 单个URL的网络错误、非2xx状态码、超时、非HTML响应和HTML解析失败都不会中断爬取,
// 只有不合法的起始URL会返回 models.ErrInvalidSeed.
package crawlers
