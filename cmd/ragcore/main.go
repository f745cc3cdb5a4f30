// =============================================================================
// RAG Core 命令行入口
// =============================================================================
// 文档入库与检索问答的命令行工具
//
// 使用方法:
//
//	ragcore ingest --namespace docs file1.txt file2.txt   # 文档入库
//	ragcore query --namespace docs "question"             # 检索问答
//	ragcore version                                       # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sraga-ai/ragcore/config"
	"github.com/sraga-ai/ragcore/rag"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		runIngest(os.Args[2:])
	case "query":
		runQuery(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 📥 ingest 命令
// =============================================================================

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	namespace := fs.String("namespace", "default", "Target namespace")
	fs.Parse(args)

	files := fs.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "ingest: at least one file is required")
		os.Exit(1)
	}

	cfg, logger := mustSetup(*configPath)
	defer logger.Sync()

	ctx := context.Background()
	engine, err := rag.NewEngineFromConfig(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build engine", zap.Error(err))
	}

	total := 0
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Fatal("Failed to read file", zap.String("path", path), zap.Error(err))
		}

		docID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		ids, err := engine.Ingest(ctx, *namespace, rag.Document{
			ID:       docID,
			Text:     string(data),
			Metadata: map[string]any{"source": path},
		})
		if err != nil {
			logger.Fatal("Ingest failed", zap.String("document_id", docID), zap.Error(err))
		}

		fmt.Printf("%s: %d chunks\n", path, len(ids))
		total += len(ids)
	}

	fmt.Printf("Done: %d chunks in namespace %q\n", total, *namespace)
}

// =============================================================================
// 🔍 query 命令
// =============================================================================

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	namespaces := fs.String("namespace", "default", "Comma-separated namespaces")
	k := fs.Int("k", 0, "Number of candidates (0 = config default)")
	showSources := fs.Bool("sources", false, "Print source previews")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "query: question text is required")
		os.Exit(1)
	}
	question := strings.Join(fs.Args(), " ")

	cfg, logger := mustSetup(*configPath)
	defer logger.Sync()

	ctx := context.Background()
	engine, err := rag.NewEngineFromConfig(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build engine", zap.Error(err))
	}

	req := &rag.QueryRequest{
		Query:      question,
		Namespaces: splitNamespaces(*namespaces),
		K:          *k,
		Augment: rag.AugmentOptions{
			Expand:   cfg.Retrieval.ExpansionEnabled,
			Rerank:   cfg.Retrieval.RerankEnabled,
			Compress: cfg.Retrieval.CompressionEnabled,
		},
	}

	var result *rag.QueryResult
	if cfg.Language.TranslationEnabled {
		result, err = engine.QueryWithLanguage(ctx, req)
	} else {
		result, err = engine.Query(ctx, req)
	}
	if err != nil {
		logger.Fatal("Query failed", zap.Error(err))
	}

	fmt.Println(result.Answer)

	if *showSources {
		fmt.Println()
		for i, s := range result.Sources {
			fmt.Printf("[%d] %s (score=%.3f, ns=%s)\n    %s\n",
				i+1, s.ChunkID, s.Score, s.Namespace, s.Preview)
		}
	}
}

func splitNamespaces(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// =============================================================================
// 🔧 配置与日志初始化
// =============================================================================

func mustSetup(configPath string) (*config.Config, *zap.Logger) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	return cfg, initLogger(cfg.Log)
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("ragcore %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`RAG Core - retrieval-augmented generation toolkit

Usage:
  ragcore <command> [options]

Commands:
  ingest    Chunk, embed and store documents
  query     Ask a question against stored documents
  version   Show version information
  help      Show this help message

Options for 'ingest':
  --config <path>       Path to configuration file (YAML)
  --namespace <name>    Target namespace (default "default")

Options for 'query':
  --config <path>       Path to configuration file (YAML)
  --namespace <names>   Comma-separated namespaces (default "default")
  --k <n>               Number of retrieved candidates
  --sources             Print source previews

Examples:
  ragcore ingest --namespace manuals docs/intro.txt docs/setup.txt
  ragcore query --namespace manuals "How do I configure retries?"
  ragcore query --namespace manuals,faq --k 8 --sources "What is chunk overlap?"`)
}
