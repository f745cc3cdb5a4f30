package language

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"
	"go.uber.org/zap"
)

// AdapterConfig 配置语言适配器.
type AdapterConfig struct {
	// Default 默认语言（ISO 639-1 小写）.
	Default string
	// Supported 支持的语言列表；为空时使用内置默认集.
	Supported []string
	// MinDetectLength 触发检测的最小字符数，低于该值返回默认语言.
	MinDetectLength int
}

// Adapter 语言适配器：检测、归一化与显示名称.
type Adapter struct {
	cfg       AdapterConfig
	detector  lingua.LanguageDetector
	supported map[string]lingua.Language
	logger    *zap.Logger
}

var defaultSupported = []string{"en", "zh", "es", "fr", "de", "ja", "ko", "ru"}

// NewAdapter 创建语言适配器.
// 默认语言必须在支持列表内，否则返回配置错误.
func NewAdapter(cfg AdapterConfig, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Default == "" {
		cfg.Default = "en"
	}
	cfg.Default = strings.ToLower(cfg.Default)
	if len(cfg.Supported) == 0 {
		cfg.Supported = defaultSupported
	}
	if cfg.MinDetectLength <= 0 {
		cfg.MinDetectLength = 5
	}

	supported := make(map[string]lingua.Language, len(cfg.Supported))
	langs := make([]lingua.Language, 0, len(cfg.Supported))
	for _, code := range cfg.Supported {
		code = strings.ToLower(strings.TrimSpace(code))
		lang, ok := languageForCode(code)
		if !ok {
			return nil, fmt.Errorf("unsupported language code: %q", code)
		}
		supported[code] = lang
		langs = append(langs, lang)
	}

	if _, ok := supported[cfg.Default]; !ok {
		return nil, fmt.Errorf("default language %q not in supported list", cfg.Default)
	}

	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(langs...).
		Build()

	return &Adapter{
		cfg:       cfg,
		detector:  detector,
		supported: supported,
		logger:    logger.With(zap.String("component", "language_adapter")),
	}, nil
}

// languageForCode 将 ISO 639-1 代码映射为 lingua 语言.
func languageForCode(code string) (lingua.Language, bool) {
	for _, lang := range lingua.AllLanguages() {
		if strings.ToLower(lang.IsoCode639_1().String()) == code {
			return lang, true
		}
	}
	return lingua.Unknown, false
}

// Default 返回默认语言代码.
func (a *Adapter) Default() string { return a.cfg.Default }

// Detect 检测文本语言，返回 ISO 639-1 代码.
// 文本过短或无法判定时返回默认语言.
func (a *Adapter) Detect(text string) string {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < a.cfg.MinDetectLength {
		return a.cfg.Default
	}

	lang, ok := a.detector.DetectLanguageOf(trimmed)
	if !ok {
		a.logger.Debug("语言检测无法判定，使用默认语言",
			zap.String("default", a.cfg.Default))
		return a.cfg.Default
	}

	return strings.ToLower(lang.IsoCode639_1().String())
}

// IsSupported 判断语言代码是否在支持列表内（含地区变体归一化）.
func (a *Adapter) IsSupported(code string) bool {
	_, ok := a.supported[normalize(code)]
	return ok
}

// NearestSupported 将语言代码归一化到支持列表内的最近项.
// 地区变体折叠到基础语言（en-US → en）；无匹配时返回默认语言和 false.
func (a *Adapter) NearestSupported(code string) (string, bool) {
	base := normalize(code)
	if _, ok := a.supported[base]; ok {
		return base, true
	}
	return a.cfg.Default, false
}

// DisplayName 返回语言代码的英文显示名称.
func (a *Adapter) DisplayName(code string) string {
	if lang, ok := languageForCode(normalize(code)); ok {
		return lang.String()
	}
	return code
}

// normalize 折叠地区变体并统一小写.
func normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	return code
}
