package rag

import (
	"strings"

	"go.uber.org/zap"
)

// ChunkingStrategy 分块策略
type ChunkingStrategy string

const (
	StrategyCharacter ChunkingStrategy = "character" // 字符滑窗
	StrategySentence  ChunkingStrategy = "sentence"  // 句子贪心打包
	StrategyParagraph ChunkingStrategy = "paragraph" // 段落打包
)

// ChunkerConfig 分块配置
type ChunkerConfig struct {
	Strategy ChunkingStrategy `json:"strategy"` // 分块策略
	Size     int              `json:"size"`     // 块大小（字符数）
	Overlap  int              `json:"overlap"`  // 重叠大小（字符数）

	// CrossPageOverlap 多页文档启用跨页重叠：
	// 第 N 页的最后 Overlap 个字符前缀到第 N+1 页，首块标记 spans_pages.
	CrossPageOverlap bool `json:"cross_page_overlap"`
}

// DefaultChunkerConfig 默认分块配置
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		Strategy:         StrategySentence,
		Size:             1000,
		Overlap:          200,
		CrossPageOverlap: true,
	}
}

// Chunker 文档分块器
type Chunker struct {
	cfg    ChunkerConfig
	logger *zap.Logger
}

// NewChunker 创建文档分块器.
// Size <= 0 或未知策略返回配置错误.
func NewChunker(cfg ChunkerConfig, logger *zap.Logger) (*Chunker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Size <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if cfg.Overlap < 0 {
		return nil, ErrInvalidOverlap
	}
	switch cfg.Strategy {
	case StrategyCharacter, StrategySentence, StrategyParagraph:
	case "":
		cfg.Strategy = StrategySentence
	default:
		return nil, ErrUnknownStrategy
	}

	return &Chunker{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "chunker")),
	}, nil
}

// piece 切分中间结果：文本、起始偏移（rune）与强制切分标记.
type piece struct {
	text   string
	offset int
	forced bool
}

// Chunk 对文档分块。多页文档按页处理并可选跨页重叠；
// 空白文档返回零块.
func (c *Chunker) Chunk(doc Document) []Chunk {
	if len(doc.Pages) > 0 {
		return c.chunkPages(doc)
	}
	return c.assemble(doc, c.split(doc.Text))
}

// chunkPages 按页切分，页间可选重叠前缀.
func (c *Chunker) chunkPages(doc Document) []Chunk {
	var chunks []Chunk
	ordinal := 0
	prevTail := ""

	for _, page := range doc.Pages {
		text := page.Text
		spansPages := false
		if c.cfg.CrossPageOverlap && prevTail != "" && strings.TrimSpace(text) != "" {
			text = prevTail + text
			spansPages = true
		}

		pieces := c.split(text)
		for i, p := range pieces {
			if strings.TrimSpace(p.text) == "" {
				continue
			}
			meta := c.chunkMetadata(doc, p)
			meta[MetaPageNumber] = page.Number
			if spansPages && i == 0 {
				meta[MetaSpansPages] = true
			}
			chunks = append(chunks, c.newChunk(doc.ID, ordinal, p.text, meta))
			ordinal++
		}

		if c.cfg.CrossPageOverlap && c.cfg.Overlap > 0 {
			prevTail = tailRunes(page.Text, c.cfg.Overlap)
		}
	}

	c.logChunks(doc.ID, len(chunks))
	return chunks
}

// assemble 将切分结果组装为带元数据的 Chunk 序列.
func (c *Chunker) assemble(doc Document, pieces []piece) []Chunk {
	var chunks []Chunk
	ordinal := 0
	for _, p := range pieces {
		if strings.TrimSpace(p.text) == "" {
			continue
		}
		chunks = append(chunks, c.newChunk(doc.ID, ordinal, p.text, c.chunkMetadata(doc, p)))
		ordinal++
	}
	c.logChunks(doc.ID, len(chunks))
	return chunks
}

func (c *Chunker) newChunk(docID string, ordinal int, text string, meta map[string]any) Chunk {
	id := ChunkID(docID, ordinal)
	meta[MetaChunkID] = id
	meta[MetaOrdinal] = ordinal
	return Chunk{
		ID:         id,
		DocumentID: docID,
		Ordinal:    ordinal,
		Text:       text,
		Metadata:   meta,
	}
}

// chunkMetadata 继承文档元数据并附加块级字段.
func (c *Chunker) chunkMetadata(doc Document, p piece) map[string]any {
	meta := make(map[string]any, len(doc.Metadata)+6)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta[MetaDocumentID] = doc.ID
	meta[MetaStartOffset] = p.offset
	meta[MetaEndOffset] = p.offset + len([]rune(p.text))
	if p.forced {
		meta[MetaForcedSplit] = true
	}
	return meta
}

func (c *Chunker) logChunks(docID string, n int) {
	c.logger.Debug("chunking completed",
		zap.String("document_id", docID),
		zap.String("strategy", string(c.cfg.Strategy)),
		zap.Int("chunks", n))
}

// split 按配置策略切分文本.
func (c *Chunker) split(text string) []piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	switch c.cfg.Strategy {
	case StrategyCharacter:
		return characterPieces(text, 0, c.cfg.Size, c.cfg.Overlap, false)
	case StrategyParagraph:
		return c.packUnits(splitParagraphs(text), func(unit string, offset int) []piece {
			// 超长段落回退到句子打包
			return c.packUnitsAt(splitSentences(unit), offset, func(s string, off int) []piece {
				return characterPieces(s, off, c.cfg.Size, c.cfg.Overlap, true)
			})
		})
	default: // StrategySentence
		return c.packUnits(splitSentences(text), func(unit string, offset int) []piece {
			// 超长句子强制按字符切分并打标
			return characterPieces(unit, offset, c.cfg.Size, c.cfg.Overlap, true)
		})
	}
}

// packUnits 对单元序列做贪心打包：连续单元拼接直到追加下一个会超出 Size.
// 单个超长单元交给 fallback 处理.
func (c *Chunker) packUnits(units []string, fallback func(string, int) []piece) []piece {
	return c.packUnitsAt(units, 0, fallback)
}

func (c *Chunker) packUnitsAt(units []string, base int, fallback func(string, int) []piece) []piece {
	var pieces []piece
	var cur strings.Builder
	curLen := 0
	curStart := base
	offset := base

	flush := func() {
		if cur.Len() > 0 {
			pieces = append(pieces, piece{text: cur.String(), offset: curStart})
			cur.Reset()
			curLen = 0
		}
	}

	for _, unit := range units {
		unitLen := len([]rune(unit))

		if unitLen > c.cfg.Size {
			flush()
			pieces = append(pieces, fallback(unit, offset)...)
			offset += unitLen
			curStart = offset
			continue
		}

		if curLen+unitLen > c.cfg.Size && curLen > 0 {
			flush()
			curStart = offset
		}
		cur.WriteString(unit)
		curLen += unitLen
		offset += unitLen
	}
	flush()

	return pieces
}

// characterPieces 字符滑窗切分。步长为 size-overlap，且始终 >= 1 保证前进.
func characterPieces(text string, base, size, overlap int, forced bool) []piece {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	advance := size - overlap
	if advance < 1 {
		advance = 1
	}

	var pieces []piece
	for i := 0; i < len(runes); i += advance {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, piece{
			text:   string(runes[i:end]),
			offset: base + i,
			forced: forced,
		})
		if end >= len(runes) {
			break
		}
	}
	return pieces
}

// splitSentences 按句末标点切分，分隔符保留在句尾，拼接可还原原文.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	for _, r := range text {
		cur.WriteRune(r)
		if isSentenceEnder(r) {
			sentences = append(sentences, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		sentences = append(sentences, cur.String())
	}
	return sentences
}

func isSentenceEnder(r rune) bool {
	switch r {
	case '.', '。', '!', '！', '?', '？', '\n':
		return true
	}
	return false
}

// splitParagraphs 按空行切分，分隔符保留在段尾，拼接可还原原文.
func splitParagraphs(text string) []string {
	var paragraphs []string
	rest := text
	for {
		i := strings.Index(rest, "\n\n")
		if i < 0 {
			break
		}
		// 吸收连续空行
		end := i + 2
		for end < len(rest) && rest[end] == '\n' {
			end++
		}
		paragraphs = append(paragraphs, rest[:end])
		rest = rest[end:]
	}
	if rest != "" {
		paragraphs = append(paragraphs, rest)
	}
	return paragraphs
}

// tailRunes 返回文本最后 n 个字符.
func tailRunes(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}
