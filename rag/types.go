package rag

import (
	"fmt"
	"time"
)

// 保留元数据键。调用方可附加任意扩展键，以下键由核心写入.
const (
	MetaDocumentID       = "document_id"
	MetaPageNumber       = "page_number"
	MetaChunkID          = "chunk_id"
	MetaNamespace        = "namespace"
	MetaOrdinal          = "ordinal"
	MetaStartOffset      = "start_offset"
	MetaEndOffset        = "end_offset"
	MetaForcedSplit      = "forced_split"
	MetaSpansPages       = "spans_pages"
	MetaCompressed       = "compressed"
	MetaOriginalLength   = "original_length"
	MetaTranslated       = "translated"
	MetaOriginalLanguage = "original_language"
)

// Page 多页文档的单页内容.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Document 待入库文档。入库后不可变；重新入库使用新 ID 覆盖语义.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Pages    []Page         `json:"pages,omitempty"` // 非空时按页切分
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Chunk 文档块：存储与检索的基本单元.
type Chunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Ordinal    int            `json:"ordinal"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ChunkID 由文档 ID 与序号确定性派生.
func ChunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s:%d", docID, ordinal)
}

// Record 向量存储中的一条记录.
type Record struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Vector   []float64      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RetrievalCandidate 单次查询产生的候选证据，不持久化.
// Score 为相似度（越高越相关，[0,1]）；Distance = 1 - Score.
type RetrievalCandidate struct {
	ChunkID   string         `json:"chunk_id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Score     float64        `json:"score"`
	Distance  float64        `json:"distance"`
	Namespace string         `json:"namespace"`
}

// Role 对话角色.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn 一轮对话.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Source 查询结果引用的证据来源（截断预览）.
type Source struct {
	ChunkID   string         `json:"chunk_id"`
	Preview   string         `json:"preview"`
	Score     float64        `json:"score"`
	Namespace string         `json:"namespace"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
