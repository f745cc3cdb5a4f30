package rag

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics RAG 管线指标。仅依赖 OTel API，
// 未安装 SDK 时所有记录为空操作.
type Metrics struct {
	retrievals           metric.Int64Counter
	chunksIngested       metric.Int64Counter
	augmentationFallback metric.Int64Counter
}

// NewMetrics 创建指标集合.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/sraga-ai/ragcore/rag")

	retrievals, err := meter.Int64Counter("rag.retrievals",
		metric.WithDescription("Number of retrieval operations"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, err
	}

	chunksIngested, err := meter.Int64Counter("rag.chunks_ingested",
		metric.WithDescription("Number of chunks written to the vector store"),
		metric.WithUnit("{chunk}"))
	if err != nil {
		return nil, err
	}

	augmentationFallback, err := meter.Int64Counter("rag.augmentation_fallbacks",
		metric.WithDescription("Number of augmentation passes that fell back to their input"),
		metric.WithUnit("{fallback}"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		retrievals:           retrievals,
		chunksIngested:       chunksIngested,
		augmentationFallback: augmentationFallback,
	}, nil
}

func (m *Metrics) recordRetrieval(ctx context.Context, namespaces int) {
	if m == nil {
		return
	}
	m.retrievals.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("namespaces", namespaces)))
}

func (m *Metrics) recordIngestion(ctx context.Context, namespace string, chunks int) {
	if m == nil {
		return
	}
	m.chunksIngested.Add(ctx, int64(chunks), metric.WithAttributes(
		attribute.String("namespace", namespace)))
}

func (m *Metrics) recordFallback(ctx context.Context, pass string) {
	if m == nil {
		return
	}
	m.augmentationFallback.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pass", pass)))
}
