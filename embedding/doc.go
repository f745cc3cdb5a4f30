// Copyright 2025-2026 SRAGA Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package embedding 提供统一的文本向量化提供者接口和实现。

包含 OpenAI 兼容的 HTTP 实现（/v1/embeddings 协议）以及一个
Redis 向量缓存装饰器：相同文本的重复向量化直接命中缓存，
降低提供者调用成本。

# 核心接口/类型

  - Provider — 向量化提供者接口（Embed / EmbedQuery / EmbedDocuments）
  - OpenAIProvider — OpenAI 兼容 HTTP 实现
  - CachedProvider — Redis 缓存装饰器
*/
package embedding
