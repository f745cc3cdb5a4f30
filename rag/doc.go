// Copyright 2025-2026 SRAGA Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package rag 提供检索增强生成（Retrieval-Augmented Generation）的核心实现。

该包覆盖 RAG 管线的全部阶段：文档分块、向量化、命名空间隔离的向量存储、
多命名空间检索合并、查询增强（扩展 / 重排 / 压缩）、对话窗口与提示词组装，
并提供工厂函数从全局配置一键创建完整引擎。

# 核心接口/类型

  - VectorStore — 向量存储统一接口（Upsert / Query / Delete / DeleteNamespace / Count）
  - Chunker — 文档分块器（character / sentence / paragraph 三种策略）
  - Engine — 检索引擎（Ingest / Retrieve / AugmentedRetrieve / Query）
  - Augmenter — 查询增强器（扩展、关键词重排、上下文压缩）
  - Conversation — 有界对话窗口
  - PromptBuilder — 带 Token 预算的提示词组装

# 主要能力

  - 文档分块：字符滑窗、句子贪心打包、段落打包三种策略，超长单元强制切分并打标
  - 跨页重叠：多页文档按页号切分，页间重叠前缀并标记 spans_pages
  - 多命名空间检索：各命名空间并发取 top-k，按相似度降序合并截断
  - 查询增强：查询扩展（3 倍长度护栏）、距离-关键词组合重排、上下文压缩（20% 比例护栏）
  - 跨语言检索：查询翻译为默认语言检索，结果翻译回目标语言
  - 向量存储后端：InMemory / Qdrant（REST）/ pgvector
  - 工厂函数：NewEngineFromConfig 一键创建完整管线
*/
package rag
