// Copyright 2025-2026 SRAGA Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package llm 定义 RAG 核心使用的文本生成提供者契约。

核心只依赖 Provider 接口：查询扩展、上下文压缩、翻译和最终答案合成
都通过同一个 Complete 调用完成。包内附带一个 OpenAI 兼容的 HTTP
实现（Chat Completions 协议），以及统一的结构化错误类型。

# 核心接口/类型

  - Provider — 生成提供者接口（Complete / Name）
  - CompletionRequest — 提示词、系统消息、温度、最大 Token 数
  - Error / ErrorCode — 带重试标记的结构化提供者错误
*/
package llm
