// Copyright 2025-2026 SRAGA Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package tokenizer 提供 token 计数能力，供提示词预算裁剪使用。

首选 tiktoken 精确计数（编码数据懒加载）；当模型没有已知编码或
编码初始化失败时，回退到基于字符数的估算器（区分 CJK 与 ASCII）。
*/
package tokenizer
