// Copyright 2025-2026 SRAGA Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package retry 提供指数退避重试能力，用于包装对 LLM 与 Embedding
提供者的网络调用。

策略通过 Policy 显式配置：最大重试次数、初始/最大延迟、倍增因子、
随机抖动，以及可重试错误的判定方式（错误列表或分类函数）。
*/
package retry
