// Copyright 2025-2026 SRAGA Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package language 提供多语言支持：语言检测、支持列表归一化与翻译。

检测基于 lingua-go 的统计模型，检测范围限定在配置的支持语言内；
过短或无法判定的文本回退到默认语言。翻译委托给 llm.Provider，
用于跨语言检索（查询译为英文检索，结果译回目标语言）。
*/
package language
