// Copyright 2025-2026 SRAGA Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package config 提供统一的配置加载，支持 YAML 文件与环境变量覆盖。
package config
