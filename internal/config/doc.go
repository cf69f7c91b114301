// Package config 负责加载 sonicud 的启动配置，包括 API 服务、交易存储、
// 队列驱动、链上端点与合约地址等内容，并支持通过环境变量覆盖部署相关字段。
package config
