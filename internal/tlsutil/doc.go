// Package tlsutil 提供管理客户端使用的 TLS 配置，
// 默认 TLS 1.2+ 且仅 AEAD 密码套件，health 子命令探测 https 地址时使用。
package tlsutil
