package logger

import (
	"os"

	"go.uber.org/zap"
)

// NewLogger 创建 zap.Logger：默认开发版，APP_ENV=production 时输出 JSON
func NewLogger() (*zap.Logger, error) {
	if os.Getenv("APP_ENV") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
