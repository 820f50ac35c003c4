package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config 服务运行配置，全部来自环境变量
type Config struct {
	Addr       string // 监听地址
	DataDir    string // sqlite数据目录
	LogLevel   string
	LogFile    string // 为空则只输出到stderr
	Mock       bool   // 不访问真实API，返回确定性结果
	PlanModel  string
	ImageModel string
	PostModel  string
}

// Load 读取环境变量生成配置
func Load() *Config {
	cfg := &Config{
		Addr:       getenv("CAROUSEL_ADDR", ":8080"),
		DataDir:    getenv("CAROUSEL_DATA_DIR", filepath.Join(".", "data")),
		LogLevel:   getenv("CAROUSEL_LOG_LEVEL", "info"),
		LogFile:    os.Getenv("CAROUSEL_LOG_FILE"),
		PlanModel:  getenv("CAROUSEL_PLAN_MODEL", "gemini-2.5-flash"),
		ImageModel: getenv("CAROUSEL_IMAGE_MODEL", "gemini-2.5-flash-image"),
		PostModel:  getenv("CAROUSEL_POST_MODEL", "gemini-2.5-flash"),
	}
	mock := strings.ToLower(os.Getenv("CAROUSEL_MOCK"))
	cfg.Mock = mock == "1" || mock == "true"
	return cfg
}

// DBPath sqlite数据库文件路径
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "carouselgen.db")
}

// InitLogging 初始化logrus
func (c *Config) InitLogging() error {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		logrus.SetOutput(f)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
