// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息（client secret、密码）和 APP_ENV
//  2. 根据 APP_ENV 加载对应的 configs/{env}.yaml 配置文件
//  3. 环境变量可覆盖 YAML 配置
//
// 使用方式：
//   - 开发环境: APP_ENV=dev (默认)
//   - 测试环境: APP_ENV=test
//   - 生产环境: APP_ENV=prod
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 应用配置（最终使用的配置）
type Config struct {
	Env         Environment
	APIPort     string
	CORSOrigins []string
	APS         APSConfig
	Callback    CallbackConfig
	ObjectStore ObjectStoreConfig
	Redis       RedisConfig
	RedisURL    string
	BundlesDir  string
	Log         LogConfig
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
}

// configDir 由外部通过 SetConfigDir 指定，优先级最高
var configDir string

// SetConfigDir 设置配置文件目录
func SetConfigDir(dir string) {
	configDir = dir
}

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 构建最终配置
func Load() *Config {
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	env := parseEnv(getEnv("APP_ENV", "dev"))
	yamlCfg := loadYAMLConfig(env)
	return build(env, yamlCfg)
}

// build 合并 YAML 与环境变量
func build(env Environment, y *YAMLConfig) *Config {
	aps := y.APS
	aps.ClientID = getEnv("APS_CLIENT_ID", "")
	aps.ClientSecret = getEnv("APS_CLIENT_SECRET", "")
	aps.WebhookURL = strings.TrimRight(getEnv("APS_WEBHOOK_URL", aps.WebhookURL), "/")

	cb := y.Callback
	cb.Secret = getEnv("CALLBACK_SECRET", aps.ClientSecret)

	store := y.ObjectStore
	store.Endpoint = getEnv("MINIO_ENDPOINT", store.Endpoint)
	store.AccessKey = getEnv("MINIO_ROOT_USER", "")
	store.SecretKey = getEnv("MINIO_ROOT_PASSWORD", "")
	if store.Bucket == "" {
		store.Bucket = DefaultBucket(aps.ClientID)
	}

	redis := y.Redis
	redis.Password = getEnv("REDIS_PASSWORD", "")
	redisURL := getEnv("REDIS_URL", redis.URL)
	if redisURL == "" {
		redisURL = buildRedisURL(redis)
	} else {
		redis.Enabled = true
	}

	return &Config{
		Env:         env,
		APIPort:     getEnv("API_PORT", y.Server.Port),
		CORSOrigins: y.Server.CORSOrigins,
		APS:         aps,
		Callback:    cb,
		ObjectStore: store,
		Redis:       redis,
		RedisURL:    redisURL,
		BundlesDir:  getEnv("BUNDLES_DIR", y.Bundles.Dir),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", y.Log.Level),
			Format: getEnv("LOG_FORMAT", y.Log.Format),
		},
	}
}

// defaults 默认配置
func defaults() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{Port: "8080"},
		APS: APSConfig{
			AuthURL:     "https://developer.api.autodesk.com/authentication/v2/token",
			EngineURL:   "https://developer.api.autodesk.com/da/us-east/v3",
			TokenSkew:   time.Minute,
			Alias:       "dev",
			HTTPTimeout: 60 * time.Second,
		},
		Callback: CallbackConfig{TokenTTL: 24 * time.Hour},
		ObjectStore: ObjectStoreConfig{
			Endpoint:    "localhost:9000",
			DownloadTTL: 15 * time.Minute,
			UploadTTL:   time.Hour,
		},
		Redis:   RedisConfig{Host: "localhost", Port: 6379, DB: 0},
		Bundles: BundlesConfig{Dir: "bundles"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	cfg := defaults()

	paths := configPaths
	if configDir != "" {
		paths = []string{configDir}
	}

	for _, name := range []string{"common.yaml", fmt.Sprintf("%s.yaml", env)} {
		for _, base := range paths {
			data, err := os.ReadFile(filepath.Join(base, name))
			if err != nil {
				continue
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "[Config] ignoring %s: %v\n", filepath.Join(base, name), err)
			}
			break
		}
	}

	return cfg
}

// DefaultBucket 按 client id 推导的容器名
func DefaultBucket(clientID string) string {
	return strings.ToLower(clientID) + "-designautomation"
}

// Validate 检查启动必需的配置项
func (c *Config) Validate() error {
	var errs []error
	if c.APS.ClientID == "" {
		errs = append(errs, errors.New("APS_CLIENT_ID is required"))
	}
	if c.APS.ClientSecret == "" {
		errs = append(errs, errors.New("APS_CLIENT_SECRET is required"))
	}
	if c.APS.WebhookURL == "" {
		errs = append(errs, errors.New("APS_WEBHOOK_URL is required"))
	}
	if c.Callback.Secret == "" {
		errs = append(errs, errors.New("CALLBACK_SECRET is required"))
	}
	return errors.Join(errs...)
}

// buildRedisURL 构建 Redis 连接字符串
func buildRedisURL(redis RedisConfig) string {
	if redis.Password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d", redis.Password, redis.Host, redis.Port, redis.DB)
	}
	return fmt.Sprintf("redis://%s:%d/%d", redis.Host, redis.Port, redis.DB)
}

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要（隐藏密码）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Engine: %s, Bucket: %s, Redis: %s}",
		c.Env, c.APS.EngineURL, c.ObjectStore.Bucket, maskPassword(c.RedisURL))
}

// maskPassword 隐藏密码
func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:]*:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}
