package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config 结构体定义了应用程序的配置结构
type Config struct {
	Data   DataConfig
	Server ServerConfig
	Log    LogConfig
	Report ReportConfig
}

// DataConfig 数据文件
type DataConfig struct {
	Path            string // 数据文件路径
	Name            string // 数据集名称，用于导出文件名
	Format          string // csv / xlsx，为空时按扩展名判断
	SheetName       string // xlsx 工作表
	HeaderRow       int    // xlsx 表头所在行
	Encoding        string // csv 文本编码
	SkipInvalidRows bool   // 隔离非法行而不是加载失败
	Watch           bool   // 文件变化后自动重新加载
	PIDFile         string // 写入进程号，供重新加载工具发送SIGHUP
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level   string
	Format  string // json / console
	File    string
	MaxSize int64 // 日志文件超过该大小后轮转，0表示不轮转
}

// ReportConfig 定时导出报表
type ReportConfig struct {
	Enabled         bool
	Schedule        string // cron表达式，例如 "@every 1h"
	OutputDir       string
	Counties        []string
	LastDays        int // 截至数据集最后日期的天数，0表示全部日期
	Gzip            bool
	XLSX            bool
	WebhookURL      string
	WebhookAttach   bool // 同时以multipart上传导出文件
	WebhookRetries  int
	WebhookInterval time.Duration
}

// Addr 服务监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

var (
	once     sync.Once
	instance *Config
	loadErr  error
)

// LoadConfig 只在第一次调用时读取配置，之后返回同一份结果
func LoadConfig(jsonFolder, jsonFile string) (*Config, error) {
	once.Do(func() {
		instance, loadErr = Load(jsonFolder, jsonFile)
	})
	return instance, loadErr
}

// Load 读取配置文件和环境变量；配置文件不存在时使用默认值
// 环境变量以 AQD_ 为前缀，例如 AQD_DATA_PATH、AQD_SERVER_PORT
func Load(jsonFolder, jsonFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AQD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(strings.TrimSuffix(jsonFile, filepath.Ext(jsonFile)))
	v.SetConfigType("json")
	v.AddConfigPath(jsonFolder)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	maxSize, err := ParseSize(v.GetString("log.max_size"))
	if err != nil {
		return nil, fmt.Errorf("log.max_size: %w", err)
	}

	cfg := &Config{
		Data: DataConfig{
			Path:            v.GetString("data.path"),
			Name:            v.GetString("data.name"),
			Format:          v.GetString("data.format"),
			SheetName:       v.GetString("data.sheet_name"),
			HeaderRow:       v.GetInt("data.header_row"),
			Encoding:        v.GetString("data.encoding"),
			SkipInvalidRows: v.GetBool("data.skip_invalid_rows"),
			Watch:           v.GetBool("data.watch"),
			PIDFile:         v.GetString("data.pid_file"),
		},
		Server: ServerConfig{
			Host:         v.GetString("server.host"),
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
		},
		Log: LogConfig{
			Level:   v.GetString("log.level"),
			Format:  v.GetString("log.format"),
			File:    v.GetString("log.file"),
			MaxSize: maxSize,
		},
		Report: ReportConfig{
			Enabled:         v.GetBool("report.enabled"),
			Schedule:        v.GetString("report.schedule"),
			OutputDir:       v.GetString("report.output_dir"),
			Counties:        stringSlice(v, "report.counties"),
			LastDays:        v.GetInt("report.last_days"),
			Gzip:            v.GetBool("report.gzip"),
			XLSX:            v.GetBool("report.xlsx"),
			WebhookURL:      v.GetString("report.webhook_url"),
			WebhookAttach:   v.GetBool("report.webhook_attach"),
			WebhookRetries:  v.GetInt("report.webhook_retries"),
			WebhookInterval: v.GetDuration("report.webhook_interval"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.path", "alabamaData2024_NO2.csv")
	v.SetDefault("data.name", "alabama_NO2")
	v.SetDefault("data.format", "")
	v.SetDefault("data.sheet_name", "")
	v.SetDefault("data.header_row", 1)
	v.SetDefault("data.encoding", "utf-8")
	v.SetDefault("data.skip_invalid_rows", false)
	v.SetDefault("data.watch", true)
	v.SetDefault("data.pid_file", "aqd.pid")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8501)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "app.log")
	v.SetDefault("log.max_size", "10 * 1024 * 1024")

	v.SetDefault("report.enabled", false)
	v.SetDefault("report.schedule", "@every 1h")
	v.SetDefault("report.output_dir", "./reports")
	v.SetDefault("report.counties", []string{})
	v.SetDefault("report.last_days", 0)
	v.SetDefault("report.gzip", false)
	v.SetDefault("report.xlsx", false)
	v.SetDefault("report.webhook_url", "")
	v.SetDefault("report.webhook_attach", false)
	v.SetDefault("report.webhook_retries", 5)
	v.SetDefault("report.webhook_interval", "2s")
}

// Validate 检查配置项之间的约束
func (c *Config) Validate() error {
	var errs []error
	if c.Data.Path == "" {
		errs = append(errs, errors.New("data.path is required"))
	}
	if c.Data.Name == "" {
		errs = append(errs, errors.New("data.name is required"))
	}
	switch strings.ToLower(c.Data.Format) {
	case "", "csv", "xlsx":
	default:
		errs = append(errs, fmt.Errorf("data.format %q is not csv or xlsx", c.Data.Format))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Report.Enabled && c.Report.Schedule == "" {
		errs = append(errs, errors.New("report.schedule is required when report is enabled"))
	}
	if c.Report.LastDays < 0 {
		errs = append(errs, errors.New("report.last_days must not be negative"))
	}
	return combineErrors(errs)
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("配置校验遇到错误: %w", errors.Join(errs...))
}

// ParseSize 解析大小，支持 "10MB"、"512KB"、"1GB" 以及 "10 * 1024 * 1024"
func ParseSize(expr string) (int64, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, nil
	}

	if strings.Contains(expr, "*") {
		var result int64 = 1
		for _, part := range strings.Split(expr, "*") {
			num, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size %q: %w", expr, err)
			}
			result *= num
		}
		return result, nil
	}

	upper := strings.ToUpper(expr)
	units := []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(upper, u.suffix) {
			num, err := strconv.ParseInt(strings.TrimSpace(strings.TrimSuffix(upper, u.suffix)), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size %q: %w", expr, err)
			}
			return num * u.mult, nil
		}
	}

	num, err := strconv.ParseInt(upper, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", expr, err)
	}
	return num, nil
}

// stringSlice 环境变量中的列表按逗号分隔，县名可能带空格（如 "St. Clair"）
func stringSlice(v *viper.Viper, key string) []string {
	raw, ok := v.Get(key).(string)
	if !ok {
		return v.GetStringSlice(key)
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
