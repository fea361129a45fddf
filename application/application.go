package application

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-serde/pkg/log"
	"github.com/lk2023060901/danmu-garden-serde/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-serde/pkg/serde"
	zviper "github.com/lk2023060901/danmu-garden-serde/pkg/util/viper"
)

const (
	defaultConfigPath = "./config.yaml"
	configPathEnv     = "SERDE_CONFIG_FILE_PATH"
)

// Application 持有配置文件以及由其构造出的 Logger 与 Serializer。
type Application struct {
	args       []string
	cfg        *zviper.Config
	serializer *serde.Serializer
}

// New 创建 Application，args 为不含程序名的命令行参数，传 nil 时使用 os.Args。
func New(args []string) *Application {
	if args == nil && len(os.Args) > 1 {
		args = os.Args[1:]
	}
	return &Application{args: args}
}

// Run 加载配置并初始化日志、指标与序列化器。
// 配置文件路径优先级（后者覆盖前者）：
//  1. 默认：./config.yaml
//  2. 环境变量：SERDE_CONFIG_FILE_PATH
//  3. 命令行：--config <path> 或 --config=<path>
func (a *Application) Run(opts ...serde.Option) error {
	path, err := a.configPath()
	if err != nil {
		return err
	}
	cfg := zviper.New()
	if err := cfg.LoadFile(path); err != nil {
		return errors.Wrapf(err, "failed to load config file %q", path)
	}
	return a.run(cfg, opts...)
}

func (a *Application) run(cfg *zviper.Config, opts ...serde.Option) error {
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}
	metrics.RegisterSerdeMetrics(metrics.GetRegisterer())

	sc := &serde.Config{}
	if err := cfg.UnmarshalKey("serde", sc); err != nil {
		return errors.Wrap(err, "unmarshal serde config")
	}
	serdeOpts, err := sc.Build()
	if err != nil {
		return err
	}
	s, err := serde.New(append(serdeOpts, opts...)...)
	if err != nil {
		return errors.Wrap(err, "create serializer")
	}
	a.serializer = s

	log.Info("application started",
		log.FieldOptions(s.Options()),
		zap.Bool("lenient", sc.Lenient))
	return nil
}

// Config 返回已加载的配置。
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Serializer 返回按配置构造的序列化器，Run 成功之前为 nil。
func (a *Application) Serializer() *serde.Serializer {
	return a.serializer
}

func (a *Application) configPath() (string, error) {
	path := defaultConfigPath
	if env := strings.TrimSpace(os.Getenv(configPathEnv)); env != "" {
		path = env
	}
	for i := 0; i < len(a.args); i++ {
		arg := a.args[i]
		if arg == "--config" {
			if i+1 >= len(a.args) {
				return "", errors.New("missing value after --config")
			}
			path = a.args[i+1]
			i++
			continue
		}
		if val, ok := strings.CutPrefix(arg, "--config="); ok && val != "" {
			path = val
		}
	}
	return path, nil
}

// initLogging 用配置中的 log 段初始化全局 Logger，缺省时只输出到标准输出。
func (a *Application) initLogging() error {
	lc := &log.Config{Level: "info", Format: "text", Stdout: true}
	if a.cfg.IsSet("log") {
		if err := a.cfg.UnmarshalKey("log", lc); err != nil {
			return errors.Wrap(err, "unmarshal log config")
		}
	}
	logger, props, err := log.InitLogger(lc)
	if err != nil {
		return errors.Wrap(err, "init global logger")
	}
	log.ReplaceGlobals(logger, props)
	return nil
}
