package viper

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	spfviper "github.com/spf13/viper"
)

// Config 封装 spf13/viper 实例，对外提供精简的 YAML/JSON 配置加载接口。
type Config struct {
	v *spfviper.Viper
}

// New 创建一个空的 Config。
// 未加载任何配置时 Unmarshal 只会填充通过 SetDefault 设置的默认值。
func New() *Config {
	return &Config{
		v: spfviper.New(),
	}
}

// LoadFile 将 YAML 或 JSON 配置文件加载到 Config 中。
// 文件类型通过扩展名（.yaml/.yml/.json）推断。
func (c *Config) LoadFile(path string) error {
	c.ensure()
	c.v.SetConfigFile(path)

	if typ := configType(filepath.Ext(path)); typ != "" {
		c.v.SetConfigType(typ)
	}

	if err := c.v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "load config file %s", path)
	}
	return nil
}

// LoadReader 从 reader 中读取配置，typ 为 yaml 或 json。
func (c *Config) LoadReader(r io.Reader, typ string) error {
	c.ensure()
	c.v.SetConfigType(strings.TrimPrefix(strings.ToLower(typ), "."))
	if err := c.v.ReadConfig(r); err != nil {
		return errors.Wrap(err, "load config from reader")
	}
	return nil
}

// SetDefault 为 key 设置默认值，优先级低于配置文件。
func (c *Config) SetDefault(key string, value any) {
	c.ensure()
	c.v.SetDefault(key, value)
}

// IsSet 判断 key 是否存在于配置或默认值中。
func (c *Config) IsSet(key string) bool {
	if c.v == nil {
		return false
	}
	return c.v.IsSet(key)
}

// Unmarshal 将完整配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) Unmarshal(dst interface{}) error {
	if c.v == nil {
		return nil
	}
	return c.v.Unmarshal(dst)
}

// UnmarshalKey 将指定 key 对应的子配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) UnmarshalKey(key string, dst interface{}) error {
	if c.v == nil {
		return nil
	}
	return c.v.UnmarshalKey(key, dst)
}

func (c *Config) ensure() {
	if c.v == nil {
		c.v = spfviper.New()
	}
}

func configType(ext string) string {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		// 交给 viper 自行推断，或在读取时返回清晰的错误信息。
		return ""
	}
}
