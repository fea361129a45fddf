package serde

import (
	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-garden-serde/internal/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// Config 为配置文件中 serde 段的内容。
type Config struct {
	// Preset 为 compact、default、self-describing 或 fast。
	Preset string `mapstructure:"preset" json:"preset"`
	// Options 为在 Preset 基础上额外开启的选项名，例如 member-names。
	Options           []string `mapstructure:"options" json:"options"`
	Lenient           bool     `mapstructure:"lenient" json:"lenient"`
	MaxDepth          int      `mapstructure:"max-depth" json:"max-depth"`
	InitialBufferSize int      `mapstructure:"initial-buffer-size" json:"initial-buffer-size"`
}

// WireOptions 合并 Preset 与额外选项，Preset 为空时使用 default。
func (c *Config) WireOptions() (wire.Options, error) {
	base, err := wire.PresetByName(c.Preset)
	if err != nil {
		return 0, err
	}
	extra, err := wire.ParseOptions(c.Options...)
	if err != nil {
		return 0, err
	}
	return base | extra, nil
}

// Build 将配置转换为 Serializer 选项。
func (c *Config) Build() ([]Option, error) {
	o, err := c.WireOptions()
	if err != nil {
		return nil, errors.Wrap(err, "invalid serde options")
	}
	if c.MaxDepth < 0 {
		return nil, merr.WrapErrParameterInvalidMsg("max-depth must not be negative, got %d", c.MaxDepth)
	}
	if c.InitialBufferSize < 0 {
		return nil, merr.WrapErrParameterInvalidMsg("initial-buffer-size must not be negative, got %d", c.InitialBufferSize)
	}
	opts := []Option{
		WithWireOptions(o),
		WithLenient(c.Lenient),
		WithInitialBufferSize(c.InitialBufferSize),
	}
	if c.MaxDepth > 0 {
		opts = append(opts, WithMaxDepth(c.MaxDepth))
	}
	return opts, nil
}
