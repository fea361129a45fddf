package wire

import (
	"strings"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// Options 控制编码的紧凑程度与自描述程度，读写两端必须使用完全相同的组合。
type Options uint32

const (
	// IncludeTypeTags 在每个值前写入一个类型 tag，读取时用于校验。
	IncludeTypeTags Options = 1 << iota
	// IncludeMemberNames 在每个成员前写入 MemberBegin 和成员名。
	IncludeMemberNames
	// IncludeObjectType 使用 TypedObjectBegin 并携带对象的具体类型。
	IncludeObjectType
	// EnableVarintEncoding 整数值使用 varint（有符号整数先做 zigzag），否则定长小端。
	EnableVarintEncoding
	// EnableDirectMemoryCopy 允许按内存直接拷贝：字符串按 UTF-16 原样写入，POD 值可走 FormatOpaque。
	EnableDirectMemoryCopy
)

const (
	None Options = 0
	// Compact 只保留 varint，结构完全依赖位置。
	Compact = EnableVarintEncoding
	// Default 带类型 tag 的 varint 编码。
	Default = IncludeTypeTags | EnableVarintEncoding
	// SelfDescribing 额外携带成员名与对象类型，便于诊断。
	SelfDescribing = IncludeTypeTags | IncludeMemberNames | IncludeObjectType | EnableVarintEncoding
	// Fast 定长整数加内存直拷，适合同构进程间传输。
	Fast = EnableDirectMemoryCopy

	allOptions = IncludeTypeTags | IncludeMemberNames | IncludeObjectType | EnableVarintEncoding | EnableDirectMemoryCopy
)

var optionNames = []struct {
	opt  Options
	name string
}{
	{IncludeTypeTags, "type-tags"},
	{IncludeMemberNames, "member-names"},
	{IncludeObjectType, "object-type"},
	{EnableVarintEncoding, "varint"},
	{EnableDirectMemoryCopy, "direct-memory-copy"},
}

var presets = map[string]Options{
	"none":            None,
	"compact":         Compact,
	"default":         Default,
	"self-describing": SelfDescribing,
	"fast":            Fast,
}

// Has 判断是否包含 flag 中的全部选项。
func (o Options) Has(flag Options) bool {
	return o&flag == flag
}

func (o Options) With(flag Options) Options {
	return o | flag
}

func (o Options) Without(flag Options) Options {
	return o &^ flag
}

func (o Options) String() string {
	if o == None {
		return "none"
	}
	names := make([]string, 0, len(optionNames))
	for _, item := range optionNames {
		if o.Has(item.opt) {
			names = append(names, item.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseOptions 将选项名列表解析为 Options，名称不区分大小写。
func ParseOptions(names ...string) (Options, error) {
	var opts Options
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		found := false
		for _, item := range optionNames {
			if item.name == name {
				opts |= item.opt
				found = true
				break
			}
		}
		if !found {
			return None, merr.WrapErrParameterInvalidMsg("unknown wire option %q", name)
		}
	}
	return opts, nil
}

// PresetByName 返回命名预设，空字符串视为 default。
func PresetByName(name string) (Options, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Default, nil
	}
	opts, ok := presets[name]
	if !ok {
		return None, merr.WrapErrParameterInvalidMsg("unknown wire preset %q", name)
	}
	return opts, nil
}

// AllCombinations 枚举全部选项组合，供测试与基准使用。
func AllCombinations() []Options {
	combos := make([]Options, 0, allOptions+1)
	for o := Options(0); o <= allOptions; o++ {
		combos = append(combos, o)
	}
	return combos
}
