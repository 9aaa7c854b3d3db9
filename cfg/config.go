package cfg

import (
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// Config 只读的配置树，加载一次后按 key 取子配置或绑定到结构体
type Config struct {
	data any
}

// NewConfig 按扩展名选择 yaml/toml/json/ini 解码
func NewConfig(filename string) (*Config, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "read config file [%s] failed", filename)
	}
	return NewConfigWithBytes(data, format)
}

// NewConfigWithPrefix 加载文件后用环境变量覆盖已有的 key
// 如 prefix 为 DBKIT 时，DBKIT_DATABASE_PASSWORD 覆盖 database.password
func NewConfigWithPrefix(filename string, prefix string) (*Config, error) {
	c, err := NewConfig(filename)
	if err != nil {
		return nil, err
	}
	c.OverrideWithEnv(prefix, os.LookupEnv)
	return c, nil
}

func NewConfigWithBytes(data []byte, format Format) (*Config, error) {
	m, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	return &Config{data: m}, nil
}

func NewConfigWithData(data any) *Config {
	return &Config{data: data}
}

func (c *Config) Data() any {
	return c.data
}

// Sub 取子配置，key 支持点号和数组下标，如 "reports[0].name"，不存在时返回空配置
func (c *Config) Sub(key string) *Config {
	if key == "" {
		return c
	}
	current := c.data
	for _, k := range parseKey(key) {
		current = valueOf(current, k)
		if current == nil {
			return &Config{}
		}
	}
	return &Config{data: current}
}

// Exists key 对应的值是否存在
func (c *Config) Exists() bool {
	return c.data != nil
}

// ConvertTo 先按 def tag 填默认值，再用配置覆盖，最后按 validate tag 校验
func (c *Config) ConvertTo(object any) error {
	if err := SetDefaults(object); err != nil {
		return errors.WithMessage(err, "SetDefaults failed")
	}

	if c.data != nil {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "cfg",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result: object,
		})
		if err != nil {
			return errors.Wrap(err, "mapstructure.NewDecoder failed")
		}
		if err := decoder.Decode(c.data); err != nil {
			return errors.Wrap(err, "decoder.Decode failed")
		}
	}

	if err := ValidateStruct(object); err != nil {
		return errors.Wrap(err, "ValidateStruct failed")
	}
	return nil
}

// OverrideWithEnv 只覆盖配置中已有的标量 key，环境变量名为 PREFIX_ 加上大写的路径，路径之间用 _ 连接
func (c *Config) OverrideWithEnv(prefix string, lookup func(string) (string, bool)) {
	c.data = overrideWithEnv(c.data, strings.ToUpper(prefix), lookup)
}

func overrideWithEnv(data any, name string, lookup func(string) (string, bool)) any {
	switch v := data.(type) {
	case map[string]any:
		for k, child := range v {
			v[k] = overrideWithEnv(child, joinEnvName(name, k), lookup)
		}
		return v
	case []any:
		for i, child := range v {
			v[i] = overrideWithEnv(child, joinEnvName(name, strconv.Itoa(i)), lookup)
		}
		return v
	default:
		if value, ok := lookup(name); ok {
			return value
		}
		return data
	}
}

func joinEnvName(prefix string, key string) string {
	key = strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}

// parseKey 把 "a.b[0].c" 拆成 ["a", "b", "0", "c"]
func parseKey(key string) []string {
	return strings.FieldsFunc(key, func(r rune) bool {
		return r == '.' || r == '[' || r == ']'
	})
}

func valueOf(data any, key string) any {
	if data == nil {
		return nil
	}
	rv := reflect.ValueOf(data)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		value := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !value.IsValid() {
			// yaml 键大小写不敏感匹配，与结构体绑定时一致
			for _, k := range rv.MapKeys() {
				if ks, ok := k.Interface().(string); ok && strings.EqualFold(ks, key) {
					return rv.MapIndex(k).Interface()
				}
			}
			return nil
		}
		return value.Interface()
	case reflect.Slice, reflect.Array:
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 || index >= rv.Len() {
			return nil
		}
		return rv.Index(index).Interface()
	}
	return nil
}
