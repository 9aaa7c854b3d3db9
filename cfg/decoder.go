package cfg

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Format 配置文件格式
type Format string

const (
	FormatYaml Format = "yaml"
	FormatToml Format = "toml"
	FormatJson Format = "json"
	FormatIni  Format = "ini"
)

// FormatOf 按扩展名判断格式
func FormatOf(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYaml, nil
	case ".toml":
		return FormatToml, nil
	case ".json":
		return FormatJson, nil
	case ".ini", ".conf":
		return FormatIni, nil
	default:
		return "", errors.Errorf("unsupported config file extension: %q", filepath.Ext(filename))
	}
}

// Decode 把配置内容解码成 map/slice 组成的树
func Decode(data []byte, format Format) (map[string]any, error) {
	result := map[string]any{}
	switch format {
	case FormatYaml:
		if err := yaml.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "failed to decode YAML")
		}
	case FormatToml:
		if err := toml.Unmarshal(data, &result); err != nil {
			return nil, errors.Wrap(err, "failed to decode TOML")
		}
	case FormatJson:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.UseNumber()
		if err := decoder.Decode(&result); err != nil {
			return nil, errors.Wrap(err, "failed to decode JSON")
		}
	case FormatIni:
		var err error
		if result, err = decodeIni(data); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unsupported config format: %q", format)
	}
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}

// decodeIni section 名中的点号表示嵌套，如 [database.idGenerator]
func decodeIni(data []byte) (map[string]any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:         true,
		SpaceBeforeInlineComment: true,
	}, data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode INI")
	}

	result := map[string]any{}
	for _, section := range file.Sections() {
		target := result
		if section.Name() != ini.DefaultSection {
			for _, part := range strings.Split(section.Name(), ".") {
				child, ok := target[part].(map[string]any)
				if !ok {
					child = map[string]any{}
					target[part] = child
				}
				target = child
			}
		}
		for _, key := range section.Keys() {
			target[key.Name()] = parseIniValue(key.String())
		}
	}
	return result, nil
}

// parseIniValue ini 的值都是字符串，先尝试布尔和数值
func parseIniValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}
