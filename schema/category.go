package schema

import (
	"strings"
)

// storageTypeCategory 底层存储类型到类型族的映射
var storageTypeCategory = map[string]Category{
	"char":                        CategoryText,
	"varchar":                     CategoryText,
	"tinytext":                    CategoryText,
	"text":                        CategoryText,
	"mediumtext":                  CategoryText,
	"longtext":                    CategoryText,
	"character":                   CategoryText,
	"character varying":           CategoryText,
	"nchar":                       CategoryText,
	"nvarchar":                    CategoryText,
	"bpchar":                      CategoryText,
	"string":                      CategoryText,
	"enum":                        CategoryEnumerated,
	"int":                         CategoryNumeric,
	"integer":                     CategoryNumeric,
	"bigint":                      CategoryNumeric,
	"smallint":                    CategoryNumeric,
	"tinyint":                     CategoryNumeric,
	"mediumint":                   CategoryNumeric,
	"decimal":                     CategoryNumeric,
	"numeric":                     CategoryNumeric,
	"float":                       CategoryNumeric,
	"double":                      CategoryNumeric,
	"double precision":            CategoryNumeric,
	"real":                        CategoryNumeric,
	"date":                        CategoryTemporal,
	"datetime":                    CategoryTemporal,
	"timestamp":                   CategoryTemporal,
	"timestamp without time zone": CategoryTemporal,
	"timestamp with time zone":    CategoryTemporal,
	"timestamptz":                 CategoryTemporal,
	"time":                        CategoryTemporal,
	"time without time zone":      CategoryTemporal,
	"time with time zone":         CategoryTemporal,
	"timetz":                      CategoryTemporal,
	"year":                        CategoryTemporal,
}

// CategoryOf 把数据库列类型映射到类型族，未知类型返回 false
// 输入形如 "VARCHAR(50)"、"int unsigned"、"character varying"
func CategoryOf(storageType string) (Category, bool) {
	t := NormalizeStorageType(storageType)
	if c, ok := storageTypeCategory[t]; ok {
		return c, true
	}
	// 多词类型再按第一个词查一次，如 "bigint unsigned"
	if i := strings.IndexByte(t, ' '); i > 0 {
		if c, ok := storageTypeCategory[t[:i]]; ok {
			return c, true
		}
	}
	return "", false
}

func NormalizeStorageType(storageType string) string {
	t := strings.ToLower(strings.TrimSpace(storageType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		rest := ""
		if j := strings.LastIndexByte(t, ')'); j > i {
			rest = t[j+1:]
		}
		t = strings.TrimSpace(t[:i] + rest)
	}
	t = strings.TrimSuffix(t, " unsigned")
	t = strings.TrimSuffix(t, " zerofill")
	return strings.Join(strings.Fields(t), " ")
}

// IsTimeOfDay 只有时刻没有日期的类型，无法提取年份和日期
func IsTimeOfDay(storageType string) bool {
	switch NormalizeStorageType(storageType) {
	case "time", "time without time zone", "time with time zone", "timetz":
		return true
	}
	return false
}

// IsCharacterLike 字符类类型，未在映射表中时仍可作为文本搜索
func IsCharacterLike(storageType string) bool {
	t := NormalizeStorageType(storageType)
	return strings.Contains(t, "char") || strings.Contains(t, "text") || strings.Contains(t, "clob")
}

// ParseEnumValues 解析 MySQL column_type 中的枚举值，如 enum('Male','Female')
// 引号内的逗号属于取值，连续两个引号表示一个引号字符，如 enum('a,b','it''s')
func ParseEnumValues(columnType string) []string {
	start := strings.IndexByte(columnType, '(')
	end := strings.LastIndexByte(columnType, ')')
	if start < 0 || end <= start {
		return nil
	}
	body := columnType[start+1 : end]

	var values []string
	for i := 0; i < len(body); {
		switch c := body[i]; c {
		case ' ', '\t', ',':
			i++
		case '\'', '"':
			var sb strings.Builder
			j := i + 1
			for ; j < len(body); j++ {
				if body[j] != c {
					sb.WriteByte(body[j])
					continue
				}
				if j+1 < len(body) && body[j+1] == c {
					sb.WriteByte(c)
					j++
					continue
				}
				break
			}
			values = append(values, sb.String())
			i = j + 1
		default:
			j := strings.IndexByte(body[i:], ',')
			if j < 0 {
				j = len(body) - i
			}
			if v := strings.TrimSpace(body[i : i+j]); v != "" {
				values = append(values, v)
			}
			i += j
		}
	}
	return values
}
