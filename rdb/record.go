package rdb

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339Nano,
}

// Scan 按 rdb tag 把记录解码到结构体，tag 的第一段为列名
func (r Record) Scan(dest any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "rdb",
		WeaklyTypedInput: true,
		DecodeHook:       stringToTimeHook,
		Result:           dest,
	})
	if err != nil {
		return errors.Wrap(err, "mapstructure.NewDecoder failed")
	}
	if err := decoder.Decode(map[string]any(r)); err != nil {
		return errors.Wrap(err, "decoder.Decode failed")
	}
	return nil
}

// RecordFromStruct 按 rdb tag 把结构体转换为记录，nil 指针字段不输出
func RecordFromStruct(v any) (Record, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, errors.Errorf("expected struct, got %T", v)
	}

	rt := rv.Type()
	record := make(Record, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("rdb")
		if tag == "-" {
			continue
		}
		name := field.Name
		if n, _, _ := strings.Cut(tag, ","); n != "" && !strings.Contains(n, "=") {
			name = n
		}

		fv := rv.Field(i)
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		record[name] = fv.Interface()
	}
	return record, nil
}

func stringToTimeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, data.(string))
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return nil, errors.Wrapf(lastErr, "cannot parse time string %q", data)
}
