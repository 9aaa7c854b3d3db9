package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockOptions struct {
	Addr    string        `cfg:"addr" def:"localhost:6379"`
	TTL     time.Duration `cfg:"ttl" def:"5s"`
	Enabled bool          `cfg:"enabled"`
}

type databaseOptions struct {
	Driver    string   `cfg:"driver" def:"mysql" validate:"oneof=mysql sqlite3 pgx"`
	Host      string   `cfg:"host" def:"localhost"`
	Port      string   `cfg:"port" def:"3306"`
	Password  string   `cfg:"password"`
	ViewLimit int      `cfg:"viewLimit" def:"100"`
	Tags      []string `cfg:"tags"`
}

type appOptions struct {
	Database databaseOptions `cfg:"database"`
	Lock     lockOptions     `cfg:"lock"`
	Reports  []struct {
		Name string `cfg:"name" validate:"required"`
		SQL  string `cfg:"sql"`
	} `cfg:"reports"`
}

const yamlConfig = `
database:
  driver: sqlite3
  host: db.local
  viewLimit: "20"
  tags: a,b
lock:
  enabled: true
  ttl: 2s
reports:
  - name: top
    sql: SELECT 1
`

func writeConfig(t *testing.T, name string, content string) string {
	filename := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(filename, []byte(content), 0644))
	return filename
}

func TestConfigConvertTo(t *testing.T) {
	Convey("ConvertTo", t, func() {
		Convey("yaml 覆盖默认值", func() {
			c, err := NewConfig(writeConfig(t, "dbkit.yaml", yamlConfig))
			So(err, ShouldBeNil)

			var options appOptions
			So(c.ConvertTo(&options), ShouldBeNil)
			So(options.Database.Driver, ShouldEqual, "sqlite3")
			So(options.Database.Host, ShouldEqual, "db.local")
			So(options.Database.Port, ShouldEqual, "3306")
			So(options.Database.ViewLimit, ShouldEqual, 20)
			So(options.Database.Tags, ShouldResemble, []string{"a", "b"})
			So(options.Lock.Enabled, ShouldBeTrue)
			So(options.Lock.TTL, ShouldEqual, 2*time.Second)
			So(options.Lock.Addr, ShouldEqual, "localhost:6379")
			So(len(options.Reports), ShouldEqual, 1)
			So(options.Reports[0].Name, ShouldEqual, "top")
		})

		Convey("校验失败", func() {
			c, err := NewConfigWithBytes([]byte(`{"database": {"driver": "oracle"}}`), FormatJson)
			So(err, ShouldBeNil)

			var options appOptions
			So(c.ConvertTo(&options), ShouldNotBeNil)
		})

		Convey("子配置", func() {
			c, err := NewConfigWithBytes([]byte(yamlConfig), FormatYaml)
			So(err, ShouldBeNil)

			var lock lockOptions
			So(c.Sub("lock").ConvertTo(&lock), ShouldBeNil)
			So(lock.TTL, ShouldEqual, 2*time.Second)

			var name string
			So(c.Sub("reports[0].name").ConvertTo(&name), ShouldBeNil)
			So(name, ShouldEqual, "top")

			So(c.Sub("missing.key").Exists(), ShouldBeFalse)

			var missing lockOptions
			So(c.Sub("missing").ConvertTo(&missing), ShouldBeNil)
			So(missing.Addr, ShouldEqual, "localhost:6379")
		})
	})
}

func TestConfigFormats(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
	}{
		{name: "dbkit.yml", content: "database:\n  driver: pgx\n  viewLimit: 7\n"},
		{name: "dbkit.toml", content: "[database]\ndriver = \"pgx\"\nviewLimit = 7\n"},
		{name: "dbkit.json", content: `{"database": {"driver": "pgx", "viewLimit": 7}}`},
		{name: "dbkit.ini", content: "[database]\ndriver = pgx\nviewLimit = 7\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewConfig(writeConfig(t, tc.name, tc.content))
			require.NoError(t, err)

			var options appOptions
			require.NoError(t, c.ConvertTo(&options))
			assert.Equal(t, "pgx", options.Database.Driver)
			assert.Equal(t, 7, options.Database.ViewLimit)
		})
	}

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := NewConfig("dbkit.xml")
		assert.Error(t, err)
	})

	t.Run("ini nested section", func(t *testing.T) {
		c, err := NewConfigWithBytes([]byte("[lock]\nenabled = true\n[lock.redis]\naddr = redis:6379\n"), FormatIni)
		require.NoError(t, err)

		var addr string
		require.NoError(t, c.Sub("lock.redis.addr").ConvertTo(&addr))
		assert.Equal(t, "redis:6379", addr)
	})
}

func TestConfigOverrideWithEnv(t *testing.T) {
	c, err := NewConfigWithBytes([]byte(yamlConfig), FormatYaml)
	require.NoError(t, err)

	env := map[string]string{
		"DBKIT_DATABASE_HOST":      "env.local",
		"DBKIT_DATABASE_VIEWLIMIT": "50",
		"DBKIT_REPORTS_0_NAME":     "bottom",
		"DBKIT_DATABASE_PASSWORD":  "ignored",
	}
	c.OverrideWithEnv("dbkit", func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	var options appOptions
	require.NoError(t, c.ConvertTo(&options))
	assert.Equal(t, "env.local", options.Database.Host)
	assert.Equal(t, 50, options.Database.ViewLimit)
	assert.Equal(t, "bottom", options.Reports[0].Name)
	// 配置中不存在的 key 不会被环境变量创建
	assert.Empty(t, options.Database.Password)
}

func TestSetDefaults(t *testing.T) {
	Convey("SetDefaults", t, func() {
		Convey("只填零值字段", func() {
			options := databaseOptions{Host: "custom"}
			So(SetDefaults(&options), ShouldBeNil)
			So(options.Host, ShouldEqual, "custom")
			So(options.Driver, ShouldEqual, "mysql")
			So(options.ViewLimit, ShouldEqual, 100)
		})

		Convey("嵌套结构体和 duration", func() {
			var options appOptions
			So(SetDefaults(&options), ShouldBeNil)
			So(options.Lock.TTL, ShouldEqual, 5*time.Second)
			So(options.Database.Port, ShouldEqual, "3306")
		})

		Convey("非指针返回错误", func() {
			So(SetDefaults(databaseOptions{}), ShouldNotBeNil)
			So(SetDefaults(nil), ShouldNotBeNil)
		})

		Convey("非法默认值", func() {
			var options struct {
				N int `def:"abc"`
			}
			So(SetDefaults(&options), ShouldNotBeNil)
		})
	})
}
