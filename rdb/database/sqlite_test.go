package database

import (
	"context"
	"testing"
	"time"

	"github.com/hatlonely/dbkit/ident"
	"github.com/hatlonely/dbkit/rdb"
	"github.com/hatlonely/dbkit/schema"
	"github.com/hatlonely/dbkit/uid/seqid"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

var sqliteDDL = []string{
	`CREATE TABLE Trainer (
		Trainer_ID VARCHAR(10) PRIMARY KEY,
		Name VARCHAR(50) NOT NULL,
		Gender TEXT,
		Joined DATE,
		Age INTEGER
	)`,
	`CREATE TABLE Team (
		Team_ID VARCHAR(10) PRIMARY KEY,
		Team_Name VARCHAR(50),
		Trainer_ID VARCHAR(10) REFERENCES Trainer(Trainer_ID)
	)`,
	`CREATE TABLE "Match" (
		Team_ID VARCHAR(10) NOT NULL,
		Match_Date DATE NOT NULL,
		Score INTEGER,
		PRIMARY KEY (Team_ID, Match_Date)
	)`,
	`CREATE TABLE Note (Body TEXT)`,
}

type trainer struct {
	ID     string    `rdb:"Trainer_ID"`
	Name   string    `rdb:"Name"`
	Gender string    `rdb:"Gender"`
	Joined time.Time `rdb:"Joined"`
	Age    int       `rdb:"Age"`
}

func newSQLiteSQL(t *testing.T) *SQL {
	s, err := NewSQLWithOptions(&SQLOptions{
		Driver:   "sqlite3",
		DSN:      "file::memory:?_foreign_keys=1",
		MaxConns: 1,
	})
	if err != nil {
		t.Fatalf("NewSQLWithOptions failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	for _, ddl := range sqliteDDL {
		if _, err := s.DB().Exec(ddl); err != nil {
			t.Fatalf("create table failed: %v", err)
		}
	}
	return s
}

func sqliteRegistry() *schema.Registry {
	trainerKey, _ := schema.NewSingleKey("Trainer_ID", "T")
	trainerTable, _ := schema.NewTable("Trainer", trainerKey)
	teamKey, _ := schema.NewSingleKey("Team_ID", "TM")
	teamTable, _ := schema.NewTable("Team", teamKey)
	matchKey, _ := schema.NewCompositeKey("Team_ID", "Match_Date")
	matchTable, _ := schema.NewTable("Match", matchKey)
	registry, _ := schema.NewRegistry(trainerTable, teamTable, matchTable)
	return registry
}

func TestSQLiteCRUD(t *testing.T) {
	Convey("SQLite 增删改查", t, func() {
		ctx := context.Background()
		s := newSQLiteSQL(t).WithRegistry(sqliteRegistry()).WithLocker(seqid.NewLocalLocker())

		Convey("自动生成主键", func() {
			id, err := s.InsertWithNextID(ctx, "Trainer", rdb.Record{"Name": "Ash", "Joined": "2024-03-01", "Age": 10})
			So(err, ShouldBeNil)
			So(id, ShouldEqual, "TAAA001")

			id, err = s.InsertWithNextID(ctx, "Trainer", rdb.Record{"Name": "Misty"})
			So(err, ShouldBeNil)
			So(id, ShouldEqual, "TAAA002")

			next, err := s.NextID(ctx, "Trainer", "Trainer_ID", "T")
			So(err, ShouldBeNil)
			So(next, ShouldEqual, "TAAA003")

			Convey("读取并解码", func() {
				record, err := s.Get(ctx, "Trainer", rdb.Record{"Trainer_ID": "TAAA001"})
				So(err, ShouldBeNil)
				So(record["Name"], ShouldEqual, "Ash")

				var tr trainer
				So(record.Scan(&tr), ShouldBeNil)
				So(tr.ID, ShouldEqual, "TAAA001")
				So(tr.Age, ShouldEqual, 10)
				So(tr.Joined.Format(time.DateOnly), ShouldEqual, "2024-03-01")
			})

			Convey("更新", func() {
				n, err := s.Update(ctx, "Trainer", rdb.Record{"Trainer_ID": "TAAA002"}, rdb.Record{"Age": 12})
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)

				n, err = s.Update(ctx, "Trainer", rdb.Record{"Trainer_ID": "TZZZ999"}, rdb.Record{"Age": 12})
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})

			Convey("浏览按主键排序", func() {
				records, err := s.View(ctx, "Trainer", 0)
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, 2)
				So(records[0]["Trainer_ID"], ShouldEqual, "TAAA001")

				records, err = s.View(ctx, "Trainer", 1)
				So(err, ShouldBeNil)
				So(len(records), ShouldEqual, 1)
			})

			Convey("主键重复", func() {
				err := s.Insert(ctx, "Trainer", rdb.Record{"Trainer_ID": "TAAA001", "Name": "Brock"})
				So(errors.Is(err, rdb.ErrDuplicateKey), ShouldBeTrue)
				So(errors.Is(err, rdb.ErrStore), ShouldBeTrue)
			})

			Convey("被引用的记录不能删除", func() {
				So(s.Insert(ctx, "Team", rdb.Record{"Team_ID": "TM01", "Team_Name": "Red", "Trainer_ID": "TAAA001"}), ShouldBeNil)

				_, err := s.Delete(ctx, "Trainer", rdb.Record{"Trainer_ID": "TAAA001"})
				So(errors.Is(err, rdb.ErrReferenced), ShouldBeTrue)

				n, err := s.Delete(ctx, "Trainer", rdb.Record{"Trainer_ID": "TAAA002"})
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("复合主键", func() {
			So(s.Insert(ctx, "Match", rdb.Record{"Team_ID": "TM01", "Match_Date": "2024-05-01", "Score": 3}), ShouldBeNil)

			_, err := s.Delete(ctx, "Match", rdb.Record{"Team_ID": "TM01"})
			So(errors.Is(err, rdb.ErrMissingKey), ShouldBeTrue)

			_, err = s.InsertWithNextID(ctx, "Match", rdb.Record{"Score": 1})
			So(errors.Is(err, rdb.ErrNoPrefix), ShouldBeTrue)

			n, err := s.Delete(ctx, "Match", rdb.Record{"Team_ID": "TM01", "Match_Date": "2024-05-01"})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})

		Convey("未注册的表不能自动生成主键", func() {
			_, err := s.InsertWithNextID(ctx, "Note", rdb.Record{"Body": "hello"})
			So(errors.Is(err, rdb.ErrUnknownTable), ShouldBeTrue)
		})
	})
}

func TestSQLiteIntrospect(t *testing.T) {
	Convey("SQLite 目录查询", t, func() {
		ctx := context.Background()
		s := newSQLiteSQL(t)

		Convey("Tables", func() {
			tables, err := s.Tables(ctx)
			So(err, ShouldBeNil)
			So(tables, ShouldResemble, []string{"Match", "Note", "Team", "Trainer"})
		})

		Convey("TypedColumns", func() {
			columns, err := s.TypedColumns(ctx, "Trainer")
			So(err, ShouldBeNil)
			So(columns, ShouldResemble, []schema.TypedColumn{
				{Name: ident.MustValidate("Trainer_ID"), Category: schema.CategoryText},
				{Name: ident.MustValidate("Name"), Category: schema.CategoryText},
				{Name: ident.MustValidate("Gender"), Category: schema.CategoryText},
				{Name: ident.MustValidate("Joined"), Category: schema.CategoryTemporal},
				{Name: ident.MustValidate("Age"), Category: schema.CategoryNumeric},
			})
		})

		Convey("TextColumns", func() {
			columns, err := s.TextColumns(ctx, "Trainer")
			So(err, ShouldBeNil)
			So(columns, ShouldResemble, []string{"Trainer_ID", "Name", "Gender"})
		})

		Convey("Describe 外键", func() {
			table, err := s.Describe(ctx, "Team")
			So(err, ShouldBeNil)
			So(table.IsComposite(), ShouldBeFalse)
			So(table.KeyColumns()[0].String(), ShouldEqual, "Team_ID")

			column, ok := table.Column("Trainer_ID")
			So(ok, ShouldBeTrue)
			So(column.Kind, ShouldResemble, schema.Ref{
				Table:  ident.MustValidate("Trainer"),
				Column: ident.MustValidate("Trainer_ID"),
			})
		})

		Convey("Describe 复合主键", func() {
			table, err := s.Describe(ctx, "Match")
			So(err, ShouldBeNil)
			So(table.IsComposite(), ShouldBeTrue)
			So(len(table.KeyColumns()), ShouldEqual, 2)
			So(table.KeyColumns()[0].String(), ShouldEqual, "Team_ID")
			So(table.KeyColumns()[1].String(), ShouldEqual, "Match_Date")
		})

		Convey("没有主键的表", func() {
			_, err := s.Describe(ctx, "Note")
			So(err, ShouldNotBeNil)

			registry, err := s.DescribeAll(ctx)
			So(err, ShouldBeNil)
			So(registry.Len(), ShouldEqual, 3)
			_, ok := registry.Table("Note")
			So(ok, ShouldBeFalse)
		})

		Convey("不存在的表", func() {
			_, err := s.Describe(ctx, "Missing")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSQLiteSearch(t *testing.T) {
	Convey("SQLite 搜索", t, func() {
		ctx := context.Background()
		s := newSQLiteSQL(t)

		So(s.Insert(ctx, "Trainer", rdb.Record{"Trainer_ID": "TAAA001", "Name": "Ash", "Joined": "2024-03-01", "Age": 10}), ShouldBeNil)
		So(s.Insert(ctx, "Trainer", rdb.Record{"Trainer_ID": "TAAA002", "Name": "Misty", "Joined": "2023-07-15", "Age": 12}), ShouldBeNil)
		So(s.Insert(ctx, "Team", rdb.Record{"Team_ID": "TM01", "Team_Name": "Class of 2024", "Trainer_ID": "TAAA002"}), ShouldBeNil)
		So(s.Insert(ctx, "Match", rdb.Record{"Team_ID": "TM01", "Match_Date": "2023-05-01", "Score": 3}), ShouldBeNil)
		So(s.Insert(ctx, "Note", rdb.Record{"Body": "nothing here"}), ShouldBeNil)

		Convey("大小写不敏感的子串匹配", func() {
			records, err := s.Search(ctx, "Trainer", "mis")
			So(err, ShouldBeNil)
			So(len(records), ShouldEqual, 1)
			So(records[0]["Name"], ShouldEqual, "Misty")
		})

		Convey("数值匹配", func() {
			records, err := s.Search(ctx, "Trainer", "12")
			So(err, ShouldBeNil)
			So(len(records), ShouldEqual, 1)
			So(records[0]["Trainer_ID"], ShouldEqual, "TAAA002")
		})

		Convey("年份匹配", func() {
			records, err := s.Search(ctx, "Trainer", "2024")
			So(err, ShouldBeNil)
			So(len(records), ShouldEqual, 1)
			So(records[0]["Trainer_ID"], ShouldEqual, "TAAA001")
		})

		Convey("日期匹配", func() {
			records, err := s.Search(ctx, "Trainer", "2023-07-15")
			So(err, ShouldBeNil)
			So(len(records), ShouldEqual, 1)
			So(records[0]["Name"], ShouldEqual, "Misty")
		})

		Convey("没有匹配", func() {
			records, err := s.Search(ctx, "Trainer", "Brock")
			So(err, ShouldBeNil)
			So(records, ShouldBeEmpty)
		})

		Convey("跨表搜索只保留有结果的表", func() {
			results, err := s.SearchAll(ctx, "2024")
			So(err, ShouldBeNil)
			So(len(results), ShouldEqual, 2)
			So(len(results["Trainer"]), ShouldEqual, 1)
			So(len(results["Team"]), ShouldEqual, 1)
			_, ok := results["Match"]
			So(ok, ShouldBeFalse)
		})
	})
}
