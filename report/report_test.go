package report

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
)

var definitions = []Definition{
	{
		Name:  "team_scores",
		Label: "Total score per team",
		SQL:   "SELECT Team_ID, SUM(Score) AS Total FROM `Match` GROUP BY Team_ID ORDER BY Total DESC",
	},
	{
		Name:   "matches_since",
		Label:  "Matches on or after a date",
		SQL:    "SELECT Team_ID, Match_Date FROM `Match` WHERE Match_Date >= ? ORDER BY Match_Date;",
		Params: []string{"date"},
	},
}

func newSQLiteDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range []string{
		`CREATE TABLE "Match" (Team_ID TEXT, Match_Date TEXT, Score INTEGER, PRIMARY KEY (Team_ID, Match_Date))`,
		`INSERT INTO "Match" VALUES ('TM01', '2024-01-01', 3), ('TM01', '2024-02-01', 1), ('TM02', '2024-03-01', 2)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec failed: %v", err)
		}
	}
	return db
}

func TestRunner(t *testing.T) {
	Convey("Runner", t, func() {
		ctx := context.Background()
		runner, err := NewRunner(newSQLiteDB(t), "sqlite3", definitions)
		So(err, ShouldBeNil)

		Convey("List 按定义顺序", func() {
			So(len(runner.List()), ShouldEqual, 2)
			So(runner.List()[0].Name, ShouldEqual, "team_scores")
		})

		Convey("无参数报表", func() {
			records, err := runner.Run(ctx, "team_scores")
			So(err, ShouldBeNil)
			So(len(records), ShouldEqual, 2)
			So(records[0]["Team_ID"], ShouldEqual, "TM01")
			So(records[0]["Total"], ShouldEqual, int64(4))
		})

		Convey("带参数报表", func() {
			records, err := runner.Run(ctx, "matches_since", "2024-02-01")
			So(err, ShouldBeNil)
			So(len(records), ShouldEqual, 2)
			So(records[1]["Team_ID"], ShouldEqual, "TM02")
		})

		Convey("参数个数不匹配", func() {
			_, err := runner.Run(ctx, "matches_since")
			So(errors.Is(err, ErrArgCount), ShouldBeTrue)
		})

		Convey("未知报表", func() {
			_, err := runner.Run(ctx, "missing")
			So(errors.Is(err, ErrUnknownReport), ShouldBeTrue)
		})
	})
}

func TestNewRunner(t *testing.T) {
	db := newSQLiteDB(t)

	_, err := NewRunner(db, "sqlite3", []Definition{{Name: "purge", SQL: "DELETE FROM `Match`"}})
	assert.True(t, errors.Is(err, ErrNotReadOnly))

	_, err = NewRunner(db, "sqlite3", []Definition{{Name: "a", SQL: "SELECT 1"}, {Name: "a", SQL: "SELECT 2"}})
	assert.Error(t, err)

	_, err = NewRunner(db, "pgx", definitions)
	assert.Error(t, err)

	_, err = NewRunner(nil, "sqlite3", definitions)
	assert.Error(t, err)
}

func TestCheckReadOnly(t *testing.T) {
	for _, tc := range []struct {
		sql string
		ok  bool
	}{
		{sql: "SELECT 1", ok: true},
		{sql: "  select * from t;  ", ok: true},
		{sql: "WITH x AS (SELECT 1) SELECT * FROM x", ok: true},
		{sql: "SELECT ';' AS semi", ok: true},
		{sql: "SELECT 1; DROP TABLE t", ok: false},
		{sql: "UPDATE t SET a = 1", ok: false},
		{sql: "", ok: false},
		{sql: ";", ok: false},
	} {
		t.Run(tc.sql, func(t *testing.T) {
			err := checkReadOnly(tc.sql)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrNotReadOnly))
			}
		})
	}
}
