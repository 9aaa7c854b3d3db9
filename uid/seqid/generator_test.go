package seqid

import (
	"bytes"
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hatlonely/dbkit/ident"
	"github.com/hatlonely/dbkit/log/logger"
	"github.com/hatlonely/dbkit/rdb/dialect"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trainerMaxQuery = `SELECT "Trainer_ID" FROM "Trainer" WHERE "Trainer_ID" LIKE ? ESCAPE '!' ` +
	`ORDER BY LENGTH("Trainer_ID") DESC, "Trainer_ID" DESC LIMIT 1`

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestGeneratorNextIDStatement(t *testing.T) {
	ctx := context.Background()

	t.Run("no rows returns first id", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(trainerMaxQuery).WithArgs("T%").
			WillReturnRows(sqlmock.NewRows([]string{"Trainer_ID"}))

		id, err := NewGenerator(db, dialect.SQLite{}, nil).NextID(ctx, "Trainer", "Trainer_ID", "T")
		require.NoError(t, err)
		assert.Equal(t, "TAAA001", id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("increments max id", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(trainerMaxQuery).WithArgs("T%").
			WillReturnRows(sqlmock.NewRows([]string{"Trainer_ID"}).AddRow("TAAZ999"))

		id, err := NewGenerator(db, dialect.SQLite{}, nil).NextID(ctx, "Trainer", "Trainer_ID", "T")
		require.NoError(t, err)
		assert.Equal(t, "TABA001", id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("underscore in prefix is escaped", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(trainerMaxQuery).WithArgs("T!_X%").
			WillReturnRows(sqlmock.NewRows([]string{"Trainer_ID"}))

		id, err := NewGenerator(db, dialect.SQLite{}, nil).NextID(ctx, "Trainer", "Trainer_ID", "T_X")
		require.NoError(t, err)
		assert.Equal(t, "T_XAAA001", id)
	})

	t.Run("mysql quoting", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery("SELECT `Match_ID` FROM `Match` WHERE `Match_ID` LIKE ? ESCAPE '!' " +
			"ORDER BY LENGTH(`Match_ID`) DESC, `Match_ID` DESC LIMIT 1").WithArgs("M%").
			WillReturnRows(sqlmock.NewRows([]string{"Match_ID"}).AddRow("MAAB010"))

		id, err := NewGenerator(db, dialect.MySQL{}, nil).NextID(ctx, "Match", "Match_ID", "M")
		require.NoError(t, err)
		assert.Equal(t, "MAAB011", id)
	})

	t.Run("postgres placeholders", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`SELECT "Team_ID" FROM "Team" WHERE "Team_ID" LIKE $1 ESCAPE '!' ` +
			`ORDER BY LENGTH("Team_ID") DESC, "Team_ID" DESC LIMIT 1`).WithArgs("TM%").
			WillReturnRows(sqlmock.NewRows([]string{"Team_ID"}))

		id, err := NewGenerator(db, dialect.Postgres{}, nil).NextID(ctx, "Team", "Team_ID", "TM")
		require.NoError(t, err)
		assert.Equal(t, "TMAAA001", id)
	})

	t.Run("invalid identifiers never reach the store", func(t *testing.T) {
		db, mock := newMock(t)
		g := NewGenerator(db, dialect.SQLite{}, nil)

		_, err := g.NextID(ctx, "Trainer; DROP TABLE x", "Trainer_ID", "T")
		assert.True(t, errors.Is(err, ident.ErrInvalidIdentifier))
		_, err = g.NextID(ctx, "Trainer", "Trainer-ID", "T")
		assert.True(t, errors.Is(err, ident.ErrInvalidIdentifier))
		_, err = g.NextID(ctx, "Trainer", "Trainer_ID", "T%")
		assert.True(t, errors.Is(err, ident.ErrInvalidIdentifier))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unparseable max id falls back with warning", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(trainerMaxQuery).WithArgs("T%").
			WillReturnRows(sqlmock.NewRows([]string{"Trainer_ID"}).AddRow("T-legacy"))

		var buf bytes.Buffer
		l, err := logger.NewSLogWithWriter(&logger.SLogOptions{Level: "warn"}, &buf)
		require.NoError(t, err)

		id, err := NewGenerator(db, dialect.SQLite{}, nil).WithLogger(l).NextID(ctx, "Trainer", "Trainer_ID", "T")
		require.NoError(t, err)
		assert.Equal(t, "TAAA001", id)
		assert.Contains(t, buf.String(), "unparseable max id")
		assert.Contains(t, buf.String(), "T-legacy")
	})

	t.Run("unparseable max id in strict mode", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(trainerMaxQuery).WithArgs("T%").
			WillReturnRows(sqlmock.NewRows([]string{"Trainer_ID"}).AddRow("T-legacy"))

		_, err := NewGenerator(db, dialect.SQLite{}, &GeneratorOptions{Strict: true}).NextID(ctx, "Trainer", "Trainer_ID", "T")
		assert.True(t, errors.Is(err, ErrUnparseableID))
	})

	t.Run("query error", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(trainerMaxQuery).WithArgs("T%").WillReturnError(errors.New("connection lost"))

		_, err := NewGenerator(db, dialect.SQLite{}, nil).NextID(ctx, "Trainer", "Trainer_ID", "T")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "connection lost")
	})
}

func openSQLite(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE Trainer (Trainer_ID TEXT PRIMARY KEY, Name TEXT NOT NULL)`)
	require.NoError(t, err)
	return db
}

func TestGeneratorSQLite(t *testing.T) {
	Convey("在 sqlite 上生成顺序 ID", t, func() {
		db := openSQLite(t)
		ctx := context.Background()
		g := NewGenerator(db, dialect.SQLite{}, nil)

		insert := func(id string) {
			_, err := db.Exec(`INSERT INTO Trainer (Trainer_ID, Name) VALUES (?, ?)`, id, "n")
			So(err, ShouldBeNil)
		}

		Convey("空表返回 TAAA001，插入后返回 TAAA002", func() {
			id, err := g.NextID(ctx, "Trainer", "Trainer_ID", "T")
			So(err, ShouldBeNil)
			So(id, ShouldEqual, "TAAA001")

			again, err := g.NextID(ctx, "Trainer", "Trainer_ID", "T")
			So(err, ShouldBeNil)
			So(again, ShouldEqual, id)

			insert(id)
			id, err = g.NextID(ctx, "Trainer", "Trainer_ID", "T")
			So(err, ShouldBeNil)
			So(id, ShouldEqual, "TAAA002")
		})

		Convey("字母块变长后仍然递增", func() {
			insert("TZZZ999")
			id, err := g.NextID(ctx, "Trainer", "Trainer_ID", "T")
			So(err, ShouldBeNil)
			So(id, ShouldEqual, "TAAAA001")

			insert(id)
			id, err = g.NextID(ctx, "Trainer", "Trainer_ID", "T")
			So(err, ShouldBeNil)
			So(id, ShouldEqual, "TAAAA002")
		})

		Convey("Reserve 在锁内生成并写入", func() {
			g.WithLocker(NewLocalLocker())

			var wg sync.WaitGroup
			ids := make([]string, 20)
			errs := make([]error, 20)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					ids[i], errs[i] = g.Reserve(ctx, "Trainer", "Trainer_ID", "T", func(ctx context.Context, id string) error {
						_, err := db.ExecContext(ctx, `INSERT INTO Trainer (Trainer_ID, Name) VALUES (?, ?)`, id, "n")
						return err
					})
				}(i)
			}
			wg.Wait()

			seen := map[string]bool{}
			for i := range ids {
				So(errs[i], ShouldBeNil)
				So(seen[ids[i]], ShouldBeFalse)
				seen[ids[i]] = true
			}
			So(seen["TAAA001"], ShouldBeTrue)
			So(seen["TAAA020"], ShouldBeTrue)
		})

		Convey("Reserve 写入失败时返回错误", func() {
			_, err := g.Reserve(ctx, "Trainer", "Trainer_ID", "T", func(ctx context.Context, id string) error {
				return errors.New("insert failed")
			})
			So(err, ShouldNotBeNil)

			var count int
			So(db.QueryRow(`SELECT COUNT(*) FROM Trainer`).Scan(&count), ShouldBeNil)
			So(count, ShouldEqual, 0)
		})
	})
}
