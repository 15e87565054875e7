package gormstore_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mickamy/gaudit"
	"github.com/mickamy/gaudit/expr"
	"github.com/mickamy/gaudit/gormstore"
	"github.com/mickamy/gaudit/record"
)

type Account struct {
	ID      int64
	Owner   string
	Balance float64
}

func setupMockDB(t *testing.T) (*gormstore.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: db, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	store, err := gormstore.New(gdb)
	require.NoError(t, err)
	return store, mock
}

func accountAudit(t *testing.T) *gaudit.TableDefinition {
	t.Helper()
	m := gaudit.NewModel(t.Name())
	require.NoError(t, gaudit.Register[Account](m, gaudit.Auditable(gaudit.KeepCurrentAndOld, "")))
	sets, err := m.EntitySets()
	require.NoError(t, err)
	defs, err := gaudit.Discover(sets, gaudit.TemplateNaming("{0}_Audit", "{0}_Old"), "")
	require.NoError(t, err)
	def, ok := defs.Lookup("Account")
	require.True(t, ok)
	return def
}

func TestStore_Persist_Insert(t *testing.T) {
	t.Parallel()

	store, mock := setupMockDB(t)
	acc := &Account{Owner: "ann", Balance: 10}
	require.NoError(t, store.Add(acc))

	row := record.NewRow(2)
	row.Set("Owner", record.String("ann"))
	row.Set(gaudit.ColumnAuditType, record.Int(int64(gaudit.AuditInsert)))
	store.RecordSet("Account_Audit").Add(row)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `accounts` (`owner`,`balance`)")).
		WithArgs("ann", 10.0).
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `Account_Audit` (`AuditType`,`Owner`)")).
		WithArgs(int64(gaudit.AuditInsert), "ann").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	n, err := store.Persist(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(5), acc.ID)
	assert.Equal(t, gaudit.Unchanged, store.State(acc))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Persist_UpdateDelete(t *testing.T) {
	t.Parallel()

	store, mock := setupMockDB(t)
	kept := &Account{ID: 3, Owner: "bob", Balance: 1}
	gone := &Account{ID: 4, Owner: "cid"}
	require.NoError(t, store.Attach(kept))
	require.NoError(t, store.Attach(gone))
	kept.Balance = 2
	require.NoError(t, store.Remove(gone))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `accounts` SET `balance`=? WHERE `id` = ?")).
		WithArgs(2.0, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `accounts` WHERE `accounts`.`id` = ?")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := store.Persist(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, gaudit.Unchanged, store.State(kept))
	assert.Equal(t, gaudit.Detached, store.State(gone))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Persist_Nothing(t *testing.T) {
	t.Parallel()

	store, mock := setupMockDB(t)
	n, err := store.Persist(context.Background(), true)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Persist_Rollback(t *testing.T) {
	t.Parallel()

	store, mock := setupMockDB(t)
	acc := &Account{Owner: "dee"}
	require.NoError(t, store.Add(acc))

	errDown := errors.New("connection reset")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `accounts`").WillReturnError(errDown)
	mock.ExpectRollback()

	_, err := store.Persist(context.Background(), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, gaudit.Added, store.State(acc))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Query(t *testing.T) {
	t.Parallel()

	def := accountAudit(t)
	v := expr.For[Account]()
	created := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	columns := []string{"AuditId", "AuditCreateDate", "AuditCreatorUserId", "AuditType", "ID", "Owner", "Balance", "Balance_Old"}

	t.Run("pushed down", func(t *testing.T) {
		t.Parallel()
		store, mock := setupMockDB(t)

		p, err := expr.Rewrite(expr.Equal(v.AuditType(), expr.Val(int(gaudit.AuditUpdate))), def)
		require.NoError(t, err)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `Account_Audit` WHERE (`AuditType` = ?) ORDER BY `AuditId`")).
			WithArgs(int64(gaudit.AuditUpdate)).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(int64(2), created, "alice", int64(gaudit.AuditUpdate), int64(3), "bob", 2.0, 1.0))

		rows, err := store.Query(context.Background(), def.QualifiedName(), p)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		old, ok := rows[0].Get("Balance_Old")
		require.True(t, ok)
		assert.Equal(t, 1.0, old.Float())

		views, err := gaudit.Materialize[Account](def, rows)
		require.NoError(t, err)
		assert.Equal(t, Account{ID: 3, Owner: "bob", Balance: 2}, views[0].CurrentData)
		assert.Equal(t, 1.0, views[0].OldData.Balance)
		assert.True(t, created.Equal(views[0].AuditCreateDate))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("filtered in memory", func(t *testing.T) {
		t.Parallel()
		store, mock := setupMockDB(t)

		startsWithA := expr.Call{
			Name:    "startsWithA",
			Args:    []expr.Node{expr.Col("Owner")},
			Returns: expr.TypeBool,
			Fn: func(args []record.Value) (record.Value, error) {
				return record.Bool(strings.HasPrefix(args[0].Str(), "a")), nil
			},
		}
		p, err := expr.Rewrite(expr.All(expr.Equal(v.AuditType(), expr.Val(int(gaudit.AuditUpdate))), startsWithA), def)
		require.NoError(t, err)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `Account_Audit` ORDER BY `AuditId`")).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(int64(1), created, "x", int64(gaudit.AuditUpdate), int64(1), "ann", 1.0, nil).
				AddRow(int64(2), created, "x", int64(gaudit.AuditUpdate), int64(2), "bob", 1.0, nil).
				AddRow(int64(3), created, "x", int64(gaudit.AuditInsert), int64(3), "amy", 1.0, nil))

		rows, err := store.Query(context.Background(), def.QualifiedName(), p)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		owner, _ := rows[0].Get("Owner")
		assert.Equal(t, "ann", owner.Str())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("all rows", func(t *testing.T) {
		t.Parallel()
		store, mock := setupMockDB(t)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `Account_Audit` ORDER BY `AuditId`")).
			WillReturnRows(sqlmock.NewRows(columns))

		rows, err := store.Query(context.Background(), def.QualifiedName(), nil)
		require.NoError(t, err)
		assert.Empty(t, rows)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_Migrate(t *testing.T) {
	t.Parallel()

	store, mock := setupMockDB(t)
	def := accountAudit(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `Account_Audit` ( `AuditId` BIGINT AUTO_INCREMENT PRIMARY KEY, `ID` BIGINT, `ID_Old` BIGINT, `Owner` TEXT, `Owner_Old` TEXT, `Balance` DOUBLE, `Balance_Old` DOUBLE, `AuditCreateDate` DATETIME(6), `AuditCreatorUserId` TEXT, `AuditType` BIGINT )")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background(), []*gaudit.TableDefinition{def}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
