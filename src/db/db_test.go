package db

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewMockDB opens gorm over a sqlmock connection so db tests never need a
// running postgres.
func NewMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("opening stub database connection: %s", err)
	}
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening gorm over the stub connection: %s", err)
	}
	return gormDB, mock
}

func TestGetDbReturnsInjectedHandle(t *testing.T) {
	gormDB, _ := NewMockDB(t)
	NewDB(gormDB)
	t.Cleanup(func() { NewDB(nil) })

	assert.Same(t, gormDB, GetDb())
	assert.Equal(t, "postgres", GetDb().Name())
}

func TestActiveDropCountQuery(t *testing.T) {
	gormDB, mock := NewMockDB(t)
	NewDB(gormDB)
	t.Cleanup(func() { NewDB(nil) })

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "drops" WHERE status = $1`)).
		WithArgs("active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	var count int64
	err := GetDb().Table("drops").Where("status = ?", "active").Count(&count).Error
	assert.NoError(t, err)
	assert.EqualValues(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
