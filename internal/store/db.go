package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/dwarvesf/settlement-backend/internal/model"
	"github.com/dwarvesf/settlement-backend/internal/types/environments"
	"github.com/dwarvesf/settlement-backend/internal/utils/config"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the database selected by DB_DRIVER. Postgres is the
// production store; sqlite serves local runs.
func Open(appConfig *config.AppConfig, logger *logger.Logger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: false,
		},
		// stored timestamps are compared as text by sqlite
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
	if appConfig.Environment.IsProduction() {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(appConfig.Database.Driver) {
	case DriverSQLite:
		db, err = gorm.Open(sqlite.Open(sqliteDSN(appConfig.Database.SQLitePath)), gormConfig)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite")
		}
		// sqlite allows a single writer; one connection keeps writes serialised
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "get sqlite handle")
		}
		sqlDB.SetMaxOpenConns(1)
	case DriverPostgres, "":
		db, err = gorm.Open(postgres.Open(postgresDSN(appConfig.Postgres)), gormConfig)
		if err != nil {
			return nil, errors.Wrap(err, "open postgres")
		}
	default:
		return nil, errors.Errorf("unsupported database driver %q", appConfig.Database.Driver)
	}

	logger.Info("[Store][Open] database connected", map[string]string{
		"driver": appConfig.Database.Driver,
		"env":    string(appConfig.Environment),
	})

	if appConfig.Environment == environments.Development && appConfig.Database.Driver == DriverSQLite {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}

	return db, nil
}

// AutoMigrate creates the tables from the models. Postgres deployments use the
// SQL files under migrations/schema instead.
func AutoMigrate(db *gorm.DB) error {
	return errors.Wrap(db.AutoMigrate(&model.SettlementRecord{}, &model.Deposit{}), "auto migrate")
}

func postgresDSN(c config.DBConnection) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host,
		c.User,
		c.Pass,
		c.Name,
		c.Port,
		c.SSLMode,
	)
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
