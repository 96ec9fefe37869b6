package repo

import (
	"Go_Uploader/config"
	"Go_Uploader/model"
	"database/sql"
	"errors"
	"log"
	"net"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	gormMysql "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var Db *gorm.DB

// AutoMigrate creates or updates the file_record and chunk_record tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.FileRecord{}, &model.ChunkRecord{})
}

// InitDatabase opens the database selected by DB_DRIVER.
func InitDatabase() {
	switch config.AppConfig.DBDriver {
	case "sqlite":
		InitSqlite(config.AppConfig.SQLitePath)
	default:
		InitMysql()
	}
}

// InitMysql initializes the main MySQL connection.
func InitMysql() {
	dsn := mysqlDSN(config.AppConfig.DBName)
	db, err := gorm.Open(gormMysql.Open(dsn), &gorm.Config{})
	if err != nil && isUnknownDatabaseError(err) {
		if createErr := ensureMySQLDatabase(config.AppConfig.DBName); createErr != nil {
			log.Fatalf("create mysql database %s fail: %v", config.AppConfig.DBName, createErr)
		}
		db, err = gorm.Open(gormMysql.Open(dsn), &gorm.Config{})
	}
	if err != nil {
		log.Fatalf("init mysql fail: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("get sql db fail: %v", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := AutoMigrate(db); err != nil {
		log.Fatalf("migrate upload tables fail: %v", err)
	}
	log.Println("init mysql success")
	Db = db
}

// InitSqlite initializes a SQLite database, mostly for single-node setups.
func InitSqlite(path string) {
	db, err := OpenSqlite(path)
	if err != nil {
		log.Fatalf("init sqlite %s fail: %v", path, err)
	}
	log.Printf("init sqlite success: %s", path)
	Db = db
}

// OpenSqlite opens and migrates a SQLite database. SQLite serialises writers,
// so the pool is pinned to one connection.
func OpenSqlite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// mysqlDSN builds the DSN for dbName; an empty name connects to the server
// without selecting a schema.
func mysqlDSN(dbName string) string {
	cfg := mysqlDriver.NewConfig()
	cfg.User = config.AppConfig.DBUser
	cfg.Passwd = config.AppConfig.DBPass
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(config.AppConfig.DBHost, config.AppConfig.DBPort)
	cfg.DBName = dbName
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

func isUnknownDatabaseError(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1049
	}
	return strings.Contains(strings.ToLower(err.Error()), "unknown database")
}

func ensureMySQLDatabase(dbName string) error {
	dbName = strings.TrimSpace(dbName)
	if dbName == "" {
		return errors.New("empty database name")
	}

	serverDB, err := sql.Open("mysql", mysqlDSN(""))
	if err != nil {
		return err
	}
	defer serverDB.Close()

	if err = serverDB.Ping(); err != nil {
		return err
	}

	_, err = serverDB.Exec(
		"CREATE DATABASE IF NOT EXISTS " + quoteMySQLIdentifier(dbName) + " CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci",
	)
	return err
}

func quoteMySQLIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
