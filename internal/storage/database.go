package storage

import (
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("record not found")

type Database struct {
	db *gorm.DB
}

func NewDatabase(path string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Auto-migrate the schema
	if err := db.AutoMigrate(&PVModule{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) ListModules(skip, limit int) ([]PVModule, error) {
	if limit <= 0 {
		limit = 100
	}
	if skip < 0 {
		skip = 0
	}

	var modules []PVModule
	result := d.db.Order("id").Offset(skip).Limit(limit).Find(&modules)
	if result.Error != nil {
		return nil, result.Error
	}
	return modules, nil
}

func (d *Database) GetModule(id uint) (*PVModule, error) {
	var module PVModule
	result := d.db.First(&module, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &module, nil
}

func (d *Database) CreateModule(module *PVModule) error {
	return d.db.Create(module).Error
}

func (d *Database) SaveModule(module *PVModule) error {
	return d.db.Save(module).Error
}

func (d *Database) DeleteModule(id uint) error {
	result := d.db.Delete(&PVModule{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindModuleByName looks a module up by name, case-insensitively. Returns
// ErrNotFound when no module carries the name.
func (d *Database) FindModuleByName(name string) (*PVModule, error) {
	var module PVModule
	result := d.db.Where("LOWER(name) = LOWER(?)", name).First(&module)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &module, nil
}

func (d *Database) CountModules() (int64, error) {
	var count int64
	result := d.db.Model(&PVModule{}).Count(&count)
	return count, result.Error
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
