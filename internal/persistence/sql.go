// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ffutop/sp-gateway/internal/fault"
)

// SQLStorage implements persistence using a SQL database.
// Tables are created on Open. Writes are upserts.
type SQLStorage struct {
	driver string
	dsn    string
	db     *sql.DB
}

// NewSQLStorage creates a new SQLStorage.
// Note: The driver (e.g., sqlite3) must be imported in main.go
func NewSQLStorage(driver, dsn string) *SQLStorage {
	return &SQLStorage{
		driver: driver,
		dsn:    dsn,
	}
}

// Open connects to the DB and creates the schema.
func (s *SQLStorage) Open() error {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	s.db = db

	if err := s.initSchema(); err != nil {
		db.Close()
		s.db = nil
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

func (s *SQLStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS templates (
		ns TEXT,
		id INTEGER,
		data BLOB,
		PRIMARY KEY (ns, id)
	);
	CREATE TABLE IF NOT EXISTS params (
		idx INTEGER PRIMARY KEY,
		value INTEGER
	);
	CREATE TABLE IF NOT EXISTS system (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLStorage) ready() error {
	if s.db == nil {
		return fmt.Errorf("persistence: storage not open: %w", fault.ErrStorage)
	}
	return nil
}

func (s *SQLStorage) ReadTemplate(ns Namespace, id int) (Template, error) {
	if err := checkTemplateID(ns, id); err != nil {
		return Template{}, err
	}
	if err := s.ready(); err != nil {
		return Template{}, err
	}

	var data []byte
	err := s.db.QueryRow("SELECT data FROM templates WHERE ns = ? AND id = ?", ns.String(), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErasedTemplate(), nil
	}
	if err != nil {
		return Template{}, fmt.Errorf("persistence: read %s template %d: %v: %w", ns, id, err, fault.ErrStorage)
	}

	t := ErasedTemplate()
	copy(t[:], data)
	return t, nil
}

func (s *SQLStorage) WriteTemplate(ns Namespace, id int, t Template) error {
	if err := checkTemplateID(ns, id); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	query := "INSERT INTO templates (ns, id, data) VALUES (?, ?, ?) ON CONFLICT(ns, id) DO UPDATE SET data=excluded.data"
	if _, err := s.db.Exec(query, ns.String(), id, t[:]); err != nil {
		return fmt.Errorf("persistence: write %s template %d: %v: %w", ns, id, err, fault.ErrStorage)
	}
	return nil
}

func (s *SQLStorage) GetParam(index int) (uint16, error) {
	if err := checkParamIndex(index); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}
	var v int64
	err := s.db.QueryRow("SELECT value FROM params WHERE idx = ?", index).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotSet
	}
	if err != nil {
		return 0, fmt.Errorf("persistence: read parameter %d: %v: %w", index, err, fault.ErrStorage)
	}
	return uint16(v), nil
}

func (s *SQLStorage) SetParam(index int, value uint16) error {
	if err := checkParamIndex(index); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	query := "INSERT INTO params (idx, value) VALUES (?, ?) ON CONFLICT(idx) DO UPDATE SET value=excluded.value"
	if _, err := s.db.Exec(query, index, int64(value)); err != nil {
		return fmt.Errorf("persistence: write parameter %d: %v: %w", index, err, fault.ErrStorage)
	}
	return nil
}

func systemKeys(cfg *SystemConfig) map[string]*string {
	keys := map[string]*string{
		"ap.ssid":     &cfg.AP.SSID,
		"ap.password": &cfg.AP.Password,
		"serial":      &cfg.Serial,
		"firmware":    &cfg.Firmware,
	}
	for i := range cfg.Station {
		keys[fmt.Sprintf("sta%d.ssid", i)] = &cfg.Station[i].SSID
		keys[fmt.Sprintf("sta%d.password", i)] = &cfg.Station[i].Password
	}
	return keys
}

func (s *SQLStorage) LoadSystem() (SystemConfig, error) {
	var cfg SystemConfig
	if err := s.ready(); err != nil {
		return cfg, err
	}
	rows, err := s.db.Query("SELECT key, value FROM system")
	if err != nil {
		return cfg, fmt.Errorf("persistence: query system config: %v: %w", err, fault.ErrStorage)
	}
	defer rows.Close()

	keys := systemKeys(&cfg)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		if p, ok := keys[key]; ok {
			*p = value
		}
	}
	if err := rows.Err(); err != nil {
		return cfg, fmt.Errorf("persistence: query system config: %v: %w", err, fault.ErrStorage)
	}
	return cfg, nil
}

// SaveSystem writes every key in one transaction.
func (s *SQLStorage) SaveSystem(cfg SystemConfig) error {
	if err := s.ready(); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("persistence: save system config: %v: %w", err, fault.ErrStorage)
	}
	query := "INSERT INTO system (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value"
	for key, p := range systemKeys(&cfg) {
		if _, err := tx.Exec(query, key, *p); err != nil {
			tx.Rollback()
			return fmt.Errorf("persistence: save system key %s: %v: %w", key, err, fault.ErrStorage)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persistence: save system config: %v: %w", err, fault.ErrStorage)
	}
	return nil
}

func (s *SQLStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}
