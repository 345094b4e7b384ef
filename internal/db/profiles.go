package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrProfileNotFound is returned when no device profile has the given name.
var ErrProfileNotFound = errors.New("device profile not found")

// DeviceProfile is a named serial device configuration. Selecting a profile
// by name supplies the port and framing settings for a run.
type DeviceProfile struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	PortPath      string `json:"port_path"`
	BaudRate      int    `json:"baud_rate"`
	DataBits      int    `json:"data_bits"`
	StopBits      int    `json:"stop_bits"`
	Parity        string `json:"parity"`
	Framing       string `json:"framing"`
	ReadTimeoutMS int    `json:"read_timeout_ms"`
	Enabled       bool   `json:"enabled"`
	Description   string `json:"description"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

const profileColumns = `id, name, port_path, baud_rate, data_bits, stop_bits, parity, framing,
	read_timeout_ms, enabled, description, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*DeviceProfile, error) {
	var p DeviceProfile
	var enabled int
	err := row.Scan(&p.ID, &p.Name, &p.PortPath, &p.BaudRate, &p.DataBits, &p.StopBits,
		&p.Parity, &p.Framing, &p.ReadTimeoutMS, &enabled, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Enabled = enabled == 1
	return &p, nil
}

func (p *DeviceProfile) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("profile name is required")
	}
	if strings.TrimSpace(p.PortPath) == "" {
		return errors.New("profile port_path is required")
	}
	return nil
}

// withDefaults fills zero values with the column defaults.
func (p DeviceProfile) withDefaults() DeviceProfile {
	if p.BaudRate == 0 {
		p.BaudRate = 115200
	}
	if p.DataBits == 0 {
		p.DataBits = 8
	}
	if p.StopBits == 0 {
		p.StopBits = 1
	}
	if p.Parity == "" {
		p.Parity = "N"
	}
	if p.Framing == "" {
		p.Framing = "cobs"
	}
	if p.ReadTimeoutMS == 0 {
		p.ReadTimeoutMS = 500
	}
	return p
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ListProfiles returns every device profile ordered by name.
func (db *DB) ListProfiles() ([]DeviceProfile, error) {
	rows, err := db.Query(`SELECT ` + profileColumns + ` FROM device_profiles ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query device profiles: %w", err)
	}
	defer rows.Close()

	var profiles []DeviceProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// GetProfile returns the profile called name.
func (db *DB) GetProfile(name string) (*DeviceProfile, error) {
	row := db.QueryRow(`SELECT `+profileColumns+` FROM device_profiles WHERE name = ?`, name)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device profile: %w", err)
	}
	return p, nil
}

// CreateProfile inserts p and sets its ID. Zero-valued settings take the
// column defaults.
func (db *DB) CreateProfile(p *DeviceProfile) error {
	if err := p.validate(); err != nil {
		return err
	}
	*p = p.withDefaults()

	result, err := db.Exec(`INSERT INTO device_profiles
		(name, port_path, baud_rate, data_bits, stop_bits, parity, framing, read_timeout_ms, enabled, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.PortPath, p.BaudRate, p.DataBits, p.StopBits, p.Parity, p.Framing,
		p.ReadTimeoutMS, boolInt(p.Enabled), p.Description)
	if err != nil {
		return fmt.Errorf("failed to create device profile: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get device profile ID: %w", err)
	}
	p.ID = id
	return nil
}

// UpdateProfile rewrites the profile with p.ID.
func (db *DB) UpdateProfile(p *DeviceProfile) error {
	if err := p.validate(); err != nil {
		return err
	}
	*p = p.withDefaults()

	result, err := db.Exec(`UPDATE device_profiles SET
		name = ?, port_path = ?, baud_rate = ?, data_bits = ?, stop_bits = ?, parity = ?,
		framing = ?, read_timeout_ms = ?, enabled = ?, description = ?, updated_at = UNIXEPOCH()
		WHERE id = ?`,
		p.Name, p.PortPath, p.BaudRate, p.DataBits, p.StopBits, p.Parity, p.Framing,
		p.ReadTimeoutMS, boolInt(p.Enabled), p.Description, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update device profile: %w", err)
	}
	return expectOneRow(result, p.Name)
}

// DeleteProfile removes the profile called name.
func (db *DB) DeleteProfile(name string) error {
	result, err := db.Exec(`DELETE FROM device_profiles WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete device profile: %w", err)
	}
	return expectOneRow(result, name)
}

func expectOneRow(result sql.Result, name string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}
	return nil
}
