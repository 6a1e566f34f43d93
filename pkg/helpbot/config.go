// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package helpbot

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
	"maunium.net/go/mautrix/id"

	"github.com/nvim-help/nvim-help-bot/pkg/helpbot/tagtable"
)

//go:embed example-config.yaml
var ExampleConfig string

// ErrConfigNotFound is returned by LoadConfig when the config file does not
// exist yet.
var ErrConfigNotFound = errors.New("config file not found")

// Config holds the bot configuration.
type Config struct {
	Homeserver string    `yaml:"homeserver"`
	UserID     id.UserID `yaml:"user_id"`
	DeviceName string    `yaml:"device_name"`

	TagsFile      string `yaml:"tags_file"`
	WatchTagsFile bool   `yaml:"watch_tags_file"`
	LookupPolicy  string `yaml:"lookup_policy"`
	DocBaseURL    string `yaml:"doc_base_url"`

	// AllowedRooms restricts answering to the listed rooms. Empty means
	// every joined room.
	AllowedRooms []id.RoomID `yaml:"allowed_rooms"`
	AutoJoin     bool        `yaml:"auto_join"`
	// SendTimeout is in seconds.
	SendTimeout int `yaml:"send_timeout"`

	AdminAPIAddr string `yaml:"admin_api_addr"`

	Logging zeroconfig.Config `yaml:"logging"`

	policy tagtable.Policy `yaml:"-"`
}

// PostProcess validates the config and fills derived fields.
func (c *Config) PostProcess() error {
	var err error
	if c.policy, err = tagtable.ParsePolicy(c.LookupPolicy); err != nil {
		return err
	}
	if _, _, err = c.UserID.Parse(); err != nil {
		return fmt.Errorf("invalid user_id %q: %w", c.UserID, err)
	}
	if c.TagsFile == "" {
		return errors.New("tags_file must be set")
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("send_timeout must be positive, got %d", c.SendTimeout)
	}
	return nil
}

// Policy returns the parsed lookup policy. Only valid after PostProcess.
func (c *Config) Policy() tagtable.Policy {
	return c.policy
}

// SendTimeoutDuration returns SendTimeout as a time.Duration.
func (c *Config) SendTimeoutDuration() time.Duration {
	return time.Duration(c.SendTimeout) * time.Second
}

// Environment overrides, read after .env is loaded.
const (
	EnvHomeserver   = "HELPBOT_HOMESERVER"
	EnvUserID       = "HELPBOT_USER_ID"
	EnvTagsFile     = "HELPBOT_TAGS_FILE"
	EnvAdminAPIAddr = "HELPBOT_ADMIN_API_ADDR"
)

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvHomeserver); v != "" {
		c.Homeserver = v
	}
	if v := os.Getenv(EnvUserID); v != "" {
		c.UserID = id.UserID(v)
	}
	if v := os.Getenv(EnvTagsFile); v != "" {
		c.TagsFile = v
	}
	// An explicitly empty value disables the admin API.
	if v, ok := os.LookupEnv(EnvAdminAPIAddr); ok {
		c.AdminAPIAddr = v
	}
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "homeserver")
	helper.Copy(up.Str, "user_id")
	helper.Copy(up.Str, "device_name")
	helper.Copy(up.Str, "tags_file")
	helper.Copy(up.Bool, "watch_tags_file")
	helper.Copy(up.Str, "lookup_policy")
	helper.Copy(up.Str, "doc_base_url")
	helper.Copy(up.List, "allowed_rooms")
	helper.Copy(up.Bool, "auto_join")
	helper.Copy(up.Int, "send_timeout")
	helper.Copy(up.Str, "admin_api_addr")
	helper.Copy(up.Map, "logging")
}

// Upgrader merges an existing config file into the current example config.
var Upgrader = &up.StructUpgrader{
	SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
	Blocks:         nil,
	Base:           ExampleConfig,
}

// GenerateConfig writes the example config to path unless a file already
// exists there.
func GenerateConfig(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	defer f.Close()
	if _, err = f.WriteString(ExampleConfig); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadConfig reads the config at path, upgrading it in place to the current
// layout, then applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s (generate one with --generate-config)", ErrConfigNotFound, path)
	}
	data, _, err := up.Do(path, true, Upgrader)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade config: %w", err)
	}
	if err = loadDotEnv(); err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// loadDotEnv reads .env from the working directory if there is one.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// ParseConfig decodes YAML config data on top of the example defaults.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(ExampleConfig), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse example config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
