package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string // empty disables the health server

	// DB
	Env    string // "dev" | "prod"
	Store  string // "sqlite" | "memory"
	DBPath string // e.g. "./data/tagtracer.db"

	ProfileBaseURL string

	// Admin write mode. AdminPasswordHash wins over AdminPassword.
	AdminOpen         bool
	AdminPassword     string
	AdminPasswordHash string

	// Simulated source
	SimDelay       time.Duration
	SimSuccessRate float64
	SimDemoID      string
	SimDemoRate    float64

	HostBridge bool // expose /v1/host/* and prefer the host capability
}

// fileConfig mirrors Config for the optional YAML overlay.  Pointer fields
// distinguish "absent" from zero.
type fileConfig struct {
	HTTPAddr       *string `yaml:"http_addr"`
	GRPCAddr       *string `yaml:"grpc_addr"`
	Env            *string `yaml:"env"`
	Store          *string `yaml:"store"`
	DBPath         *string `yaml:"db_path"`
	ProfileBaseURL *string `yaml:"profile_base_url"`
	Admin          struct {
		Open         *bool   `yaml:"open"`
		Password     *string `yaml:"password"`
		PasswordHash *string `yaml:"password_hash"`
	} `yaml:"admin"`
	Simulation struct {
		Delay       *string  `yaml:"delay"`
		SuccessRate *float64 `yaml:"success_rate"`
		DemoID      *string  `yaml:"demo_id"`
		DemoRate    *float64 `yaml:"demo_rate"`
	} `yaml:"simulation"`
	HostBridge *bool `yaml:"host_bridge"`
}

const devAdminPassword = "00000"

func Default() Config {
	return Config{
		HTTPAddr:       ":8080",
		GRPCAddr:       ":9090",
		Env:            "dev",
		Store:          "sqlite",
		DBPath:         "./data/tagtracer.db",
		ProfileBaseURL: "https://myserver.com/profile/",
		SimDelay:       2 * time.Second,
		SimSuccessRate: 0.8,
		HostBridge:     true,
	}
}

// FromEnv builds the config from defaults, then the YAML file named by
// TAGTRACER_CONFIG (if any), then TAGTRACER_* variables.  Unparsable values
// fall back to what was there before.  An unreadable config file or
// simulation settings rejected by CheckSim are errors.
func FromEnv() (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("TAGTRACER_CONFIG")); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.HTTPAddr = getenvDefault("TAGTRACER_HTTP_ADDR", cfg.HTTPAddr)
	if v, ok := os.LookupEnv("TAGTRACER_GRPC_ADDR"); ok {
		cfg.GRPCAddr = strings.TrimSpace(v)
	}
	cfg.Env = getenvDefault("TAGTRACER_ENV", cfg.Env)
	cfg.Store = getenvDefault("TAGTRACER_STORE", cfg.Store)
	cfg.DBPath = getenvDefault("TAGTRACER_DB_PATH", cfg.DBPath)
	cfg.ProfileBaseURL = getenvDefault("TAGTRACER_PROFILE_BASE_URL", cfg.ProfileBaseURL)

	cfg.AdminOpen = getenvBool("TAGTRACER_ADMIN_OPEN", cfg.AdminOpen)
	cfg.AdminPassword = getenvDefault("TAGTRACER_ADMIN_PASSWORD", cfg.AdminPassword)
	cfg.AdminPasswordHash = getenvDefault("TAGTRACER_ADMIN_PASSWORD_HASH", cfg.AdminPasswordHash)

	cfg.SimDelay = getenvDuration("TAGTRACER_SIM_DELAY", cfg.SimDelay)
	cfg.SimSuccessRate = getenvRate("TAGTRACER_SIM_SUCCESS_RATE", cfg.SimSuccessRate)
	cfg.SimDemoID = getenvDefault("TAGTRACER_SIM_DEMO_ID", cfg.SimDemoID)
	cfg.SimDemoRate = getenvRate("TAGTRACER_SIM_DEMO_RATE", cfg.SimDemoRate)

	cfg.HostBridge = getenvBool("TAGTRACER_HOST_BRIDGE", cfg.HostBridge)

	cfg.normalize()
	if err := CheckSim(cfg.SimDelay, cfg.SimSuccessRate); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// CheckSim rejects simulation settings that would otherwise be read as
// "use the default": a zero delay and a success rate outside (0, 1].
func CheckSim(delay time.Duration, successRate float64) error {
	if delay == 0 {
		return fmt.Errorf("simulation delay must not be 0; use a negative duration for no delay")
	}
	if successRate <= 0 || successRate > 1 {
		return fmt.Errorf("simulation success rate %v out of range (0, 1]", successRate)
	}
	return nil
}

// LoadFile overlays the YAML file at path onto cfg.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&c.HTTPAddr, fc.HTTPAddr)
	setString(&c.GRPCAddr, fc.GRPCAddr)
	setString(&c.Env, fc.Env)
	setString(&c.Store, fc.Store)
	setString(&c.DBPath, fc.DBPath)
	setString(&c.ProfileBaseURL, fc.ProfileBaseURL)
	if fc.Admin.Open != nil {
		c.AdminOpen = *fc.Admin.Open
	}
	setString(&c.AdminPassword, fc.Admin.Password)
	setString(&c.AdminPasswordHash, fc.Admin.PasswordHash)
	if fc.Simulation.Delay != nil {
		d, err := time.ParseDuration(*fc.Simulation.Delay)
		if err != nil {
			return fmt.Errorf("parse config %s: simulation.delay: %w", path, err)
		}
		c.SimDelay = d
	}
	if fc.Simulation.SuccessRate != nil {
		c.SimSuccessRate = *fc.Simulation.SuccessRate
	}
	setString(&c.SimDemoID, fc.Simulation.DemoID)
	if fc.Simulation.DemoRate != nil {
		c.SimDemoRate = *fc.Simulation.DemoRate
	}
	if fc.HostBridge != nil {
		c.HostBridge = *fc.HostBridge
	}
	return nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(c.Env)
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}
	c.Store = strings.ToLower(c.Store)
	if c.Store != "sqlite" && c.Store != "memory" {
		c.Store = "sqlite"
	}
	if c.SimDemoRate < 0 || c.SimDemoRate > 1 {
		c.SimDemoRate = 0
	}
	if c.Env == "dev" && c.AdminPassword == "" && c.AdminPasswordHash == "" {
		c.AdminPassword = devAdminPassword
	}
}

func setString(dst *string, v *string) {
	if v != nil && strings.TrimSpace(*v) != "" {
		*dst = *v
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getenvRate(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
