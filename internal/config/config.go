package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the recruitment coordinator
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Recruiter RecruiterConfig `toml:"recruiter"`
	Moltbook  MoltbookConfig  `toml:"moltbook"`
	Admin     AdminConfig     `toml:"admin"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	ReadTimeout  int    `toml:"read_timeout"`
	WriteTimeout int    `toml:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"ssl_mode"`
}

// RecruiterConfig holds recruitment campaign settings
type RecruiterConfig struct {
	MinKarmaRequirement        int      `toml:"min_karma_requirement"`
	AutoApproveThreshold       float64  `toml:"auto_approve_threshold"`
	SpecializationCategories   []string `toml:"specialization_categories"`
	SearchQueries              []string `toml:"search_queries"`
	CyclePeriodSeconds         int      `toml:"recruitment_cycle_period_seconds"`
	ErrorBackoffSeconds        int      `toml:"error_backoff_seconds"`
	ChallengeTTLSeconds        int      `toml:"challenge_ttl_seconds"`
	MaxCandidatesPerCycle      int      `toml:"max_candidates_per_cycle"`
	InvitationSendDelaySeconds int      `toml:"invitation_send_delay_seconds"`
	InitialTokenGrant          int64    `toml:"initial_token_grant"`
	RegistrationBaseURL        string   `toml:"registration_base_url"`
}

// MoltbookConfig holds Moltbook API client settings
type MoltbookConfig struct {
	APIURL         string `toml:"api_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// AdminConfig holds reviewer console authentication settings
type AdminConfig struct {
	Username     string `toml:"username"`
	PasswordHash string `toml:"password_hash"`
	JWTSecret    string `toml:"jwt_secret"`
}

// Load loads configuration from TOML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.SetDefaults()

	return &config, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// DatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// CyclePeriod returns the nominal delay between recruitment cycles
func (c *RecruiterConfig) CyclePeriod() time.Duration {
	return time.Duration(c.CyclePeriodSeconds) * time.Second
}

// ErrorBackoff returns the delay before retrying after a failed cycle
func (c *RecruiterConfig) ErrorBackoff() time.Duration {
	return time.Duration(c.ErrorBackoffSeconds) * time.Second
}

// ChallengeTTL returns how long an issued challenge stays valid
func (c *RecruiterConfig) ChallengeTTL() time.Duration {
	return time.Duration(c.ChallengeTTLSeconds) * time.Second
}

// InvitationSendDelay returns the pause between invitation dispatches
func (c *RecruiterConfig) InvitationSendDelay() time.Duration {
	return time.Duration(c.InvitationSendDelaySeconds) * time.Second
}

// SetDefaults sets default values for config
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.User == "" {
		c.Database.User = "postgres"
	}
	if c.Database.Database == "" {
		c.Database.Database = "recruiter"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Recruiter.MinKarmaRequirement == 0 {
		c.Recruiter.MinKarmaRequirement = 50
	}
	if c.Recruiter.AutoApproveThreshold == 0 {
		c.Recruiter.AutoApproveThreshold = 200
	}
	if len(c.Recruiter.SpecializationCategories) == 0 {
		c.Recruiter.SpecializationCategories = []string{
			"smart_contract_development",
			"trading_algorithms",
			"data_analysis",
			"content_creation",
			"community_management",
			"research",
			"governance",
			"economic_modeling",
			"security_auditing",
			"user_experience",
		}
	}
	if len(c.Recruiter.SearchQueries) == 0 {
		c.Recruiter.SearchQueries = []string{
			"AI agent developer",
			"smart contract",
			"trading algorithm",
			"governance",
			"blockchain",
			"DeFi",
			"automation",
			"prediction market",
		}
	}
	if c.Recruiter.CyclePeriodSeconds == 0 {
		c.Recruiter.CyclePeriodSeconds = 300
	}
	if c.Recruiter.ErrorBackoffSeconds == 0 {
		c.Recruiter.ErrorBackoffSeconds = 60
	}
	if c.Recruiter.ChallengeTTLSeconds == 0 {
		c.Recruiter.ChallengeTTLSeconds = 3600
	}
	if c.Recruiter.MaxCandidatesPerCycle == 0 {
		c.Recruiter.MaxCandidatesPerCycle = 10
	}
	if c.Recruiter.InvitationSendDelaySeconds == 0 {
		c.Recruiter.InvitationSendDelaySeconds = 2
	}
	if c.Recruiter.InitialTokenGrant == 0 {
		c.Recruiter.InitialTokenGrant = 1000
	}
	if c.Recruiter.RegistrationBaseURL == "" {
		c.Recruiter.RegistrationBaseURL = "https://governance.moltbook.com/register"
	}
	if c.Moltbook.APIURL == "" {
		c.Moltbook.APIURL = "https://api.moltbook.com"
	}
	if c.Moltbook.TimeoutSeconds == 0 {
		c.Moltbook.TimeoutSeconds = 30
	}
	if c.Admin.Username == "" {
		c.Admin.Username = "reviewer"
	}
}
