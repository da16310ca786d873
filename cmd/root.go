package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kong"

	"happy/api"
	"happy/config"
	"happy/credentials"
	"happy/engine"
	"happy/logging"
	"happy/storage"
	"happy/store"
)

// CLI is the root command structure
type CLI struct {
	Version     kong.VersionFlag `help:"Show version information"`
	Debug       bool             `help:"Enable debug logging to file" short:"d"`
	DebugFile   string           `help:"Custom path for debug log file (disables automatic cleanup)"`
	MaxLogFiles int              `help:"Maximum number of log files to keep (0 = unlimited)" default:"1000"`
	CachePath   string           `help:"Path to local cache database" type:"path" default:"~/.happy/cache.db" env:"HAPPY_CACHE_PATH"`
	ServerURL   string           `help:"Sync server URL" env:"HAPPY_SERVER_URL"`

	Login      LoginCmd      `cmd:"login" help:"Authenticate with the sync server"`
	Logout     LogoutCmd     `cmd:"logout" help:"Remove stored credentials"`
	Pair       PairCmd       `cmd:"pair" help:"Approve pairing for a new device"`
	Sessions   SessionsCmd   `cmd:"sessions" help:"List sessions" default:"1"`
	Watch      WatchCmd      `cmd:"watch" help:"Watch a session transcript"`
	Send       SendCmd       `cmd:"send" help:"Send a message to a session"`
	Permission PermissionCmd `cmd:"permission" help:"Answer a pending permission request"`
	Usage      UsageCmd      `cmd:"usage" help:"Show aggregated usage"`
	Settings   SettingsCmd   `cmd:"settings" help:"Read or write synced settings"`

	// Internal field for settings (not a flag)
	settings *config.Settings `kong:"-"`
}

// SetSettings sets the settings on the CLI struct
func (c *CLI) SetSettings(settings *config.Settings) {
	c.settings = settings
}

// AfterApply initializes logging after CLI parsing and applies settings.
// Precedence: CLI flags > env vars > settings.json > defaults.
func (c *CLI) AfterApply() error {
	if c.settings != nil {
		if !c.Debug && c.settings.DebugEnabled() {
			c.Debug = true
		}
		if c.MaxLogFiles == 1000 {
			c.MaxLogFiles = c.settings.LogFileLimit()
		}
		if c.CachePath == "" && c.settings.CachePath != "" {
			c.CachePath = c.settings.CachePath
		}
		if c.ServerURL == "" && c.settings.ServerURL != "" {
			c.ServerURL = c.settings.ServerURL
		}
	}

	return logging.Initialize(c.Debug, c.DebugFile, c.MaxLogFiles)
}

// localSettings returns the loaded settings file (never nil)
func (c *CLI) localSettings() *config.Settings {
	if c.settings == nil {
		return &config.Settings{}
	}
	return c.settings
}

// runtime bundles everything a connected command needs
type runtime struct {
	engine *engine.Engine
	store  *store.Store
	cache  *storage.Cache
}

// connect loads credentials, opens the cache and starts the sync engine
func (c *CLI) connect(ctx context.Context) (*runtime, error) {
	creds, err := credentials.Get()
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, fmt.Errorf("not logged in, run 'happy login' first")
	}

	cache, err := storage.NewCache(c.CachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	st := store.New()
	client := api.NewClient(c.ServerURL, creds.Token)
	eng, err := engine.New(client, st, cache, creds.Secret, engine.Options{
		PollInterval: time.Duration(c.localSettings().PollInterval()) * time.Second,
	})
	if err != nil {
		cache.Close()
		return nil, err
	}

	if err := eng.Start(ctx); err != nil {
		eng.Close()
		cache.Close()
		return nil, err
	}

	return &runtime{engine: eng, store: st, cache: cache}, nil
}

// close tears down the runtime
func (r *runtime) close() {
	r.engine.Close()
	r.cache.Close()
}
