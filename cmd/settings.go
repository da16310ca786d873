package cmd

import (
	"context"
	"encoding/json"
	"fmt"
)

// SettingsCmd reads and writes the account's synced settings blob
type SettingsCmd struct {
	Get SettingsGetCmd `cmd:"" help:"Show synced settings"`
	Set SettingsSetCmd `cmd:"" help:"Set a synced settings key"`
}

// SettingsGetCmd prints the synced settings
type SettingsGetCmd struct{}

// Run executes the settings get command
func (g *SettingsGetCmd) Run(cli *CLI) error {
	ctx := context.Background()

	rt, err := cli.connect(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.engine.SyncSettingsNow(ctx); err != nil {
		return fmt.Errorf("failed to fetch settings: %w", err)
	}

	blob, version := rt.store.Settings()
	if len(blob) == 0 {
		blob = json.RawMessage(`{}`)
	}
	var pretty map[string]any
	if err := json.Unmarshal(blob, &pretty); err != nil {
		return fmt.Errorf("invalid settings payload: %w", err)
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%s\nversion: %d\n", out, version)
	return nil
}

// SettingsSetCmd updates one key of the synced settings
type SettingsSetCmd struct {
	Key   string `arg:"" help:"Settings key"`
	Value string `arg:"" help:"Value (JSON, or a bare string)"`
}

// Run executes the settings set command
func (s *SettingsSetCmd) Run(cli *CLI) error {
	ctx := context.Background()

	rt, err := cli.connect(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	// Pull current state first so the optimistic mutation starts from the
	// server's version
	if err := rt.engine.SyncSettingsNow(ctx); err != nil {
		return fmt.Errorf("failed to fetch settings: %w", err)
	}

	var value any
	if err := json.Unmarshal([]byte(s.Value), &value); err != nil {
		value = s.Value
	}

	err = rt.engine.UpdateSettings(ctx, func(blob json.RawMessage) json.RawMessage {
		settings := map[string]any{}
		if len(blob) > 0 {
			json.Unmarshal(blob, &settings)
		}
		settings[s.Key] = value
		updated, err := json.Marshal(settings)
		if err != nil {
			return blob
		}
		return updated
	})
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	fmt.Println("Saved.")
	return nil
}
