package cmd

import (
	"context"
	"fmt"

	"happy/api"
)

// SendCmd sends a message to a session
type SendCmd struct {
	Session string `arg:"" help:"Session id"`
	Text    string `arg:"" help:"Message text"`
}

// Run executes the send command
func (s *SendCmd) Run(cli *CLI) error {
	ctx := context.Background()

	rt, err := cli.connect(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.store.Session(s.Session) == nil {
		return fmt.Errorf("unknown session: %s", s.Session)
	}

	if err := rt.engine.SendMessage(ctx, s.Session, s.Text); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	fmt.Println("Sent.")
	return nil
}

// PermissionCmd answers a pending permission request
type PermissionCmd struct {
	Session string `arg:"" help:"Session id"`
	Request string `arg:"" help:"Permission request id"`
	Allow   bool   `help:"Approve the request" xor:"decision"`
	Deny    bool   `help:"Reject the request" xor:"decision"`
}

// Run executes the permission command
func (p *PermissionCmd) Run(cli *CLI) error {
	if p.Allow == p.Deny {
		return fmt.Errorf("specify exactly one of --allow or --deny")
	}

	ctx := context.Background()

	rt, err := cli.connect(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	if p.Allow {
		err = rt.engine.AllowPermission(ctx, p.Session, p.Request)
	} else {
		err = rt.engine.DenyPermission(ctx, p.Session, p.Request)
	}
	if err != nil {
		return fmt.Errorf("failed to answer permission: %w", err)
	}
	fmt.Println("Done.")
	return nil
}

// UsageCmd shows aggregated usage
type UsageCmd struct {
	Session string `help:"Limit to one session id" short:"s"`
}

// Run executes the usage command
func (u *UsageCmd) Run(cli *CLI) error {
	ctx := context.Background()

	rt, err := cli.connect(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	report, err := rt.engine.QueryUsage(ctx, api.UsageQuery{SessionID: u.Session})
	if err != nil {
		return fmt.Errorf("usage query failed: %w", err)
	}

	for key, value := range report.Tokens {
		fmt.Printf("%s: %d tokens\n", key, value)
	}
	return nil
}
