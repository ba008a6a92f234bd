// licensectl is the operator CLI for the ImgWave license server. It talks to
// the running server's HTTP API; it never touches the store files directly.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"imgwaved/internal/security"
)

// Globals holds flags shared by all subcommands.
type Globals struct {
	Server  string           `help:"License server base URL" default:"http://localhost:8080"`
	Token   string           `help:"Admin API token" env:"IMGWAVE_ADMIN_TOKEN"`
	Version kong.VersionFlag `help:"Print version" short:"v" hidden:""`
}

// CLI is the top-level command tree parsed by Kong.
type CLI struct {
	Globals

	Create       CreateCmd       `cmd:"" help:"Issue a paid license"`
	Revoke       RevokeCmd       `cmd:"" help:"Deactivate a license (simulated refund)"`
	Info         InfoCmd         `cmd:"" help:"Show full license details"`
	Forgot       ForgotCmd       `cmd:"" help:"Look up a license key by email"`
	TrialStatus  TrialStatusCmd  `cmd:"trial-status" help:"Show trial license status"`
	RefundStatus RefundStatusCmd `cmd:"refund-status" help:"Show refund state of a license"`
	HashToken    HashTokenCmd    `cmd:"hash-token" help:"Generate a bcrypt hash for the admin token config"`
}

// CreateCmd issues a paid license through the admin endpoint.
type CreateCmd struct {
	Email       string `arg:"" help:"Customer email"`
	Name        string `help:"Customer name"`
	ExpiresDays int    `help:"License duration in days" default:"365"`
}

func (c *CreateCmd) Run(g *Globals) error {
	return postJSON(g, "/api/v1/license/create", map[string]any{
		"email":         c.Email,
		"customer_name": c.Name,
		"expires_days":  c.ExpiresDays,
	}, true)
}

// RevokeCmd deactivates a license via a synthetic MS Store refund event.
type RevokeCmd struct {
	TransactionID string `arg:"" help:"Platform transaction ID of the purchase"`
}

func (c *RevokeCmd) Run(g *Globals) error {
	return postJSON(g, "/api/v1/webhooks/msstore", map[string]any{
		"event_type":     "refund",
		"transaction_id": c.TransactionID,
	}, false)
}

// InfoCmd fetches the admin view of one license.
type InfoCmd struct {
	Key string `arg:"" help:"License key"`
}

func (c *InfoCmd) Run(g *Globals) error {
	return get(g, "/api/v1/license/info/"+c.Key, true)
}

// ForgotCmd looks up the key registered to an email.
type ForgotCmd struct {
	Email string `arg:"" help:"Customer email"`
}

func (c *ForgotCmd) Run(g *Globals) error {
	return postJSON(g, "/api/v1/license/forgot", map[string]any{"email": c.Email}, false)
}

// TrialStatusCmd reports a trial key's remaining life.
type TrialStatusCmd struct {
	Key string `arg:"" help:"Trial license key"`
}

func (c *TrialStatusCmd) Run(g *Globals) error {
	return get(g, "/api/v1/trial/status/"+c.Key, false)
}

// RefundStatusCmd reports the refund state of a license.
type RefundStatusCmd struct {
	Key string `arg:"" help:"License key"`
}

func (c *RefundStatusCmd) Run(g *Globals) error {
	return get(g, "/api/v1/license/refund-status/"+c.Key, false)
}

// HashTokenCmd hashes an admin token for the server config.
type HashTokenCmd struct {
	Token string `arg:"" help:"Plaintext admin token to hash"`
}

func (c *HashTokenCmd) Run(g *Globals) error {
	hash, err := security.HashToken(c.Token)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func client() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

func postJSON(g *Globals, path string, body map[string]any, admin bool) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, g.Server+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}
	return do(req)
}

func get(g *Globals, path string, admin bool) error {
	req, err := http.NewRequest(http.MethodGet, g.Server+path, nil)
	if err != nil {
		return err
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}
	return do(req)
}

func do(req *http.Request) error {
	resp, err := client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	// Pretty-print JSON when possible, raw otherwise
	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(body))
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("licensectl"),
		kong.Description("Operator CLI for the ImgWave license server"),
		kong.UsageOnError(),
		kong.Vars{"version": "1.0.0"},
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
