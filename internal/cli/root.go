// Package cli implements the clickreplayctl command tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"clickreplay/internal/client"
	"clickreplay/internal/config"
)

type app struct {
	url     string
	token   string
	timeout time.Duration
	asJSON  bool
	out     io.Writer
	now     func() time.Time
}

func (a *app) client() *client.Client {
	return client.New(a.url, a.timeout, a.token)
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
}

// printJSON writes v when --json is set and reports whether it did.
func (a *app) printJSON(v any) (bool, error) {
	if !a.asJSON {
		return false, nil
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}

// ago renders an RFC3339 timestamp relative to now.
func (a *app) ago(value *string) string {
	if value == nil || *value == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return *value
	}
	return humanize.RelTime(t, a.now(), "ago", "from now")
}

// NewRootCommand builds clickreplayctl writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	defaults := config.LoadClient()
	a := &app{out: out, now: time.Now}

	root := &cobra.Command{
		Use:           "clickreplayctl",
		Short:         "Control a running clickreplayd daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.url, "url", defaults.URL, "daemon base URL (env CLICKREPLAY_URL)")
	root.PersistentFlags().StringVar(&a.token, "token", defaults.Token, "bearer token (env CLICKREPLAY_AUTH_TOKEN)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", defaults.Timeout, "request timeout")
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "print raw JSON")

	root.AddCommand(
		sequencesCommand(a),
		playCommand(a),
		statusCommand(a),
		stopCommand(a),
		launchCommand(a),
		sessionsCommand(a),
		jobsCommand(a),
		schedulerCommand(a),
	)
	return root
}

// Execute runs clickreplayctl with os.Args.
func Execute(ctx context.Context) error {
	root := NewRootCommand(os.Stdout)
	return root.ExecuteContext(ctx)
}

func readJSONFile(path string, v any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
