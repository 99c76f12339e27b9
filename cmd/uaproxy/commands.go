package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/uaproxy/internal/config"
)

// --- identity ---

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the User-Agent applied to proxied requests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runGet(cmd.Context(), client, os.Stdout)
	},
}

var setCmd = &cobra.Command{
	Use:   "set <user-agent>",
	Short: "Replace the User-Agent applied to proxied requests",
	Long: `Replace the User-Agent applied to proxied requests.

The new value is persisted by the running server before it is applied.

Examples:
  uaproxy set "Mozilla/5.0 (X11; Linux x86_64) Gecko/20100101 Firefox/118.0"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := runSet(cmd.Context(), client, args[0]); err != nil {
			return err
		}
		printSuccess("User-Agent updated")
		return nil
	},
}

var randomizeCmd = &cobra.Command{
	Use:   "randomize",
	Short: "Apply a random browser User-Agent from the server's pool",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runRandomize(cmd.Context(), client, os.Stdout)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent User-Agent changes (sqlite backing only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			return fmt.Errorf("--limit must be positive")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runHistory(cmd.Context(), client, limit, os.Stdout)
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of changes to list")
}

func runGet(ctx context.Context, c *apiClient, w io.Writer) error {
	resp, err := c.get(ctx, "/get_ua")
	if err != nil {
		return err
	}
	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	fmt.Fprintln(w, result["user_agent"])
	return nil
}

func runSet(ctx context.Context, c *apiClient, ua string) error {
	resp, err := c.post(ctx, "/set_ua", map[string]string{"ua": ua})
	if err != nil {
		return err
	}
	var result map[string]string
	return decodeJSON(resp, &result)
}

func runRandomize(ctx context.Context, c *apiClient, w io.Writer) error {
	resp, err := c.post(ctx, "/randomize_ua", nil)
	if err != nil {
		return err
	}
	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	fmt.Fprintln(w, result["user_agent"])
	return nil
}

type historyItem struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}

func runHistory(ctx context.Context, c *apiClient, limit int, w io.Writer) error {
	resp, err := c.get(ctx, fmt.Sprintf("/history?limit=%d", limit))
	if err != nil {
		return err
	}
	var items []historyItem
	if err := decodeJSON(resp, &items); err != nil {
		return err
	}
	if len(items) == 0 {
		printWarning("No changes recorded")
		return nil
	}
	for _, it := range items {
		fmt.Fprintf(w, "%s  %s  %s\n",
			it.CreatedAt.Local().Format(time.DateTime),
			colorize(colorBold, it.ID[:min(8, len(it.ID))]),
			it.UserAgent,
		)
	}
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
