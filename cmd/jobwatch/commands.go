package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/jobwatch/internal/api"
	"github.com/kalambet/jobwatch/internal/config"
	"github.com/kalambet/jobwatch/internal/sites"
)

// --- sites ---

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Manage the watchlist",
}

var sitesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched sites in display order",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		list, err := listSites(cmd.Context(), client)
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(cmd.OutOrStdout(), list)
		}
		printSiteTable(cmd.OutOrStdout(), list)
		return nil
	},
}

var sitesAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a careers page to the watchlist",
	Long: `Add a careers page to the watchlist.

Examples:
  jobwatch sites add Acme acme.com/careers
  jobwatch sites add "Globex Corp" https://jobs.globex.example --keywords "go, remote"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		keywords, _ := cmd.Flags().GetString("keywords")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		site, err := addSite(cmd.Context(), client, args[0], args[1], keywords)
		if err != nil {
			return err
		}
		printSuccess("Added %s (%s)", site.Name, site.ID)
		return nil
	},
}

var sitesRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Remove a site from the watchlist",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		id := args[0]

		if !yes {
			site, err := getSite(cmd.Context(), client, id)
			if err != nil {
				return err
			}
			if !confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Delete %s (%s)?", site.Name, site.URL)) {
				printWarning("Cancelled")
				return nil
			}
		}

		deleted, err := deleteSite(cmd.Context(), client, id)
		if err != nil {
			return err
		}
		if !deleted {
			printWarning("Site %s was already gone", id)
			return nil
		}
		printSuccess("Deleted %s", id)
		return nil
	},
}

var sitesRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a site",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var site api.SiteView
		if err := client.call(cmd.Context(), http.MethodPatch, "/sites/"+url.PathEscape(args[0]), map[string]string{"name": args[1]}, &site); err != nil {
			return err
		}
		printSuccess("Renamed to %s", site.Name)
		return nil
	},
}

var sitesMoveCmd = &cobra.Command{
	Use:   "move <id> <left|right|up|down|index>",
	Short: "Move a site one step, or to a zero-based position",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var result struct {
			Moved bool           `json:"moved"`
			Sites []api.SiteView `json:"sites"`
		}
		if err := client.call(cmd.Context(), http.MethodPost, "/sites/"+url.PathEscape(args[0])+"/move", moveBody(args[1]), &result); err != nil {
			return err
		}
		if !result.Moved {
			printWarning("Already at that position")
		}
		printSiteTable(cmd.OutOrStdout(), result.Sites)
		return nil
	},
}

func init() {
	sitesListCmd.Flags().Bool("json", false, "print JSON")
	sitesAddCmd.Flags().String("keywords", "", "comma-separated keywords (empty: all openings)")
	sitesRmCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	sitesCmd.AddCommand(sitesListCmd, sitesAddCmd, sitesRmCmd, sitesRenameCmd, sitesMoveCmd)
}

func listSites(ctx context.Context, c *apiClient) ([]api.SiteView, error) {
	var list []api.SiteView
	if err := c.call(ctx, http.MethodGet, "/sites", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// getSite finds id in the site list. The API has no single-site read.
func getSite(ctx context.Context, c *apiClient, id string) (api.SiteView, error) {
	list, err := listSites(ctx, c)
	if err != nil {
		return api.SiteView{}, err
	}
	for _, s := range list {
		if s.ID == id {
			return s, nil
		}
	}
	return api.SiteView{}, fmt.Errorf("site %s not found", id)
}

func addSite(ctx context.Context, c *apiClient, name, siteURL, keywords string) (api.SiteView, error) {
	in := map[string]string{
		"name":     name,
		"url":      siteURL,
		"keywords": keywords,
	}
	var site api.SiteView
	if err := c.call(ctx, http.MethodPost, "/sites", in, &site); err != nil {
		return api.SiteView{}, err
	}
	return site, nil
}

func deleteSite(ctx context.Context, c *apiClient, id string) (bool, error) {
	var result struct {
		Deleted bool `json:"deleted"`
	}
	if err := c.call(ctx, http.MethodDelete, "/sites/"+url.PathEscape(id), nil, &result); err != nil {
		return false, err
	}
	return result.Deleted, nil
}

// moveBody turns a CLI position argument into a move request: a number is
// a target index, anything else a direction.
func moveBody(arg string) map[string]any {
	if i, err := strconv.Atoi(arg); err == nil {
		return map[string]any{"index": i}
	}
	return map[string]any{"direction": strings.ToLower(arg)}
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func printSiteTable(w io.Writer, list []api.SiteView) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No sites yet. Add one with: jobwatch sites add <name> <url>")
		return
	}
	for i, s := range list {
		checked := "never"
		if s.LastChecked != nil {
			checked = s.LastChecked.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%2d  %s  %s  %-24s %-22s %s\n",
			i,
			colorize(colorCyan, shortID(s.ID)),
			statusLabel(s.Status),
			truncate(s.Name, 24),
			truncate(s.Domain, 22),
			colorize(colorGray, checked),
		)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- scan ---

var scanCmd = &cobra.Command{
	Use:   "scan [id]",
	Short: "Scan one site now, or all sites with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		wait, _ := cmd.Flags().GetBool("wait")
		if all == (len(args) == 1) {
			return fmt.Errorf("give a site id or --all")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if all {
			n, err := startBulkScan(ctx, client)
			if err != nil {
				return err
			}
			printStep("Scanning %d sites in the background", n)
			if !wait {
				return nil
			}
			if err := waitForBulkScan(ctx, client, 2*time.Second); err != nil {
				return err
			}
			list, err := listSites(ctx, client)
			if err != nil {
				return err
			}
			printSiteTable(cmd.OutOrStdout(), list)
			return nil
		}

		printStep("Scanning %s", args[0])
		res, err := scanSite(ctx, client.forScan(), args[0])
		if err != nil {
			return err
		}
		printSuccess("Scanned %s", res.Site.Name)
		printResult(cmd.OutOrStdout(), res.Result)
		return nil
	},
}

func init() {
	scanCmd.Flags().Bool("all", false, "scan every site in order")
	scanCmd.Flags().Bool("wait", false, "with --all, wait for the bulk scan to finish")
}

func scanSite(ctx context.Context, c *apiClient, id string) (api.ScanResponse, error) {
	var out api.ScanResponse
	err := c.call(ctx, http.MethodPost, "/sites/"+url.PathEscape(id)+"/scan", nil, &out)
	return out, err
}

func startBulkScan(ctx context.Context, c *apiClient) (int, error) {
	var out struct {
		Status string `json:"status"`
		Sites  int    `json:"sites"`
	}
	if err := c.call(ctx, http.MethodPost, "/scan", nil, &out); err != nil {
		return 0, err
	}
	return out.Sites, nil
}

func bulkScanning(ctx context.Context, c *apiClient) (bool, error) {
	var out struct {
		BulkScanning bool `json:"bulk_scanning"`
	}
	if err := c.call(ctx, http.MethodGet, "/scan", nil, &out); err != nil {
		return false, err
	}
	return out.BulkScanning, nil
}

func waitForBulkScan(ctx context.Context, c *apiClient, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		running, err := bulkScanning(ctx, c)
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// --- result ---

var resultCmd = &cobra.Command{
	Use:   "result <id>",
	Short: "Show the last scan result of a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exportPath, _ := cmd.Flags().GetString("export")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if exportPath != "" {
			if err := exportResult(cmd.Context(), client, args[0], exportPath); err != nil {
				return err
			}
			printSuccess("Saved %s", exportPath)
			return nil
		}

		res, err := getResult(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	resultCmd.Flags().String("export", "", "write a printable HTML report to this path")
	resultCmd.Flags().Bool("json", false, "print JSON")
}

func getResult(ctx context.Context, c *apiClient, id string) (sites.ScanResult, error) {
	var res sites.ScanResult
	err := c.call(ctx, http.MethodGet, "/sites/"+url.PathEscape(id)+"/result", nil, &res)
	return res, err
}

func exportResult(ctx context.Context, c *apiClient, id, path string) error {
	body, err := c.open(ctx, http.MethodGet, "/sites/"+url.PathEscape(id)+"/export", nil)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func printResult(w io.Writer, res sites.ScanResult) {
	fmt.Fprintln(w, strings.TrimSpace(res.Text))
	if len(res.Sources) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Sources"))
	for i, s := range res.Sources {
		fmt.Fprintf(w, "%2d. %s\n    %s\n", i+1, s.Title, colorize(colorGray, s.URI))
	}
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
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorGray, k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		if strings.HasSuffix(key, "_api_key") {
			printSuccess("Stored %s in the secret store", key)
			return nil
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Reset a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
