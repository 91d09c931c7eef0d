package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/custodia-io/audit-trail/internal/auditd/handler"
	"github.com/custodia-io/audit-trail/pkg/client"
)

// version is overridden at release time via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	token     string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "auditctl",
	Short: "Custody audit trail CLI",
	Long: `auditctl is the command-line interface for the custody audit trail.

It logs events, runs forensic queries, verifies the hash chain, and manages
auditors, settings, and compliance reports on a running auditd instance.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.auditctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if token == "" {
			token = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.auditctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "auditd base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "caller identity bearer token")

	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(entryCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(auditorCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func api() *client.Client {
	return client.New(serverURL, client.WithToken(token))
}

// ── log ──────────────────────────────────────────────────────────────────────

var (
	logDetails    string
	logCompliance bool
)

var logCmd = &cobra.Command{
	Use:   "log <event-type> <resource-type> <resource-id> <action>",
	Short: "Record an audit entry",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := api().LogEvent(context.Background(), client.LogEventRequest{
			EventType:          args[0],
			ResourceType:       args[1],
			ResourceID:         args[2],
			Action:             args[3],
			Details:            logDetails,
			ComplianceRelevant: logCompliance,
		})
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

func init() {
	logCmd.Flags().StringVar(&logDetails, "details", "", "Free-text event details")
	logCmd.Flags().BoolVar(&logCompliance, "compliance", false, "Mark the entry compliance-relevant")
}

// ── query ────────────────────────────────────────────────────────────────────

var (
	queryEventTypes    []string
	queryResourceTypes []string
	queryActors        []string
	queryResourceIDs   []string
	queryStart         int64
	queryEnd           int64
	queryCompliance    bool
	queryOffset        int
	queryLimit         int
	queryFormat        string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query audit entries (auditor only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := api().QueryEntries(context.Background(), client.QueryOptions{
			EventTypes:     queryEventTypes,
			ResourceTypes:  queryResourceTypes,
			Actors:         queryActors,
			ResourceIDs:    queryResourceIDs,
			Start:          queryStart,
			End:            queryEnd,
			ComplianceOnly: queryCompliance,
			Offset:         queryOffset,
			Limit:          queryLimit,
		})
		if err != nil {
			return err
		}

		if queryFormat == "json" {
			return printJSON(entries)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tEVENT\tACTOR\tRESOURCE\tACTION\tCOMPLIANCE")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s/%s\t%s\t%v\n",
				time.Unix(0, e.Timestamp).UTC().Format(time.RFC3339),
				e.EventType, e.Actor, e.ResourceType, e.ResourceID,
				e.Action, e.ComplianceRelevant,
			)
		}
		return w.Flush()
	},
}

func init() {
	queryCmd.Flags().StringSliceVar(&queryEventTypes, "event-type", nil, "Filter by event type (repeatable)")
	queryCmd.Flags().StringSliceVar(&queryResourceTypes, "resource-type", nil, "Filter by resource type (repeatable)")
	queryCmd.Flags().StringSliceVar(&queryActors, "actor", nil, "Filter by actor (repeatable)")
	queryCmd.Flags().StringSliceVar(&queryResourceIDs, "resource-id", nil, "Filter by resource id (repeatable)")
	queryCmd.Flags().Int64Var(&queryStart, "start", 0, "Window start (Unix nanoseconds, inclusive)")
	queryCmd.Flags().Int64Var(&queryEnd, "end", 0, "Window end (Unix nanoseconds, inclusive)")
	queryCmd.Flags().BoolVar(&queryCompliance, "compliance-only", false, "Only compliance-relevant entries")
	queryCmd.Flags().IntVar(&queryOffset, "offset", 0, "Skip this many results")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "Return at most this many results")
	queryCmd.Flags().StringVar(&queryFormat, "format", "text", "Output format: text or json")
}

// ── entry ────────────────────────────────────────────────────────────────────

var entryCmd = &cobra.Command{
	Use:   "entry <id>",
	Short: "Fetch a single audit entry (auditor only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := api().GetEntry(context.Background(), args[0])
		if err != nil {
			return err
		}
		if e == nil {
			fmt.Println("not found")
			return nil
		}
		return printJSON(e)
	},
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the integrity of the full audit chain (auditor only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := api().VerifyChain(context.Background())
		if err != nil {
			return err
		}
		if res.Valid {
			fmt.Println("chain intact")
			return nil
		}
		return fmt.Errorf("chain INVALID: %s at entry %s", res.Reason, res.EntryID)
	},
}

// ── report ───────────────────────────────────────────────────────────────────

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Manage compliance reports (auditor only)",
}

var reportGenerateCmd = &cobra.Command{
	Use:   "generate <category> <period-start> <period-end>",
	Short: "Generate a compliance report over a period (Unix nanoseconds)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid period-start: %w", err)
		}
		end, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid period-end: %w", err)
		}
		id, err := api().GenerateReport(context.Background(), args[0], start, end)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List compliance reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		reports, err := api().ListReports(context.Background())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCATEGORY\tGENERATED\tENTRIES")
		for _, r := range reports {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
				r.ID, r.Category,
				time.Unix(0, r.GeneratedAt).UTC().Format(time.RFC3339),
				r.EntryCount,
			)
		}
		return w.Flush()
	},
}

var reportGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Fetch a compliance report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := api().GetReport(context.Background(), args[0])
		if err != nil {
			return err
		}
		if r == nil {
			fmt.Println("not found")
			return nil
		}
		return printJSON(r)
	},
}

func init() {
	reportCmd.AddCommand(reportGenerateCmd)
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportGetCmd)
}

// ── stats ────────────────────────────────────────────────────────────────────

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger statistics (auditor only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := api().Statistics(context.Background())
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%d\n", k, stats[k])
		}
		return w.Flush()
	},
}

// ── auditor ──────────────────────────────────────────────────────────────────

var auditorCmd = &cobra.Command{
	Use:   "auditor",
	Short: "Manage the auditor registry (auditor only)",
}

var auditorAddCmd = &cobra.Command{
	Use:   "add <identity> <display-name>",
	Short: "Grant auditor capability to an identity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api().AddAuditor(context.Background(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("auditor added")
		return nil
	},
}

func init() {
	auditorCmd.AddCommand(auditorAddCmd)
}

// ── settings ─────────────────────────────────────────────────────────────────

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect or update audit settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the current audit settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := api().GetSettings(context.Background())
		if err != nil {
			return err
		}
		return printJSON(s)
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <settings.json>",
	Short: "Replace the audit settings from a JSON file (auditor only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var s client.Settings
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("parse settings: %w", err)
		}
		if err := api().UpdateSettings(context.Background(), s); err != nil {
			return err
		}
		fmt.Println("settings updated")
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	tokenSecret string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <identity>",
	Short: "Mint a caller identity token (requires the shared secret)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenSecret == "" {
			tokenSecret = viper.GetString("jwt_secret")
		}
		if tokenSecret == "" {
			return fmt.Errorf("--secret is required (or set jwt_secret in the config file)")
		}
		signed, err := handler.MintToken([]byte(tokenSecret), args[0], tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(signed)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "Shared JWT secret of the auditd instance")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the auditctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("auditctl", version)
	},
}

// ── helpers ──────────────────────────────────────────────────────────────────

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
