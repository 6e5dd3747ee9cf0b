package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

func init() {
	rootCmd.AddCommand(pingCmd, metricsCmd, auditCmd)

	playersCmd.AddCommand(playersListCmd, playersGetCmd, playersCreateCmd,
		playersUpdateCmd, playersDeleteCmd, playersDepositCmd)
	rootCmd.AddCommand(playersCmd)

	matchesCmd.AddCommand(matchesListCmd, matchesGetCmd, matchesCreateCmd,
		matchesAwardCmd, matchesEndCmd, matchesDisqualifyCmd)
	rootCmd.AddCommand(matchesCmd)

	scenariosCmd.AddCommand(scenariosListCmd, scenariosLoadCmd, scenariosResetCmd)
	rootCmd.AddCommand(scenariosCmd)

	playersCreateCmd.Flags().String("lname", "", "Last name")
	playersCreateCmd.Flags().String("handed", "right", "left, right or ambi")
	playersCreateCmd.Flags().String("balance", "0.00", "Opening balance in USD")

	playersUpdateCmd.Flags().String("fname", "", "First name")
	playersUpdateCmd.Flags().String("lname", "", "Last name")
	playersUpdateCmd.Flags().String("handed", "", "left, right or ambi")
	playersUpdateCmd.Flags().Bool("active", true, "Whether the player is listed")

	matchesCreateCmd.Flags().String("fee", "", "Entry fee in USD, escrowed from both players")
	matchesCreateCmd.Flags().String("prize", "", "Prize in USD, paid to the winner")
	_ = matchesCreateCmd.MarkFlagRequired("fee")
	_ = matchesCreateCmd.MarkFlagRequired("prize")

	auditCmd.Flags().Bool("cached", false, "Return the last scheduled report instead of running now")
}

// =============================================================================
// SERVER
// =============================================================================

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the server is alive",
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodGet, "/ping", nil)
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Get application metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodGet, "/metrics", nil)
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run the ledger consistency audit",
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint := "/api/admin/audit"
		if cached, _ := cmd.Flags().GetBool("cached"); cached {
			endpoint += "?cached=true"
		}
		return performRequest(http.MethodGet, endpoint, nil)
	},
}

// =============================================================================
// PLAYERS
// =============================================================================

var playersCmd = &cobra.Command{
	Use:   "players",
	Short: "Manage players and balances",
}

var playersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active players",
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodGet, "/api/players", nil)
	},
}

var playersGetCmd = &cobra.Command{
	Use:   "get <pid>",
	Short: "Show one player",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodGet, "/api/players/"+args[0], nil)
	},
}

var playersCreateCmd = &cobra.Command{
	Use:   "create <fname>",
	Short: "Create a player",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lname, _ := cmd.Flags().GetString("lname")
		handed, _ := cmd.Flags().GetString("handed")
		balance, _ := cmd.Flags().GetString("balance")
		return performRequest(http.MethodPost, "/api/players", map[string]any{
			"fname":               args[0],
			"lname":               lname,
			"handed":              handed,
			"initial_balance_usd": balance,
		})
	},
}

var playersUpdateCmd = &cobra.Command{
	Use:   "update <pid>",
	Short: "Change profile fields; only flags that are set are sent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{}
		for flag, field := range map[string]string{"fname": "fname", "lname": "lname", "handed": "handed"} {
			if cmd.Flags().Changed(flag) {
				v, _ := cmd.Flags().GetString(flag)
				body[field] = v
			}
		}
		if cmd.Flags().Changed("active") {
			v, _ := cmd.Flags().GetBool("active")
			body["is_active"] = v
		}
		return performRequest(http.MethodPatch, "/api/players/"+args[0], body)
	},
}

var playersDeleteCmd = &cobra.Command{
	Use:   "delete <pid>",
	Short: "Delete a player that is not in an active match",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodDelete, "/api/players/"+args[0], nil)
	},
}

var playersDepositCmd = &cobra.Command{
	Use:   "deposit <pid> <amount>",
	Short: "Credit a player's balance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodPost, "/api/players/"+args[0]+"/deposit", map[string]any{
			"amount_usd": args[1],
		})
	},
}

// =============================================================================
// MATCHES
// =============================================================================

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "Create, score and settle matches",
}

var matchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active and recently settled matches",
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodGet, "/api/matches", nil)
	},
}

var matchesGetCmd = &cobra.Command{
	Use:   "get <mid>",
	Short: "Show one match",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodGet, "/api/matches/"+args[0], nil)
	},
}

var matchesCreateCmd = &cobra.Command{
	Use:   "create <p1> <p2>",
	Short: "Create a match and escrow the entry fee from both players",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fee, _ := cmd.Flags().GetString("fee")
		prize, _ := cmd.Flags().GetString("prize")
		return performRequest(http.MethodPost, "/api/matches", map[string]any{
			"p1_id":         args[0],
			"p2_id":         args[1],
			"entry_fee_usd": fee,
			"prize_usd":     prize,
		})
	},
}

var matchesAwardCmd = &cobra.Command{
	Use:   "award <mid> <pid> <points>",
	Short: "Add points to a participant",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		points, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("points must be an integer: %w", err)
		}
		return performRequest(http.MethodPost, "/api/matches/"+args[0]+"/award/"+args[1], map[string]any{
			"points": points,
		})
	},
}

var matchesEndCmd = &cobra.Command{
	Use:   "end <mid>",
	Short: "Settle a match in favour of the higher score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodPost, "/api/matches/"+args[0]+"/end", nil)
	},
}

var matchesDisqualifyCmd = &cobra.Command{
	Use:   "disqualify <mid> <pid>",
	Short: "Forfeit a match against a participant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodPost, "/api/matches/"+args[0]+"/disqualify/"+args[1], nil)
	},
}

// =============================================================================
// SCENARIOS
// =============================================================================

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "Load demo data (resets the server's store)",
}

var scenariosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available scenarios",
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodGet, "/api/scenarios", nil)
	},
}

var scenariosLoadCmd = &cobra.Command{
	Use:   "load <scenario>",
	Short: "Reset the store and load a scenario",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": args[0]})
	},
}

var scenariosResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every player and match",
	RunE: func(cmd *cobra.Command, args []string) error {
		return performRequest(http.MethodPost, "/api/scenarios/reset", nil)
	},
}

// =============================================================================
// HTTP
// =============================================================================

func performRequest(method, endpoint string, body any) error {
	url := host + endpoint

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	fmt.Printf("%s %s -> %d\n", method, url, resp.StatusCode)
	if len(respBody) > 0 {
		fmt.Println(prettyJSON(respBody))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return nil
}

// prettyJSON indents JSON bodies and returns anything else unchanged.
func prettyJSON(b []byte) string {
	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		return string(b)
	}
	return out.String()
}
