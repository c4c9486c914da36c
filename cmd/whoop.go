package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/daypilot-dev/daypilot/pkg/config"
	"github.com/daypilot-dev/daypilot/pkg/whoop"
)

var (
	baseDir        string
	connectScope   string
	connectTimeout int
	skipConfirm    bool
	workoutLimit   int
)

var WhoopCmd = &cobra.Command{
	Use:   "whoop",
	Short: "Manage the WHOOP connection",
	Long:  "Connect a WHOOP account, inspect the connection, and fetch health data used for daily planning",
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect your WHOOP account",
	Long: `Connect your WHOOP account via the browser-based OAuth flow.

Requires WHOOP_CLIENT_ID and WHOOP_CLIENT_SECRET in the environment or a
.env file. The WHOOP application must have its redirect URL registered as
http://127.0.0.1:8765/callback.`,
	Run: runConnect,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show WHOOP connection status",
	Run:   runStatus,
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect WHOOP and remove stored credentials",
	Run:   runDisconnect,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Fetch the latest WHOOP snapshot",
	Long:  "Fetch the latest cycle, recovery, sleep, workouts, profile and body measurement",
	Run:   runSnapshot,
}

func init() {
	WhoopCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "Directory containing .daypilot (default: current directory)")
	if err := viper.BindPFlag("base-dir", WhoopCmd.PersistentFlags().Lookup("base-dir")); err != nil {
		panic(err)
	}

	connectCmd.Flags().StringVar(&connectScope, "scope", "", "Override the requested OAuth scope")
	connectCmd.Flags().IntVar(&connectTimeout, "timeout", 300, "Seconds to wait for the browser authorization")
	connectCmd.Flags().BoolVar(&skipConfirm, "yes", false, "Skip confirmation prompts")
	disconnectCmd.Flags().BoolVar(&skipConfirm, "yes", false, "Skip confirmation prompts")
	snapshotCmd.Flags().IntVar(&workoutLimit, "workouts", whoop.DefaultWorkoutLimit, "Number of recent workouts to fetch")

	WhoopCmd.AddCommand(connectCmd)
	WhoopCmd.AddCommand(statusCmd)
	WhoopCmd.AddCommand(disconnectCmd)
	WhoopCmd.AddCommand(snapshotCmd)
}

func runConnect(cmd *cobra.Command, args []string) {
	settings := config.LoadSettings()
	if !settings.Configured() {
		fmt.Fprintln(os.Stderr, "WHOOP credentials missing. Set WHOOP_CLIENT_ID and WHOOP_CLIENT_SECRET in your environment or .env file.")
		os.Exit(1)
	}

	store := &config.Store{BaseDir: baseDir}
	existing, err := store.LoadCredentials()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if existing != nil && !skipConfirm {
		if !confirm("WHOOP is already connected. Reconnect?") {
			return
		}
	}

	flow := whoop.NewOAuthFlow(
		settings.WhoopClientID,
		settings.WhoopClientSecret,
		whoop.WithAuthURLHandler(func(authURL string) {
			fmt.Println("Opening WHOOP authorization in your browser.")
			fmt.Printf("If nothing opens, visit:\n  %s\n", authURL)
		}),
	)
	fmt.Printf("Make sure your WHOOP app's redirect URL is set to %s.\n", flow.RedirectURI())

	creds, err := flow.Connect(context.Background(), connectScope, time.Duration(connectTimeout)*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := store.SaveCredentials(creds); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("WHOOP connected successfully.")
}

func runStatus(cmd *cobra.Command, args []string) {
	store := &config.Store{BaseDir: baseDir}
	creds, err := store.LoadCredentials()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if creds == nil {
		fmt.Println("WHOOP is not connected.")
		return
	}

	state := "active"
	if creds.Expired(time.Now().UTC()) {
		state = "expired"
	}
	expiresAt := "Unknown"
	if creds.ExpiresAt != nil {
		expiresAt = creds.ExpiresAt.Format(time.RFC3339)
	}
	lastSync := "Not yet"
	if creds.LastSyncAt != nil {
		lastSync = creds.LastSyncAt.Format(time.RFC3339)
	}

	fmt.Printf("WHOOP connection: %s\n", state)
	fmt.Printf("Connected at: %s\n", creds.ConnectedAt.Format(time.RFC3339))
	fmt.Printf("Access token expires at: %s\n", expiresAt)
	fmt.Printf("Last sync: %s\n", lastSync)
}

func runDisconnect(cmd *cobra.Command, args []string) {
	store := &config.Store{BaseDir: baseDir}
	creds, err := store.LoadCredentials()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if creds == nil {
		fmt.Println("WHOOP is not connected.")
		return
	}

	if !skipConfirm && !confirm("Disconnect WHOOP and remove credentials?") {
		return
	}

	if err := store.ClearCredentials(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("WHOOP disconnected.")
}

func runSnapshot(cmd *cobra.Command, args []string) {
	store := &config.Store{BaseDir: baseDir}
	creds, err := store.LoadCredentials()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if creds == nil {
		fmt.Println("WHOOP is not connected. Run `daypilot whoop connect` first.")
		os.Exit(1)
	}

	settings := config.LoadSettings()
	client := whoop.NewClient(creds, store, settings.WhoopClientID, settings.WhoopClientSecret)

	snapshot, err := client.GetSnapshot(context.Background(), workoutLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WHOOP data unavailable: %v\n", err)
		os.Exit(1)
	}
	printSnapshot(snapshot)
}

func printSnapshot(snapshot *whoop.Snapshot) {
	if snapshot.Profile != nil {
		fmt.Printf("Profile: %s %s <%s>\n", snapshot.Profile.FirstName, snapshot.Profile.LastName, snapshot.Profile.Email)
	}
	if snapshot.Cycle != nil {
		fmt.Printf("Cycle %d: started %s (%s)\n", snapshot.Cycle.ID, snapshot.Cycle.Start.Format(time.RFC3339), snapshot.Cycle.ScoreState)
	} else {
		fmt.Println("Cycle: no data")
	}
	if snapshot.Recovery != nil {
		fmt.Printf("Recovery: %s\n", snapshot.Recovery.ScoreState)
	} else {
		fmt.Println("Recovery: no data")
	}
	if snapshot.Sleep != nil {
		fmt.Printf("Sleep %s: %s to %s\n", snapshot.Sleep.ID, snapshot.Sleep.Start.Format(time.RFC3339), snapshot.Sleep.End.Format(time.RFC3339))
	} else {
		fmt.Println("Sleep: no data")
	}
	fmt.Printf("Workouts: %d\n", len(snapshot.Workouts))
	for _, workout := range snapshot.Workouts {
		fmt.Printf("  %s at %s\n", workout.SportName, workout.Start.Format(time.RFC3339))
	}
	if snapshot.Body != nil {
		fmt.Printf("Body: %.2fm, %.1fkg, max HR %d\n", snapshot.Body.HeightMeter, snapshot.Body.WeightKilogram, snapshot.Body.MaxHeartRate)
	}
}

func confirm(prompt string) bool {
	fmt.Printf("%s (y/N): ", prompt)
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
