package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/streampulse/streampulse/internal/config"
	"github.com/streampulse/streampulse/internal/credentials"
	"github.com/streampulse/streampulse/internal/platform"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ streampulse Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 streampulse Status")
		fmt.Printf("Version: %s\n", version)

		configPath, _ := config.ConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			fmt.Println("Config:  ✓ Found (" + configPath + ")")
		} else {
			fmt.Println("Config:  ✗ Not found (defaults + environment apply)")
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Println("Config:  ? Unable to load:", err)
			return
		}

		creds := credentials.NewStatic(cfg.Credentials())
		for _, p := range platform.All() {
			if creds.Has(p) {
				fmt.Printf("%-8s ✓ Credentials found\n", string(p)+":")
			} else {
				fmt.Printf("%-8s ✗ No credentials\n", string(p)+":")
			}
		}

		if cfg.Chat.Enabled {
			fmt.Printf("Chat:    ✓ Enabled (%s, %s windows)\n", cfg.Chat.Server, cfg.Chat.CollectDuration)
		} else {
			fmt.Println("Chat:    ✗ Disabled")
		}
		if cfg.Feed.Brokers != "" {
			fmt.Printf("Feed:    ✓ Kafka %s → %s\n", cfg.Feed.Brokers, cfg.Feed.Topic)
		} else {
			fmt.Println("Feed:    ✗ Disabled")
		}
		if cfg.Notify.SlackToken != "" {
			fmt.Println("Notify:  ✓ Slack → #" + cfg.Notify.SlackChannel)
		} else {
			fmt.Println("Notify:  ✗ Disabled")
		}
	},
}
