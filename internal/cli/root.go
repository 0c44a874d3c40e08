package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/streampulse/streampulse/internal/cli.version=1.2.3"
	version = "0.4.1"
	logo    = "\n" +
		"      _                                        _\n" +
		"  ___| |_ _ __ ___  __ _ _ __ ___  _ __  _   _| |___  ___\n" +
		" / __| __| '__/ _ \\/ _` | '_ ` _ \\| '_ \\| | | | / __|/ _ \\\n" +
		" \\__ \\ |_| | |  __/ (_| | | | | | | |_) | |_| | \\__ \\  __/\n" +
		" |___/\\__|_|  \\___|\\__,_|_| |_| |_| .__/ \\__,_|_|___/\\___|\n" +
		"                                  |_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "streampulse",
	Short: "streampulse - social media monitoring engine",
	Long:  color.CyanString(logo) + "\nSchedule collection cycles across Twitch, Twitter, YouTube and Reddit,\nharvest live chat, and keep time-series metrics for the session.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}
