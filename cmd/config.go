package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taimoss/geoguessr-ai-1/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and persist settings",
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(config.GetString(args[0]))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a setting and write it to the config file",
	Long: `Set updates one setting and persists the full configuration to
<data-dir>/geoai.yaml, where later runs pick it up. Values are stored as
strings; durations use Go syntax ("30s", "1500ms").`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		config.Set(args[0], args[1])
		if err := config.Save(dataDir); err != nil {
			return fmt.Errorf("failed to persist config: %w", err)
		}
		fmt.Printf("%s = %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
