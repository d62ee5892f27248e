package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stratum-hq/bastion/pkg/cli"
	"stratum-hq/bastion/pkg/config"
	"stratum-hq/bastion/pkg/policy"
)

var policyFlags struct {
	file   string
	format string
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and validate sharing policy files",
	Long: `Inspect and validate operator-editable sharing policy files.

Subcommands:
  validate - Validate a policy file without loading it into a server
  show     - Print the effective policy

Examples:
  # Validate a policy file before deploying it
  bastion policy validate --file sharing.yaml

  # Show the policy the configured server would run with
  bastion policy show`,
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a sharing policy file",
	Long: `Validate a sharing policy file.

Checks YAML syntax, the default filter mode and the sensitive field
list. Exits non-zero when the file would be rejected at load time.`,
	RunE: validatePolicy,
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective sharing policy",
	Long: `Print the sharing policy the configured server would run with,
falling back to built-in defaults when no policy file is configured.`,
	RunE: showPolicy,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyValidateCmd, policyShowCmd)

	policyValidateCmd.Flags().StringVarP(&policyFlags.file, "file", "f", "", "policy file to validate (required)")
	policyValidateCmd.MarkFlagRequired("file")

	policyShowCmd.Flags().StringVar(&policyFlags.format, "format", "text", "output format: text, json")
}

func validatePolicy(cmd *cobra.Command, args []string) error {
	p, err := policy.Load(policyFlags.file)
	if err != nil {
		return cli.NewCommandError("policy", err)
	}

	fmt.Printf("✓ %s is valid\n", policyFlags.file)
	fmt.Printf("  default mode: %s\n", p.DefaultMode)
	fmt.Printf("  need-to-know enabled: %t\n", p.NeedToKnowEnabled)
	fmt.Printf("  sensitive fields: %s\n", strings.Join(p.SensitiveFields, ", "))
	return nil
}

func showPolicy(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	manager, err := policy.NewManager(cfg.Policy.Path)
	if err != nil {
		return cli.NewCommandError("policy", err)
	}
	p := manager.Current()

	if policyFlags.format == "json" {
		formatter := cli.NewFormatter(cli.FormatJSON)
		return formatter.FormatTo(cmd.OutOrStdout(), p)
	}

	source := cfg.Policy.Path
	if source == "" {
		source = "(built-in defaults)"
	}
	fmt.Printf("Policy source: %s\n", source)
	fmt.Printf("Default mode: %s\n", p.DefaultMode)
	fmt.Printf("Need-to-know enabled: %t\n", p.NeedToKnowEnabled)
	fmt.Printf("Sensitive fields: %s\n", strings.Join(p.SensitiveFields, ", "))
	if cfg.Policy.Watch {
		fmt.Println("Hot reload: enabled")
	}
	return nil
}
