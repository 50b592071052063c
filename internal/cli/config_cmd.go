package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/soyeahso/taskweaver/internal/config"
	"github.com/soyeahso/taskweaver/internal/logging"
)

// secretKeys are masked by "config get".
var secretKeys = map[string]bool{
	"openai.apiKey":          true,
	"gateway.auth.token":     true,
	"billing.publishableKey": true,
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get or set configuration values",
	}

	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigUnsetCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigValidateCmd())

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	var reveal bool
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editConfig(args[0], false, func(raw map[string]any, path []string) error {
				val, ok := config.GetValueAtPath(raw, path)
				if !ok {
					return fmt.Errorf("key %q not found", args[0])
				}
				if s, isString := val.(string); isString && secretKeys[args[0]] && !reveal {
					val = logging.MaskSecret(s)
				}
				return printValue(cmd.OutOrStdout(), val)
			})
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print secrets unmasked")
	return cmd
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := parseValue(args[1])
			err := editConfig(args[0], true, func(raw map[string]any, path []string) error {
				config.SetValueAtPath(raw, path, value)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", args[0], value)
			return nil
		},
	}
}

func newConfigUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := editConfig(args[0], true, func(raw map[string]any, path []string) error {
				if !config.UnsetValueAtPath(raw, path) {
					return fmt.Errorf("key %q not found", args[0])
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unset %s\n", args[0])
			return nil
		},
	}
}

// editConfig loads the config file as a generic map and passes fn the
// parsed key. With save set, the edited map must validate before it is
// written back.
func editConfig(key string, save bool, fn func(raw map[string]any, path []string) error) error {
	path, err := config.ParseConfigPath(key)
	if err != nil {
		return err
	}
	raw, err := config.LoadRaw(paths.Config)
	if err != nil {
		return err
	}
	if err := fn(raw, path); err != nil || !save {
		return err
	}

	issues, err := config.ValidateRaw(raw)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		msgs := make([]string, len(issues))
		for i, issue := range issues {
			msgs[i] = issue.String()
		}
		return fmt.Errorf("not saved: %s", strings.Join(msgs, "; "))
	}
	return config.SaveRaw(paths.Config, raw)
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config file for problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadedConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			issues := config.Validate(c)
			for _, issue := range issues {
				fmt.Fprintf(out, "  - %s\n", issue)
			}
			for _, name := range config.MissingCredentials(c) {
				fmt.Fprintf(out, "  ! %s is not set\n", name)
			}
			if len(issues) > 0 {
				return fmt.Errorf("config has %d issue(s)", len(issues))
			}
			fmt.Fprintln(out, "Config OK")
			return nil
		},
	}
}

// printValue outputs a value in a human-readable format.
func printValue(w io.Writer, v any) error {
	switch val := v.(type) {
	case string:
		fmt.Fprintln(w, val)
	case map[string]any, []any:
		data, err := yaml.Marshal(val)
		if err != nil {
			return err
		}
		fmt.Fprint(w, string(data))
	default:
		fmt.Fprintln(w, val)
	}
	return nil
}

// parseValue interprets a command-line string as a bool, int, float or
// string, in that order.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
