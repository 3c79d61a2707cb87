package utils

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindFlags fills every flag of cmd and its subcommands that was not set on the
// command line from the config file or the environment held by v. Environment
// keys are the flag names upper-cased with dashes replaced by underscores,
// prefixed with envPrefix when it is not empty.
func BindFlags(cmd *cobra.Command, v *viper.Viper, envPrefix string) error {
	var bindErr error
	bind := func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		env := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if envPrefix != "" {
			env = strings.ToUpper(envPrefix) + "_" + env
		}
		if err := v.BindEnv(f.Name, env); err != nil {
			bindErr = fmt.Errorf("failed to bind env %s: %w", env, err)
			return
		}
		if !f.Changed && v.IsSet(f.Name) {
			val := fmt.Sprintf("%v", v.Get(f.Name))
			if f.Value.Type() == "stringSlice" {
				val = strings.Join(v.GetStringSlice(f.Name), ",")
			}
			if err := f.Value.Set(val); err != nil {
				bindErr = fmt.Errorf("invalid value for %s: %w", f.Name, err)
			}
		}
	}

	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.PersistentFlags().VisitAll(bind)
		c.Flags().VisitAll(bind)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(cmd)
	return bindErr
}
