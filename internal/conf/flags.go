package conf

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindFlags binds each flag in flags to a settings key of the global viper
// instance, so Load prefers a flag the user set over file and default
// values. bindings maps flag names to keys such as "host.samplerate".
func BindFlags(flags *pflag.FlagSet, bindings map[string]string) error {
	for name, key := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("error binding flags: unknown flag %q", name)
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}
