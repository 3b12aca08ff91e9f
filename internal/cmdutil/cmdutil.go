// Package cmdutil resolves command settings from cobra flags with an
// environment variable fallback. A flag set on the command line always wins.
package cmdutil

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// setting is one flag/env pair read as T.
type setting[T any] struct {
	flagName string
	envKey   string
	fromFlag func(cmd *cobra.Command, name string) (T, error)
	parse    func(string) (T, error)
}

// resolve returns the flag value when the flag was set, else the parsed
// environment value. found is false when neither is present.
func (s setting[T]) resolve(cmd *cobra.Command) (v T, found bool, err error) {
	if cmd.Flags().Changed(s.flagName) {
		v, err = s.fromFlag(cmd, s.flagName)
		if err != nil {
			return v, true, fmt.Errorf("flag --%s: %w", s.flagName, err)
		}
		return v, true, nil
	}

	raw, ok := os.LookupEnv(s.envKey)
	if !ok {
		return v, false, nil
	}
	v, err = s.parse(raw)
	if err != nil {
		return v, true, fmt.Errorf("invalid value for %s [%s]: %w", s.envKey, raw, err)
	}
	return v, true, nil
}

func stringSetting(flagName, envKey string) setting[string] {
	return setting[string]{
		flagName: flagName,
		envKey:   envKey,
		fromFlag: func(cmd *cobra.Command, name string) (string, error) { return cmd.Flags().GetString(name) },
		parse:    func(s string) (string, error) { return s, nil },
	}
}

// GetUserSetOptionalVarFromString returns the flag value, else the environment value, else "".
func GetUserSetOptionalVarFromString(cmd *cobra.Command, flagName, envKey string) string {
	v, _, _ := stringSetting(flagName, envKey).resolve(cmd)
	return v
}

// GetUserSetVarFromString returns the flag value, else the environment value.
// Unless isOptional, the setting must be present and non-empty.
func GetUserSetVarFromString(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	v, found, err := stringSetting(flagName, envKey).resolve(cmd)
	switch {
	case err != nil:
		return "", err
	case isOptional:
		return v, nil
	case !found:
		return "", fmt.Errorf("neither --%s nor %s is set", flagName, envKey)
	case v == "" && cmd.Flags().Changed(flagName):
		return "", fmt.Errorf("--%s value is empty", flagName)
	case v == "":
		return "", fmt.Errorf("%s value is empty", envKey)
	}
	return v, nil
}

// GetUserSetOptionalVarFromUint64 returns the flag or environment value parsed
// as an unsigned integer, or 0 when neither is set.
func GetUserSetOptionalVarFromUint64(cmd *cobra.Command, flagName, envKey string) (uint64, error) {
	v, _, err := setting[uint64]{
		flagName: flagName,
		envKey:   envKey,
		fromFlag: func(cmd *cobra.Command, name string) (uint64, error) { return cmd.Flags().GetUint64(name) },
		parse:    optional(func(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) }),
	}.resolve(cmd)
	return v, err
}

// GetUserSetOptionalVarFromDuration returns the flag value, else the
// environment value parsed with time.ParseDuration, else 0.
func GetUserSetOptionalVarFromDuration(cmd *cobra.Command, flagName, envKey string) (time.Duration, error) {
	v, _, err := setting[time.Duration]{
		flagName: flagName,
		envKey:   envKey,
		fromFlag: func(cmd *cobra.Command, name string) (time.Duration, error) { return cmd.Flags().GetDuration(name) },
		parse:    optional(time.ParseDuration),
	}.resolve(cmd)
	return v, err
}

// optional treats an empty environment value as unset.
func optional[T any](parse func(string) (T, error)) func(string) (T, error) {
	return func(s string) (T, error) {
		if s == "" {
			var zero T
			return zero, nil
		}
		return parse(s)
	}
}
