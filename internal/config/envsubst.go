package config

import (
	"os"
	"regexp"
)

// envVarPattern matches $$, ${VAR} or ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\$|\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// LookupFunc resolves one variable, like os.LookupEnv.
type LookupFunc func(name string) (string, bool)

// ExpandEnvVars expands references against the process environment:
//   - ${VAR} - replaced with the value of VAR, or empty string if not set
//   - ${VAR:-default} - replaced with VAR's value, or "default" if not set
//   - $$ - a literal $, so commands can keep shell variables like $$HOME
func ExpandEnvVars(input string) string {
	return ExpandWith(input, os.LookupEnv)
}

// ExpandWith expands references using lookup.
func ExpandWith(input string, lookup LookupFunc) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		if match == "$$" {
			return "$"
		}
		sub := envVarPattern.FindStringSubmatch(match)
		if val, ok := lookup(sub[1]); ok {
			return val
		}
		return sub[2]
	})
}

// ExpandEnvVarsBytes is a convenience wrapper for byte slices.
func ExpandEnvVarsBytes(input []byte) []byte {
	return []byte(ExpandEnvVars(string(input)))
}
