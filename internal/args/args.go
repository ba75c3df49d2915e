package args

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

// DefaultConfigFile is the configuration file looked up in the root directory
// when --config-file is not given.
const DefaultConfigFile = "nuxt.config.toml"

// Args represents parsed command-line arguments for `nuxt start`.
type Args struct {
	Help       bool
	Hostname   string
	Port       string
	UnixSocket string
	ConfigFile string
	SPA        bool
	Universal  bool

	// RootDir is the first positional argument, empty when omitted.
	RootDir string

	// HostnameSet reports whether --hostname appeared at all, so that an
	// explicitly empty value can be told apart from an absent one.
	HostnameSet bool
}

// ConfigFileSet reports whether a non-default config file was requested.
func (a Args) ConfigFileSet() bool {
	return a.ConfigFile != "" && a.ConfigFile != DefaultConfigFile
}

// Parse parses the provided arguments slice. Flags and the root directory
// may appear in any order.
func Parse(rawArgs []string) (Args, error) {
	fs := pflag.NewFlagSet("nuxt start", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var parsed Args
	fs.BoolVarP(&parsed.Help, "help", "h", false, "Displays this message")
	fs.StringVarP(&parsed.Hostname, "hostname", "H", "", "Hostname on which to start the application")
	fs.StringVarP(&parsed.Port, "port", "p", "", "A port number on which to start the application")
	fs.StringVarP(&parsed.UnixSocket, "unix-socket", "n", "", "Path to a UNIX socket")
	fs.StringVarP(&parsed.ConfigFile, "config-file", "c", DefaultConfigFile, "Path to Nuxt.js config file")
	fs.BoolVarP(&parsed.SPA, "spa", "s", false, "Launch in SPA mode")
	fs.BoolVarP(&parsed.Universal, "universal", "u", false, "Launch in Universal mode (default)")

	if err := fs.Parse(fillMissingValues(rawArgs)); err != nil {
		return Args{}, err
	}

	parsed.HostnameSet = fs.Changed("hostname")
	if fs.NArg() > 0 {
		parsed.RootDir = fs.Arg(0)
	}

	return parsed, nil
}

// valueFlags are the string flags that take a separate value argument.
var valueFlags = map[string]bool{
	"--hostname": true, "-H": true,
	"--port": true, "-p": true,
	"--unix-socket": true, "-n": true,
	"--config-file": true, "-c": true,
}

// fillMissingValues inserts an empty value after a string flag that is
// followed by another flag or ends the list, so `-H -p 3000` reads as an
// empty hostname instead of the hostname "-p".
func fillMissingValues(rawArgs []string) []string {
	out := make([]string, 0, len(rawArgs)+1)
	for i, a := range rawArgs {
		if a == "--" {
			return append(out, rawArgs[i:]...)
		}
		out = append(out, a)
		if !valueFlags[a] {
			continue
		}
		if i+1 == len(rawArgs) || isFlag(rawArgs[i+1]) {
			out = append(out, "")
		}
	}
	return out
}

func isFlag(a string) bool {
	return len(a) > 1 && strings.HasPrefix(a, "-")
}

// Usage writes the help text for `nuxt start`.
func Usage(w io.Writer) {
	fmt.Fprintf(w, `
    Description
      Starts the application in production mode.
      The application should be compiled with `+"`nuxt build`"+` first.
    Usage
      $ nuxt start <dir> -p <port number> -H <hostname>
    Options
      --port, -p            A port number on which to start the application
      --hostname, -H        Hostname on which to start the application
      --unix-socket, -n     Path to a UNIX socket
      --spa                 Launch in SPA mode
      --universal           Launch in Universal mode (default)
      --config-file, -c     Path to Nuxt.js config file (default: %s)
      --help, -h            Displays this message
`, DefaultConfigFile)
}
