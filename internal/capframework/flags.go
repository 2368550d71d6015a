/**
 * Capture Binary CLI.
 *
 * Every capture_* binary accepts the same small flag surface the
 * capture-framework spawns them with: either a pair of
 * inherited fds, or a connect string, plus a source definition.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package capframework

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Flags is the parsed CLI surface common to every capture helper.
type Flags struct {
	InFD    int
	OutFD   int
	Connect string
	Source  string
	Help    bool
}

// ParseFlags parses args (typically os.Args[1:]) per the capture helper
// CLI contract: --in-fd/--out-fd for a parent-spawned pipe pair,
// --connect host:port (or unix:/path) as an alternative transport, and
// --source as the device definition string.
func ParseFlags(name string, args []string) (*Flags, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	f := &Flags{}

	fs.IntVar(&f.InFD, "in-fd", -1, "inherited fd to read protocol frames from")
	fs.IntVar(&f.OutFD, "out-fd", -1, "inherited fd to write protocol frames to")
	fs.StringVar(&f.Connect, "connect", "", "connect to host:port or unix:/path instead of using --in-fd/--out-fd")
	fs.StringVar(&f.Source, "source", "", "source definition string, e.g. wlan0:type=linuxwifi")
	fs.BoolVarP(&f.Help, "help", "h", false, "show usage")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if f.Help {
		return f, nil
	}

	haveFDs := f.InFD >= 0 && f.OutFD >= 0
	haveConnect := f.Connect != ""
	if haveFDs == haveConnect {
		return nil, fmt.Errorf("%s: specify exactly one of (--in-fd and --out-fd) or --connect", name)
	}
	return f, nil
}

// Usage renders a usage string for --help.
func Usage(name string) string {
	return fmt.Sprintf(`usage: %s [--in-fd N --out-fd N | --connect host:port] [--source DEFINITION]

  --in-fd N, --out-fd N   inherited fds carrying the external-tool protocol
  --connect ADDR          connect to ADDR instead of using inherited fds
  --source DEFINITION     device definition to open, e.g. wlan0:type=linuxwifi
  --help                  show this message
`, name)
}
