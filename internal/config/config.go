// Package config parses the CLI surface into Options. It only records the
// --named-server-config path; the file itself is loaded by internal/registry.
//
// jessevdk/go-flags has no nargs=2 flag: it cannot declare `-H KEY VALUE` as
// one repeatable unit the way Python's argparse(action="append", nargs=2)
// does. Rather than reshape the CLI surface around that gap, the
// -H/--headers, -e/--env and --named-server pairs are pulled out of argv by a
// small manual scan before the remainder is handed to go-flags, which owns
// every other flag.
package config

import (
	"fmt"
	"strings"

	"github.com/jessevdk/go-flags"
)

// Options is the parsed CLI surface.
type Options struct {
	Positional struct {
		CommandOrURL string   `positional-arg-name:"command_or_url"`
		Args         []string `positional-arg-name:"args"`
	} `positional-args:"yes"`

	Transport string `long:"transport" choice:"sse" choice:"streamablehttp" default:"sse" description:"client-mode upstream transport"`

	Cwd string `long:"cwd" description:"working directory for the default server"`

	PassEnvironment   bool `long:"pass-environment" description:"inherit the parent environment when spawning"`
	NoPassEnvironment bool `long:"no-pass-environment"`

	Debug   bool `long:"debug" description:"verbose logging"`
	NoDebug bool `long:"no-debug"`

	NamedServerConfig string `long:"named-server-config" description:"JSON file defining named servers (exclusive of --named-server)"`

	Port     int    `long:"port" description:"server port; default a random free port"`
	SSEPort  int    `long:"sse-port" hidden:"true"`
	Host     string `long:"host" default:"127.0.0.1" description:"bind address"`
	SSEHost  string `long:"sse-host" hidden:"true"`

	Stateless   bool `long:"stateless" description:"Streamable HTTP stateless mode"`
	NoStateless bool `long:"no-stateless"`

	AllowOrigin []string `long:"allow-origin" description:"CORS allow-list entry (repeatable)"`

	Headers      []HeaderFlag
	Env          []HeaderFlag
	NamedServers []NamedServerFlag

	ExtraArgs []string
}

// HeaderFlag is one KEY VALUE pair from -H/--headers or -e/--env.
type HeaderFlag struct {
	Key   string
	Value string
}

// NamedServerFlag is one NAME COMMAND_STRING pair from --named-server.
type NamedServerFlag struct {
	Name          string
	CommandString string
}

// ParseArgs parses argv (excluding the program name) into Options.
func ParseArgs(argv []string) (*Options, error) {
	head, extra := splitDoubleDash(argv)

	headers, env, namedServers, rest, err := extractPairedFlags(head)
	if err != nil {
		return nil, err
	}

	opts := &Options{}
	if _, err := flags.ParseArgs(opts, rest); err != nil {
		return nil, err
	}

	opts.Headers = headers
	opts.Env = env
	opts.NamedServers = namedServers
	opts.ExtraArgs = extra

	if opts.NoPassEnvironment {
		opts.PassEnvironment = false
	}
	if opts.NoDebug {
		opts.Debug = false
	}
	if opts.NoStateless {
		opts.Stateless = false
	}
	if opts.Port == 0 && opts.SSEPort != 0 {
		opts.Port = opts.SSEPort
	}
	if opts.Host == "" && opts.SSEHost != "" {
		opts.Host = opts.SSEHost
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if len(opts.NamedServerConfig) > 0 && len(opts.NamedServers) > 0 {
		opts.NamedServers = nil
	}
	return opts, nil
}

// splitDoubleDash separates argv at the first "--": everything after it is
// the default server's trailing argv verbatim.
func splitDoubleDash(argv []string) (head, extra []string) {
	for i, tok := range argv {
		if tok == "--" {
			return argv[:i], argv[i+1:]
		}
	}
	return argv, nil
}

// extractPairedFlags removes every occurrence of -H/--headers, -e/--env and
// --named-server (each consuming the following two tokens) from argv,
// returning the collected pairs and the remaining argv for go-flags.
func extractPairedFlags(argv []string) (headers, env []HeaderFlag, namedServers []NamedServerFlag, rest []string, err error) {
	for i := 0; i < len(argv); i++ {
		tok := argv[i]
		switch tok {
		case "-H", "--headers":
			k, v, n, perr := takePair(argv, i, tok)
			if perr != nil {
				return nil, nil, nil, nil, perr
			}
			headers = append(headers, HeaderFlag{Key: k, Value: v})
			i += n
		case "-e", "--env":
			k, v, n, perr := takePair(argv, i, tok)
			if perr != nil {
				return nil, nil, nil, nil, perr
			}
			env = append(env, HeaderFlag{Key: k, Value: v})
			i += n
		case "--named-server":
			name, cmd, n, perr := takePair(argv, i, tok)
			if perr != nil {
				return nil, nil, nil, nil, perr
			}
			namedServers = append(namedServers, NamedServerFlag{Name: name, CommandString: cmd})
			i += n
		default:
			rest = append(rest, tok)
		}
	}
	return headers, env, namedServers, rest, nil
}

func takePair(argv []string, i int, flag string) (a, b string, consumed int, err error) {
	if i+2 >= len(argv) {
		return "", "", 0, fmt.Errorf("%s requires two arguments", flag)
	}
	return argv[i+1], argv[i+2], 2, nil
}

// IsURL reports whether commandOrURL selects client mode.
func IsURL(commandOrURL string) bool {
	return strings.HasPrefix(commandOrURL, "http://") || strings.HasPrefix(commandOrURL, "https://")
}
