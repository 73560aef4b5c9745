// Command home2l-server is the resources kernel's core daemon (spec
// §6 "CLI surface"): it loads resources.conf, starts every configured
// subsystem, and serves the wire protocol and admin HTTP surface until
// SIGTERM/SIGINT, at which point it shuts down gracefully (stop
// drivers in reverse registration order, close host connections,
// flush persistence — SPEC_FULL.md's "home2l-daemon style signal
// handling"). Grounded on ManuGH-xg2g/cmd/daemon/main.go's flag
// parsing + signal.NotifyContext shutdown shape.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	goruntime "runtime"
	"strings"
	"syscall"

	"home2l/driver"
	"home2l/rclog"
	kernel "home2l/runtime"
)

var (
	version = "dev"
)

const usage = `usage: home2l-server [options] [key=value ...]

options:
  -c <conf>      path to resources.conf (default: /etc/home2l/resources.conf)
  -x <instance>  instance name, used as a config tag and as the host id
                 (default host id: the machine's hostname)
  -s <sections>  comma-separated extra config tags (sections), beyond OS/instance
  -h             print this help and exit

key=value pre-options: persist=<path>, listen=<addr>, admin=<addr>,
demo=1|true. Any other key is a usage error.
`

func main() {
	os.Exit(run(os.Args[1:]))
}

// run contains the whole program so tests can drive it without
// exercising os.Exit (spec §6 exit codes: 0 normal, 3 usage error,
// other codes from fatal errors).
func run(args []string) int {
	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, usage)
		return 3
	}
	if opts.help {
		fmt.Fprint(os.Stdout, usage)
		return 0
	}

	rclog.Configure(rclog.Config{Level: "info", Service: "home2l-server", Version: version})
	logger := rclog.WithComponent("main")

	hostID := opts.instance
	if hostID == "" {
		hostname, _ := os.Hostname()
		hostID = hostname
	}

	cfg := kernel.Config{
		HostID:        hostID,
		ConfigPath:    opts.confPath,
		PersistPath:   opts.persistPath,
		OrphanCeiling: 4096,
		BusQueueLen:   64,
		ListenAddr:    opts.listenAddr,
		OS:            goruntime.GOOS,
		Machine:       hostID,
		Instance:      opts.instance,
		Tags:          opts.sections,
		AdminAddr:     opts.adminAddr,
		AdminRateRPS:  600,
	}

	r, err := kernel.New(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build runtime")
		return 1
	}

	if opts.demo {
		r.Drivers.RegisterDriver("demo-direct", &driver.DemoDirect{})
		r.Drivers.RegisterDriver("demo-event", driver.NewDemoEvent(driver.PublishOptimistic))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("host", hostID).
		Str("config", opts.confPath).
		Str("listen", opts.listenAddr).
		Str("admin", opts.adminAddr).
		Msg("starting home2l-server")

	if err := r.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("runtime exited with error")
		return 1
	}
	logger.Info().Msg("home2l-server stopped")
	return 0
}

type options struct {
	confPath    string
	instance    string
	sections    []string
	persistPath string
	listenAddr  string
	adminAddr   string
	demo        bool
	help        bool
}

// parseArgs implements spec §6's CLI surface: standard env-init
// options (-c, -x, -s, -h) plus bare "key=value" pre-options, which
// home2l-server recognizes for a small fixed set of keys
// (persist, listen, admin, demo) rather than threading an open-ended
// config map through the runtime.
func parseArgs(args []string) (options, error) {
	opts := options{confPath: "/etc/home2l/resources.conf"}

	i := 0
	for i < len(args) {
		a := args[i]
		switch {
		case a == "-h" || a == "--help":
			opts.help = true
			return opts, nil
		case a == "-c":
			v, ok := nextArg(args, &i)
			if !ok {
				return opts, fmt.Errorf("-c requires a path argument")
			}
			opts.confPath = v
		case a == "-x":
			v, ok := nextArg(args, &i)
			if !ok {
				return opts, fmt.Errorf("-x requires an instance name")
			}
			opts.instance = v
		case a == "-s":
			v, ok := nextArg(args, &i)
			if !ok {
				return opts, fmt.Errorf("-s requires a comma-separated section list")
			}
			opts.sections = splitNonEmpty(v, ",")
		case strings.HasPrefix(a, "-"):
			return opts, fmt.Errorf("unknown option: %s", a)
		case strings.Contains(a, "="):
			key, val, _ := strings.Cut(a, "=")
			if err := applyKV(&opts, strings.TrimSpace(key), strings.TrimSpace(val)); err != nil {
				return opts, err
			}
		default:
			return opts, fmt.Errorf("unexpected argument: %s", a)
		}
		i++
	}
	return opts, nil
}

func nextArg(args []string, i *int) (string, bool) {
	*i++
	if *i >= len(args) {
		return "", false
	}
	return args[*i], true
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyKV(opts *options, key, val string) error {
	switch key {
	case "persist":
		opts.persistPath = val
	case "listen":
		opts.listenAddr = val
	case "admin":
		opts.adminAddr = val
	case "demo":
		opts.demo = val == "1" || strings.EqualFold(val, "true")
	default:
		return fmt.Errorf("unknown key=value option: %s", key)
	}
	return nil
}
