package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"regexp"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/mds/slice"
	"github.com/kr/pretty"

	"github.com/danderson/scriptbus"
	"github.com/danderson/scriptbus/config"
	"github.com/danderson/scriptbus/freedesktop/notifications"
	"github.com/danderson/scriptbus/luabus"
	"github.com/danderson/scriptbus/value"
)

var globalArgs struct {
	Config   string        `flag:"config,Path to a YAML config file (default $SCRIPTBUS_CONFIG)"`
	Bus      string        `flag:"bus,Bus to connect to: session, system or starter"`
	Address  string        `flag:"address,DBus server address, overrides --bus"`
	Timeout  time.Duration `flag:"timeout,Method call timeout"`
	Debug    bool          `flag:"debug,Log call payloads and replies"`
	LogLevel string        `flag:"log-level,Log level: debug, info, warn or error"`
}

// loadConfig returns the configuration, with command-line flags
// applied over the file and environment settings.
func loadConfig() (*config.Config, error) {
	path := globalArgs.Config
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if globalArgs.Bus != "" {
		cfg.Bus = globalArgs.Bus
	}
	if globalArgs.Address != "" {
		cfg.Address = globalArgs.Address
	}
	if globalArgs.Timeout > 0 {
		cfg.Timeout = globalArgs.Timeout
	}
	if globalArgs.Debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	if globalArgs.LogLevel != "" {
		cfg.LogLevel = globalArgs.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lvl, _ := cfg.Level()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return cfg, nil
}

func dial(ctx context.Context, cfg *config.Config, bus scriptbus.BusType) (*scriptbus.Conn, error) {
	if cfg.Address != "" {
		return scriptbus.Dial(ctx, cfg.Address)
	}
	return scriptbus.Open(ctx, bus)
}

// busClient connects to the configured bus.
func busClient(ctx context.Context) (*scriptbus.Client, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	bus, _ := cfg.BusType()
	conn, err := dial(ctx, cfg, bus)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s bus: %w", bus, err)
	}
	c := &scriptbus.Client{
		Conn:    conn,
		Timeout: cfg.Timeout,
		Debug:   cfg.Debug,
	}
	return c, func() { conn.Close() }, nil
}

func main() {
	root := &command.C{
		Name:     "scriptbus",
		Usage:    "command args...",
		Help:     "Call DBus methods from the command line and from Lua scripts.",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			{
				Name:  "call",
				Usage: "call peer object interface.method [arg...]",
				Help: `Call a DBus method and print its reply.

Each argument is one of:
  KIND:literal    a basic value, e.g. INT32:42 or OBJECT_PATH:/org/foo
  {...}           a typed value in YAML/JSON form, e.g.
                  '{type: VARIANT, value: {type: UINT32, value: 7}}'
  anything else   a STRING`,
				Run: runCall,
			},
			{
				Name:  "run",
				Usage: "run script.lua [arg...]",
				Help:  "Run a Lua script with the dbus module available.",
				Run:   runScript,
			},
			{
				Name:  "signature",
				Usage: "signature descriptor...",
				Help:  "Compile type descriptors, such as ARRAY<DICT_ENTRY<STRING,VARIANT>>, to DBus signatures.",
				Run:   runSignature,
			},
			{
				Name:  "describe",
				Usage: "describe signature",
				Help:  "Print the type descriptors of a DBus signature.",
				Run:   command.Adapt(runDescribe),
			},
			{
				Name:  "introspect",
				Usage: "introspect peer [object] [interface]",
				Help: `Show the API of a peer's objects.

With one argument, walks the peer's whole object tree. object and
interface are regular expressions that filter the listing.`,
				Run: runIntrospect,
			},
			{
				Name:  "children",
				Usage: "children peer object",
				Help:  "List an object's child objects.",
				Run:   command.Adapt(runChildren),
			},
			{
				Name:  "props",
				Usage: "props peer object interface [property]",
				Help:  "List properties. property is a regular expression that filters the listing.",
				Run:   runProps,
			},
			{
				Name:  "ping",
				Usage: "ping peer",
				Help:  "Ping a peer.",
				Run:   command.Adapt(runPing),
			},
			{
				Name:  "names",
				Usage: "names",
				Help:  "List the names on the bus.",
				Run:   command.Adapt(runNames),
			},
			{
				Name:  "notify",
				Usage: "notify summary [body]",
				Help:  "Show a desktop notification.",
				Run:   runNotify,
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

func runCall(env *command.Env) error {
	if len(env.Args) < 3 {
		return env.Usagef("call requires a peer, an object and a method.")
	}
	peer, path, method := env.Args[0], env.Args[1], env.Args[2]
	i := strings.LastIndexByte(method, '.')
	if i < 0 {
		return env.Usagef("method %q must be qualified with its interface", method)
	}
	iface, member := method[:i], method[i+1:]

	c, done, err := busClient(env.Context())
	if err != nil {
		return err
	}
	defer done()

	target := c.Peer(peer).Object(path).Interface(iface)
	var md *scriptbus.MethodDescription
	if desc, ok, err := target.Description(env.Context()); err != nil {
		slog.Debug("introspection failed, sending arguments as given", "target", target, "err", err)
	} else if ok {
		md = desc.Methods[member]
	}
	args, err := parseArgs(env.Args[3:], md)
	if err != nil {
		return err
	}

	ret, err := target.Call(env.Context(), member, args...)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	for _, v := range ret {
		fmt.Printf("%# v\n", pretty.Formatter(value.ToMap(v)))
	}
	return nil
}

func runScript(env *command.Env) error {
	if len(env.Args) < 1 {
		return env.Usagef("run requires a script.")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l := luabus.NewState(env.Context(), cfg.LibDir, luabus.Options{
		Timeout: cfg.Timeout,
		Debug:   cfg.Debug,
		Open: func(ctx context.Context, bus scriptbus.BusType) (scriptbus.Connection, error) {
			conn, err := dial(ctx, cfg, bus)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
	})
	return luabus.RunFile(l, env.Args[0], env.Args[1:])
}

func runSignature(env *command.Env) error {
	if len(env.Args) == 0 {
		return env.Usagef("signature requires at least one descriptor.")
	}
	var errs []error
	for _, d := range env.Args {
		sig, err := scriptbus.Compile(value.Descriptor(d))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d, err))
			continue
		}
		fmt.Printf("%s\t%s\n", d, sig)
	}
	return errors.Join(errs...)
}

func runDescribe(env *command.Env, sig string) error {
	s, err := scriptbus.ParseSignature(sig)
	if err != nil {
		return err
	}
	for _, t := range s.Types() {
		d, err := scriptbus.Describe(t)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", t, d)
	}
	return nil
}

func runIntrospect(env *command.Env) error {
	if len(env.Args) < 1 || len(env.Args) > 3 {
		return env.Usagef("introspect requires a peer, and optional object and interface filters.")
	}
	args := growTo(env.Args, 3)

	c, done, err := busClient(env.Context())
	if err != nil {
		return err
	}
	defer done()

	var out indenter
	var prev scriptbus.Object
	for iface, err := range listInterfaces(env.Context(), c.Peer(args[0]), args[1], args[2]) {
		if err != nil {
			out.indent(0)
			out.v(err)
			continue
		}
		if iface.Object() != prev {
			out.indent(0)
			out.v(iface.Object().Path())
			prev = iface.Object()
		}
		out.indent(1)
		out.v(iface.Desc)
	}
	return nil
}

func runChildren(env *command.Env, peer, path string) error {
	c, done, err := busClient(env.Context())
	if err != nil {
		return err
	}
	defer done()

	children, err := c.Peer(peer).Object(path).Children(env.Context())
	if err != nil {
		return fmt.Errorf("listing children of %s: %w", path, err)
	}
	for _, child := range children {
		fmt.Println(child)
	}
	return nil
}

func runProps(env *command.Env) error {
	if len(env.Args) < 3 || len(env.Args) > 4 {
		return env.Usagef("props requires a peer, an object and an interface.")
	}
	args := growTo(env.Args, 4)
	pf, err := regexp.Compile(args[3])
	if err != nil {
		return err
	}

	c, done, err := busClient(env.Context())
	if err != nil {
		return err
	}
	defer done()

	iface := c.Peer(args[0]).Object(args[1]).Interface(args[2])
	props, err := iface.GetAllProperties(env.Context())
	if err != nil {
		return fmt.Errorf("listing properties of %s: %w", iface, err)
	}
	ks := slices.Collect(slice.Select(slices.Sorted(maps.Keys(props)), pf.MatchString))
	for _, k := range ks {
		fmt.Printf("%s: %# v\n", k, pretty.Formatter(value.Plain(props[k])))
	}
	return nil
}

func runPing(env *command.Env, peer string) error {
	c, done, err := busClient(env.Context())
	if err != nil {
		return err
	}
	defer done()

	start := time.Now()
	if err := c.Peer(peer).Ping(env.Context()); err != nil {
		return fmt.Errorf("pinging %s: %w", peer, err)
	}
	fmt.Printf("%s: pong in %v\n", peer, time.Since(start).Round(time.Microsecond))
	return nil
}

func runNames(env *command.Env) error {
	c, done, err := busClient(env.Context())
	if err != nil {
		return err
	}
	defer done()

	names, err := c.ListNames(env.Context())
	if err != nil {
		return fmt.Errorf("listing bus names: %w", err)
	}
	slices.Sort(names)
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runNotify(env *command.Env) error {
	if len(env.Args) < 1 || len(env.Args) > 2 {
		return env.Usagef("notify requires a summary, and an optional body.")
	}
	args := growTo(env.Args, 2)

	c, done, err := busClient(env.Context())
	if err != nil {
		return err
	}
	defer done()

	id, err := notifications.New(c).Notify(env.Context(), notifications.NotifyRequest{
		AppName: "scriptbus",
		Summary: args[0],
		Body:    args[1],
		Timeout: -1,
	})
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	fmt.Println("notification", id)
	return nil
}
