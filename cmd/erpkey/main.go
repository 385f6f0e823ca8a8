// Package main provides the erpkey command line tool: a session credential
// broker for ERP systems whose only login surface is a human-facing web page.
// It caches the one-time access token the page renders, re-acquires it
// through a browser only when the cached one has expired, and dispatches
// named API operations with the resulting credential.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/aaroflow/erpkey/pkg/browser"
	"github.com/aaroflow/erpkey/pkg/config"
	"github.com/aaroflow/erpkey/pkg/credential"
	"github.com/aaroflow/erpkey/pkg/erp"
	"github.com/aaroflow/erpkey/pkg/logging"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, `erpkey v%s - session credential broker for browser-gated ERP tokens

Usage:
  erpkey [-config path] <command> [flags]

Commands:
  init               write the default settings file
  token              print a usable access token, acquiring one if needed
  inject             seed the credential cache from raw token text on stdin
  ops                list the known API operations
  call <operation>   invoke a named API operation
  api                invoke an arbitrary API endpoint

Run 'erpkey <command> -h' for command flags.
`, version)
}

func main() {
	configPath := flag.String("config", "", "settings file path (default ~/.erpkey/config.json)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("erpkey v%s\n", version)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if err := run(args, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "erpkey: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, configPath string) error {
	if configPath == "" {
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		configPath = path
	}

	// init must work before any settings file exists.
	if args[0] == "init" {
		return cmdInit(configPath)
	}

	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, _ := logging.NewLogger("cli")
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "token":
		return cmdToken(ctx, settings, logger, args[1:])
	case "inject":
		return cmdInject(settings, logger)
	case "ops":
		return cmdOps()
	case "call":
		return cmdCall(ctx, settings, logger, args[1:])
	case "api":
		return cmdAPI(ctx, settings, logger, args[1:])
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// newBroker wires the store, browser driver and broker from settings.
func newBroker(settings *config.Settings, logger *logging.Logger) (*credential.Broker, *browser.Driver, error) {
	credPath, err := settings.ResolveCredentialPath()
	if err != nil {
		return nil, nil, err
	}
	store := credential.NewStore(credPath, logger)
	driver := browser.NewDriver(settings, logger)
	return credential.NewBroker(store, driver, settings.DefaultLifetime(), logger), driver, nil
}

func cmdInit(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("settings file already exists at %s", configPath)
	}
	if err := config.DefaultSettings().Save(configPath); err != nil {
		return err
	}
	fmt.Printf("wrote default settings to %s\n", configPath)
	return nil
}

func cmdToken(ctx context.Context, settings *config.Settings, logger *logging.Logger, args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	password := fs.String("password", "", "ERP password to auto-fill (otherwise log in manually)")
	del := fs.Bool("delete", false, "invalidate the cached credential and exit")
	show := fs.Bool("show", false, "show cached credential metadata without acquiring")
	if err := fs.Parse(args); err != nil {
		return err
	}

	broker, driver, err := newBroker(settings, logger)
	if err != nil {
		return err
	}
	defer driver.Shutdown()

	switch {
	case *del:
		if err := broker.Delete(); err != nil {
			return err
		}
		fmt.Println("cached credential deleted")
		return nil

	case *show:
		cred := broker.Current()
		if cred == nil {
			fmt.Println("no usable credential cached")
			return nil
		}
		fmt.Printf("secret:   %s\n", credential.MaskSecret(cred.Secret))
		if cred.Subject != "" {
			fmt.Printf("subject:  %s\n", cred.Subject)
		}
		if cred.Group != "" {
			fmt.Printf("group:    %s\n", cred.Group)
		}
		fmt.Printf("issued:   %s\n", cred.IssuedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("expires:  %s\n", cred.ExpiresAt.Format("2006-01-02 15:04:05"))
		return nil

	default:
		secret, err := broker.GetSecret(ctx, *password)
		if err != nil {
			return err
		}
		// The secret itself is the output; it goes to stdout only.
		fmt.Println(secret)
		return nil
	}
}

func cmdInject(settings *config.Settings, logger *logging.Logger) error {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("failed to read token text from stdin: %w", err)
	}

	broker, _, err := newBroker(settings, logger)
	if err != nil {
		return err
	}

	cred, err := broker.Inject(string(raw))
	if err != nil {
		return err
	}
	fmt.Printf("credential %s cached, expires %s\n",
		credential.MaskSecret(cred.Secret), cred.ExpiresAt.Format("2006-01-02 15:04:05"))
	return nil
}

func cmdOps() error {
	registry, err := erp.NewRegistry()
	if err != nil {
		return err
	}
	for _, op := range registry.List() {
		fmt.Printf("%-26s %-4s %s\n", op.Name, op.Method, op.Endpoint)
		fmt.Printf("    %s\n", op.Description)
		if len(op.Required) > 0 {
			fmt.Printf("    required: %s\n", strings.Join(op.Required, ", "))
		}
		if len(op.Optional) > 0 {
			fmt.Printf("    optional: %s\n", strings.Join(op.Optional, ", "))
		}
	}
	return nil
}

func cmdCall(ctx context.Context, settings *config.Settings, logger *logging.Logger, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return fmt.Errorf("usage: erpkey call <operation> [-p key=value ...]")
	}
	opName := args[0]

	fs := flag.NewFlagSet("call", flag.ExitOnError)
	params := paramFlags{}
	password := fs.String("password", "", "ERP password to auto-fill if acquisition is needed")
	fs.Var(&params, "p", "operation parameter as key=value (repeatable)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	registry, err := erp.NewRegistry()
	if err != nil {
		return err
	}
	op, err := registry.Get(opName)
	if err != nil {
		return err
	}

	broker, driver, err := newBroker(settings, logger)
	if err != nil {
		return err
	}
	defer driver.Shutdown()

	secret, err := broker.GetSecret(ctx, *password)
	if err != nil {
		return err
	}

	req, err := op.BuildRequest(params, secret)
	if err != nil {
		return err
	}
	return dispatch(ctx, settings, logger, req)
}

func cmdAPI(ctx context.Context, settings *config.Settings, logger *logging.Logger, args []string) error {
	fs := flag.NewFlagSet("api", flag.ExitOnError)
	endpoint := fs.String("endpoint", "", "API endpoint, e.g. /api/Stok")
	method := fs.String("method", "GET", "HTTP method (GET or POST)")
	body := fs.String("body", "", "JSON request body for POST")
	password := fs.String("password", "", "ERP password to auto-fill if acquisition is needed")
	params := paramFlags{}
	fs.Var(&params, "p", "query parameter as key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *endpoint == "" {
		return fmt.Errorf("api requires -endpoint")
	}

	broker, driver, err := newBroker(settings, logger)
	if err != nil {
		return err
	}
	defer driver.Shutdown()

	secret, err := broker.GetSecret(ctx, *password)
	if err != nil {
		return err
	}

	req := erp.Request{
		Endpoint: *endpoint,
		Method:   strings.ToUpper(*method),
		Query:    params.values(),
		Secret:   secret,
	}
	if *body != "" {
		var decoded interface{}
		if err := json.Unmarshal([]byte(*body), &decoded); err != nil {
			return fmt.Errorf("invalid -body JSON: %w", err)
		}
		req.Body = decoded
	}
	return dispatch(ctx, settings, logger, req)
}

func dispatch(ctx context.Context, settings *config.Settings, logger *logging.Logger, req erp.Request) error {
	client := erp.NewClient(settings.BaseURL, settings.RequestTimeout(), logger)
	resp, err := client.Invoke(ctx, req)
	if err != nil {
		return err
	}
	fmt.Println(prettyJSON(resp.Body))
	return nil
}

func prettyJSON(data []byte) string {
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return string(data)
	}
	pretty, err := json.MarshalIndent(decoded, "", "  ")
	if err != nil {
		return string(data)
	}
	return string(pretty)
}

// paramFlags collects repeated -p key=value flags into a parameter map.
type paramFlags map[string]string

func (p *paramFlags) String() string {
	if p == nil || len(*p) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(*p))
	for k, v := range *p {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (p *paramFlags) Set(value string) error {
	key, val, found := strings.Cut(value, "=")
	if !found || key == "" {
		return fmt.Errorf("parameter must be key=value, got %q", value)
	}
	if *p == nil {
		*p = paramFlags{}
	}
	(*p)[key] = val
	return nil
}

func (p *paramFlags) values() map[string][]string {
	out := make(map[string][]string, len(*p))
	for k, v := range *p {
		out[k] = []string{v}
	}
	return out
}
