package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/magbak/mbei/internal/domain/applier"
	"github.com/magbak/mbei/internal/domain/component"
	"github.com/magbak/mbei/internal/domain/query"
	"github.com/magbak/mbei/internal/domain/store"
	"github.com/magbak/mbei/internal/infrastructure/caller"
	"github.com/magbak/mbei/internal/infrastructure/logging"
	"github.com/magbak/mbei/internal/infrastructure/router"
	"github.com/magbak/mbei/internal/infrastructure/transport"
)

var componentCmd = &cobra.Command{
	Use:   "component",
	Short: "Run the query components assigned to this host",
	Long: `Starts one component server per query this host is assigned,
per the assignments file keyed by host number. Each component owns its
own in-memory store, router, application caller, and TCP server, and runs
its own reactor goroutine.

When --application-url is omitted, each query's Application name is
resolved against the built-in example applier registry (stamp, crane,
detector, conveyor) and called in-process instead, so the scenario this
module ships with is runnable without a separate application backend.`,
	RunE: runComponent,
}

var (
	componentQueriesPath     string
	componentAssignmentsPath string
	componentURLMapPath      string
	componentPort            int
	componentHostNumber      int
	componentApplicationURL  string
	componentUseCentral      bool
)

func init() {
	rootCmd.AddCommand(componentCmd)

	f := componentCmd.Flags()
	f.StringVarP(&componentQueriesPath, "queries", "q", "", "path to the queries YAML file")
	f.StringVarP(&componentAssignmentsPath, "assignments", "a", "", "path to the host-number to query-names YAML file")
	f.StringVarP(&componentURLMapPath, "url-map", "u", "", "path to the query/topic to address YAML file")
	f.IntVarP(&componentPort, "port", "p", 9001, "TCP port this host listens on")
	f.IntVarP(&componentHostNumber, "host-number", "n", -1, "host number (defaults to the trailing number in this host's hostname)")
	f.StringVar(&componentApplicationURL, "application-url", "", "address of the application backend each query calls (omit to use the built-in example appliers)")
	f.BoolVar(&componentUseCentral, "central", false, "also route every delta to the central store")

	componentCmd.MarkFlagRequired("queries")
	componentCmd.MarkFlagRequired("assignments")
	componentCmd.MarkFlagRequired("url-map")
}

func runComponent(cmd *cobra.Command, args []string) error {
	log := logging.NewConsole(viperLogLevel())

	allQueries, err := ParseQueries(componentQueriesPath)
	if err != nil {
		return err
	}
	assignments, err := ParseAssignments(componentAssignmentsPath)
	if err != nil {
		return err
	}
	urlMap, err := ParseURLMap(componentURLMapPath)
	if err != nil {
		return err
	}

	hostNumber := componentHostNumber
	if hostNumber < 0 {
		hostNumber, err = hostNumberFromHostname()
		if err != nil {
			return err
		}
	}
	log.Info("host number resolved", "host_number", hostNumber)

	names, ok := assignments[hostNumber]
	if !ok {
		return fmt.Errorf("cli: host number %d not found in assignments file", hostNumber)
	}

	queriesByName := make(map[string]query.Query, len(allQueries))
	for _, q := range allQueries {
		queriesByName[q.Name] = q
	}

	var appCaller *caller.Caller
	var appliers *applier.Registry
	if componentApplicationURL != "" {
		appCaller = caller.New(componentApplicationURL, log)
		if err := appCaller.Start(30 * time.Second); err != nil {
			return err
		}
		defer appCaller.Close()
	} else {
		appliers = applier.NewRegistry(log)
		log.Info("no --application-url given, resolving queries against the built-in example appliers", "available", appliers.Names())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var servers []*transport.Server
	var statusServers []*transport.StatusServer
	var senders []*transport.PeerSender

	for i, name := range names {
		q, ok := queriesByName[name]
		if !ok {
			return fmt.Errorf("cli: assigned query %q not found in queries file", name)
		}

		queryCaller, err := resolveComponentCaller(q, appCaller, appliers)
		if err != nil {
			return err
		}

		st := store.New()
		r := router.New(q.Name, queriesByName, urlMap, componentUseCentral, log)
		c := component.New(q, st, queryCaller, r, log)

		sender := transport.NewPeerSender(urlMap, log)
		r.SetSender(sender)
		senders = append(senders, sender)

		queue := transport.NewQueue()
		reactor := transport.NewReactor(q.Name, queue, c, log)

		addr := fmt.Sprintf(":%d", componentPort+i)
		srv := transport.NewServer(addr, queue, reactor, log)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		servers = append(servers, srv)

		statusAddr := fmt.Sprintf(":%d", statusPort(componentPort+i))
		statusSrv := transport.NewStatusServer(statusAddr, reactor)
		if err := statusSrv.Start(ctx); err != nil {
			return err
		}
		statusServers = append(statusServers, statusSrv)

		go reactor.Run(ctx)
		log.Info("component started", "query", q.Name, "addr", addr, "status_addr", statusAddr)
	}

	<-ctx.Done()
	log.Info("shutting down")
	for _, srv := range servers {
		srv.Stop()
	}
	for _, statusSrv := range statusServers {
		statusSrv.Stop()
	}
	for _, sender := range senders {
		sender.Close()
	}
	return nil
}

// resolveComponentCaller picks q's component.Caller: the shared RPC
// caller when --application-url was given, otherwise the example applier
// the registry has registered under q.Application.
func resolveComponentCaller(q query.Query, appCaller *caller.Caller, appliers *applier.Registry) (component.Caller, error) {
	if appCaller != nil {
		return appCaller, nil
	}
	a, ok := appliers.Get(q.Application)
	if !ok {
		return nil, fmt.Errorf("cli: query %q names application %q, which has no built-in example applier (available: %v); pass --application-url to call an external one instead", q.Name, q.Application, appliers.Names())
	}
	return a, nil
}

// statusPort derives a component's status HTTP port from its RPC port,
// keeping the two in a fixed, discoverable offset rather than requiring a
// second port flag.
func statusPort(rpcPort int) int {
	return rpcPort + 1000
}

// hostNumberFromHostname derives a host number from a hostname of the
// form "mbei-N", mirroring the reference's hostname::get() convention so
// a fleet of identically-configured pods can self-assign.
func hostNumberFromHostname() (int, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return 0, fmt.Errorf("cli: could not determine hostname: %w", err)
	}
	parts := strings.Split(hostname, "-")
	last := parts[len(parts)-1]
	n, err := strconv.Atoi(last)
	if err != nil {
		return 0, fmt.Errorf("cli: invalid hostname %q, expected mbei-N where N is a number: %w", hostname, err)
	}
	return n, nil
}

func viperLogLevel() string {
	if lvl := os.Getenv("MBEI_LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return "info"
}
