package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/magbak/mbei/internal/domain/event"
	centralstore "github.com/magbak/mbei/internal/infrastructure/central"
	"github.com/magbak/mbei/internal/infrastructure/logging"
	"github.com/magbak/mbei/internal/infrastructure/transport"
)

var centralCmd = &cobra.Command{
	Use:   "central",
	Short: "Run the central durability store",
	Long: `Starts a server that records every Deltas package ever asserted
and every retraction, independent of any component's in-memory working
set. Unlike a query component, central never calls an application or
routes anywhere further; it only durably records what it's told.`,
	RunE: runCentral,
}

var (
	centralDataDir string
	centralPort    int
)

func init() {
	rootCmd.AddCommand(centralCmd)

	f := centralCmd.Flags()
	f.StringVarP(&centralDataDir, "data-dir", "d", "", "directory the BadgerDB instance is stored under")
	f.IntVarP(&centralPort, "port", "p", 9000, "TCP port to listen on")

	centralCmd.MarkFlagRequired("data-dir")
}

func runCentral(cmd *cobra.Command, args []string) error {
	log := logging.NewConsole(viperLogLevel())

	st, err := centralstore.Open(centralDataDir, log)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	queue := transport.NewQueue()
	dispatcher := &centralDispatcher{queue: queue, store: st, log: log}

	addr := fmt.Sprintf(":%d", centralPort)
	srv := transport.NewServer(addr, queue, dispatcher, log)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	log.Info("central store started", "addr", addr, "data_dir", centralDataDir)
	<-ctx.Done()
	log.Info("shutting down")
	srv.Stop()
	return nil
}

// centralDispatcher drains the inbox synchronously on every Notify,
// since the central store has no consistency loop of its own: every
// update is a one-shot insert or retraction, not a match to reprocess.
type centralDispatcher struct {
	queue *transport.Queue
	store *centralstore.Store
	log   *logging.Logger
}

func (d *centralDispatcher) Notify() {
	for {
		u, ok := d.queue.PopEarliest()
		if !ok || u.Kind == event.KindStop {
			return
		}
		if err := d.store.ProcessUpdate(u); err != nil {
			d.log.Error("central: processing update failed", "error", err.Error())
		}
	}
}
