package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/crestcut/internal/config"
	"github.com/kikiluvv/crestcut/internal/logging"
	"github.com/kikiluvv/crestcut/internal/workpool"
)

var (
	cfgFile string
	verbose bool
	logFile string

	// stopSignal is fired by the first interrupt.
	stopSignal = workpool.NewSignal()
	logCloser  io.Closer
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleInterrupts(cancel)

	err := rootCmd.ExecuteContext(ctx)
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

// handleInterrupts asks for a graceful stop on the first signal and cancels
// everything on the second.
func handleInterrupts(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	<-sigs
	log.Warn().Msg("interrupt received: finishing running clips, no new work will start (interrupt again to abort)")
	stopSignal.Stop()

	<-sigs
	log.Warn().Msg("second interrupt: aborting")
	cancel()
}

var rootCmd = &cobra.Command{
	Use:          "crestcut",
	Short:        "crestcut - loudness-driven highlight clipper",
	Long:         "Finds the loud moments in long recordings from their audio track and cuts a clip around each one.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		closer, err := logging.InitWithFile(verbose, logFile)
		if err != nil {
			return err
		}
		logCloser = closer

		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./crestcut.yaml, then ~/.crestcut/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also append JSON logs to this file")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(referenceCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
}
