package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/queue"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/workflow"
)

var (
	resolveAddress     string
	resolveCompany     string
	resolveHosts       []string
	resolveConfirmed   []string
	resolveWait        bool
	resolveWaitTimeout time.Duration
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve the owner of a single property address",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return cfg.Validate("resolve")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.orch.Submit(ctx, workflow.SubmitRequest{
			Address:        resolveAddress,
			CompanyName:    resolveCompany,
			Hosts:          resolveHosts,
			ConfirmedNames: resolveConfirmed,
		})
		if err != nil {
			return eris.Wrap(err, "submit resolution")
		}

		if !resolveWait {
			zap.L().Info("resolution enqueued", zap.String("resolution_id", res.ID))
			return printJSON(res)
		}

		// Drive the ledger inline until the resolution settles.
		workCtx, cancel := context.WithTimeout(ctx, resolveWaitTimeout)
		defer cancel()

		pool := queue.NewPool(env.store, cfg.Queue)
		env.orch.RegisterHandlers(pool)
		done := make(chan error, 1)
		go func() { done <- pool.Run(workCtx) }()

		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-workCtx.Done():
				<-done
				return eris.Wrap(workCtx.Err(), "resolution did not settle")
			case <-ticker.C:
			}

			current, err := env.store.GetResolution(ctx, res.ID)
			if err != nil {
				cancel()
				<-done
				return err
			}
			if current.Status.Terminal() {
				cancel()
				<-done
				zap.L().Info("resolution settled",
					zap.String("resolution_id", current.ID),
					zap.String("status", string(current.Status)))
				return printJSON(current)
			}
		}
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	resolveCmd.Flags().StringVar(&resolveAddress, "address", "", "property address (required)")
	resolveCmd.Flags().StringVar(&resolveCompany, "company", "", "company name the caller associates with the property")
	resolveCmd.Flags().StringSliceVar(&resolveHosts, "host", nil, "website host to verify against the property (repeatable)")
	resolveCmd.Flags().StringSliceVar(&resolveConfirmed, "confirmed-name", nil, "name already confirmed by the caller (repeatable)")
	resolveCmd.Flags().BoolVar(&resolveWait, "wait", true, "run the pipeline inline and wait for the result")
	resolveCmd.Flags().DurationVar(&resolveWaitTimeout, "timeout", 5*time.Minute, "maximum time to wait for the result")
	_ = resolveCmd.MarkFlagRequired("address")
	rootCmd.AddCommand(resolveCmd)
}
