package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goliatone/go-print"
	"github.com/littlegabriel/gabriel/health"
	"github.com/spf13/cobra"
)

func checkCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "check [env|database|llm|bible|redis|all]",
		Short:     "Run diagnostics against the configured dependencies",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{health.CheckEnv, health.CheckDatabase, health.CheckLLM, health.CheckBible, health.CheckRedis, "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "all"
			if len(args) == 1 {
				target = args[0]
			}

			app, err := Bootstrap(*configFile)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var dbErr, redisErr error
			if target == "all" || target == health.CheckDatabase {
				dbErr = WithPersistence(ctx, app)
				defer app.Close()
			}
			if target == "all" || target == health.CheckRedis {
				redisErr = WithRevocation(ctx, app)
			}
			_ = WithUpstreams(ctx, app)

			checker := app.Checks(os.LookupEnv)
			if dbErr != nil {
				checker.Register(failed(health.CheckDatabase, dbErr))
			}
			if redisErr != nil {
				checker.Register(failed(health.CheckRedis, redisErr))
			}

			if target != "all" {
				result, ok := checker.RunOne(ctx, target)
				if !ok {
					return fmt.Errorf("unknown check %q, available: %v", target, checker.Names())
				}
				fmt.Println(print.MaybePrettyJSON(result))
				if result.Status == health.StatusError {
					return fmt.Errorf("%s check failed", target)
				}
				return nil
			}

			report := checker.Run(ctx)
			fmt.Println(print.MaybePrettyJSON(report))
			if !report.Healthy() {
				return fmt.Errorf("one or more checks failed")
			}
			success("all checks passed")
			return nil
		},
	}
	return cmd
}

// failed reports a dependency that could not even be opened
func failed(name string, err error) health.Check {
	return health.NewCheck(name, func(context.Context) (map[string]any, error) {
		return nil, err
	})
}

func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
