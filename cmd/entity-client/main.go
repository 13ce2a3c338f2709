package main

import (
	"fmt"
	"os"

	entitycli "github.com/Layr-Labs/entity-client/internal/cli"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := entitycli.LoadEnvFile(os.Getenv(entitycli.EnvFileVar)); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	app := &cli.App{
		Name:  "entity-client",
		Usage: "Signed, optionally encrypted requests to an entity server",
		Flags: entitycli.GlobalFlags(),
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Fetch one row",
				ArgsUsage: "ENTITY SEQ",
				Action:    runGet,
			},
			{
				Name:      "list",
				Usage:     "List rows page by page",
				ArgsUsage: "ENTITY",
				Flags:     []cli.Flag{entitycli.PageFlag, entitycli.LimitFlag, entitycli.OrderByFlag},
				Action:    runList,
			},
			{
				Name:      "count",
				Usage:     "Count rows",
				ArgsUsage: "ENTITY",
				Action:    runCount,
			},
			{
				Name:      "query",
				Usage:     "Search rows matching every filter condition",
				ArgsUsage: "ENTITY",
				Flags:     []cli.Flag{entitycli.FilterFlag, entitycli.PageFlag, entitycli.LimitFlag, entitycli.OrderByFlag},
				Action:    runQuery,
			},
			{
				Name:      "submit",
				Usage:     "Insert a row, or update it when the data carries seq",
				ArgsUsage: "ENTITY",
				Flags:     []cli.Flag{entitycli.DataFlag, entitycli.TransactionFlag},
				Action:    runSubmit,
			},
			{
				Name:      "delete",
				Usage:     "Delete a row",
				ArgsUsage: "ENTITY SEQ",
				Flags:     []cli.Flag{entitycli.HardFlag, entitycli.TransactionFlag},
				Action:    runDelete,
			},
			{
				Name:      "history",
				Usage:     "Show the change history of a row",
				ArgsUsage: "ENTITY SEQ",
				Flags:     []cli.Flag{entitycli.PageFlag, entitycli.LimitFlag},
				Action:    runHistory,
			},
			{
				Name:      "rollback",
				Usage:     "Restore a row to the state before a history entry",
				ArgsUsage: "ENTITY HISTORY_SEQ",
				Action:    runRollback,
			},
			{
				Name:  "trans",
				Usage: "Manage server-side transactions",
				Subcommands: []*cli.Command{
					{
						Name:   "start",
						Usage:  "Open a transaction and print its ID",
						Action: runTransStart,
					},
					{
						Name:      "commit",
						Usage:     "Apply the queued operations of a transaction",
						ArgsUsage: "TRANSACTION_ID",
						Action:    runTransCommit,
					},
					{
						Name:      "rollback",
						Usage:     "Discard a transaction",
						ArgsUsage: "TRANSACTION_ID",
						Action:    runTransRollback,
					},
				},
			},
			{
				Name:      "apply",
				Usage:     "Run a file of submit/delete operations in one transaction",
				ArgsUsage: "FILE",
				Action:    runApply,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
