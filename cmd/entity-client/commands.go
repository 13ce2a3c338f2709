package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	entitycli "github.com/Layr-Labs/entity-client/internal/cli"
	"github.com/Layr-Labs/entity-client/pkg/entity"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

type session struct {
	cfg    *entitycli.Config
	logger *zap.Logger
	client *entity.Client
}

func newSession(c *cli.Context) (*session, error) {
	cfg := entitycli.NewConfigFromCLI(c)
	logger, err := entitycli.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	ecfg, err := cfg.EntityConfig()
	if err != nil {
		return nil, err
	}
	client, err := entity.NewClient(ecfg, entity.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &session{cfg: cfg, logger: logger, client: client}, nil
}

// read runs an idempotent call with retries on network errors.
func (s *session) read(ctx context.Context, name string, call func() (*entity.Result, error)) error {
	res, err := entitycli.Retry(ctx, s.logger, name, s.cfg.Retry, call)
	if err != nil {
		return err
	}
	return printResult(res)
}

// write runs a mutating call once; resending could apply it twice.
func (s *session) write(call func() (*entity.Result, error)) error {
	res, err := call()
	if err != nil {
		return err
	}
	return printResult(res)
}

func printResult(res *entity.Result) error {
	pretty, err := json.MarshalIndent(json.RawMessage(res.Raw()), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}
	fmt.Printf("%s\n", string(pretty))
	return nil
}

func entityArg(c *cli.Context) (string, error) {
	name := c.Args().Get(0)
	if name == "" {
		return "", fmt.Errorf("ENTITY argument is required")
	}
	return name, nil
}

func seqArg(c *cli.Context, label string) (int64, error) {
	raw := c.Args().Get(1)
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", label, raw)
	}
	return seq, nil
}

func listOptions(c *cli.Context) entity.ListOptions {
	return entity.ListOptions{
		Page:    c.Int(entitycli.PageFlag.Name),
		Limit:   c.Int(entitycli.LimitFlag.Name),
		OrderBy: c.String(entitycli.OrderByFlag.Name),
	}
}

func runGet(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	name, err := entityArg(c)
	if err != nil {
		return err
	}
	seq, err := seqArg(c, "SEQ")
	if err != nil {
		return err
	}
	return s.read(c.Context, "get", func() (*entity.Result, error) {
		return s.client.Get(c.Context, name, seq)
	})
}

func runList(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	name, err := entityArg(c)
	if err != nil {
		return err
	}
	opts := listOptions(c)
	return s.read(c.Context, "list", func() (*entity.Result, error) {
		return s.client.List(c.Context, name, opts)
	})
}

func runCount(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	name, err := entityArg(c)
	if err != nil {
		return err
	}
	return s.read(c.Context, "count", func() (*entity.Result, error) {
		return s.client.Count(c.Context, name)
	})
}

func runQuery(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	name, err := entityArg(c)
	if err != nil {
		return err
	}
	var filters []entity.Filter
	if arg := c.String(entitycli.FilterFlag.Name); arg != "" {
		raw, err := entitycli.ReadArg(arg, os.Stdin)
		if err != nil {
			return err
		}
		if filters, err = entitycli.ParseFilters(raw); err != nil {
			return err
		}
	}
	opts := listOptions(c)
	return s.read(c.Context, "query", func() (*entity.Result, error) {
		return s.client.Query(c.Context, name, filters, opts)
	})
}

func runSubmit(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	name, err := entityArg(c)
	if err != nil {
		return err
	}
	raw, err := entitycli.ReadArg(c.String(entitycli.DataFlag.Name), os.Stdin)
	if err != nil {
		return err
	}
	data, err := entitycli.ParseObject(raw)
	if err != nil {
		return err
	}
	opts := entity.SubmitOptions{TransactionID: c.String(entitycli.TransactionFlag.Name)}
	return s.write(func() (*entity.Result, error) {
		return s.client.Submit(c.Context, name, data, opts)
	})
}

func runDelete(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	name, err := entityArg(c)
	if err != nil {
		return err
	}
	seq, err := seqArg(c, "SEQ")
	if err != nil {
		return err
	}
	opts := entity.DeleteOptions{
		TransactionID: c.String(entitycli.TransactionFlag.Name),
		Hard:          c.Bool(entitycli.HardFlag.Name),
	}
	return s.write(func() (*entity.Result, error) {
		return s.client.Delete(c.Context, name, seq, opts)
	})
}

func runHistory(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	name, err := entityArg(c)
	if err != nil {
		return err
	}
	seq, err := seqArg(c, "SEQ")
	if err != nil {
		return err
	}
	opts := entity.HistoryOptions{
		Page:  c.Int(entitycli.PageFlag.Name),
		Limit: c.Int(entitycli.LimitFlag.Name),
	}
	return s.read(c.Context, "history", func() (*entity.Result, error) {
		return s.client.History(c.Context, name, seq, opts)
	})
}

func runRollback(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	name, err := entityArg(c)
	if err != nil {
		return err
	}
	historySeq, err := seqArg(c, "HISTORY_SEQ")
	if err != nil {
		return err
	}
	return s.write(func() (*entity.Result, error) {
		return s.client.Rollback(c.Context, name, historySeq)
	})
}

func runTransStart(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	id, err := s.client.StartTransaction(c.Context)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

// Each invocation is a new process with an empty transaction slot, so commit
// and rollback need the id printed by "trans start".
func transactionArg(c *cli.Context) (string, error) {
	id := c.Args().Get(0)
	if id == "" {
		return "", fmt.Errorf("TRANSACTION_ID argument is required: %w", entity.ErrNoActiveTransaction)
	}
	return id, nil
}

func runTransCommit(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	id, err := transactionArg(c)
	if err != nil {
		return err
	}
	return s.write(func() (*entity.Result, error) {
		return s.client.CommitTransaction(c.Context, id)
	})
}

func runTransRollback(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	id, err := transactionArg(c)
	if err != nil {
		return err
	}
	return s.write(func() (*entity.Result, error) {
		return s.client.RollbackTransaction(c.Context, id)
	})
}

func runApply(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	path := c.Args().Get(0)
	if path == "" {
		return fmt.Errorf("FILE argument is required")
	}
	arg := "@" + path
	if path == "-" {
		arg = "-"
	}
	raw, err := entitycli.ReadArg(arg, os.Stdin)
	if err != nil {
		return err
	}
	ops, err := entitycli.ParseOps(raw)
	if err != nil {
		return err
	}

	return s.write(func() (*entity.Result, error) {
		return s.client.WithTransaction(c.Context, func(ctx context.Context, txID string) error {
			for i, op := range ops {
				var err error
				switch op.Op {
				case "submit":
					_, err = s.client.Submit(ctx, op.Entity, op.Data, entity.SubmitOptions{})
				case "delete":
					_, err = s.client.Delete(ctx, op.Entity, op.Seq, entity.DeleteOptions{Hard: op.Hard})
				}
				if err != nil {
					return fmt.Errorf("operation %d (%s %s): %w", i, op.Op, op.Entity, err)
				}
				s.logger.Sugar().Debugw("Queued operation", "transaction_id", txID, "index", i, "op", op.Op, "entity", op.Entity)
			}
			return nil
		})
	})
}
