package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"McpAgent/internal/logger"

	"github.com/cockroachdb/errors"
	"github.com/jessevdk/go-flags"
)

// Run 解析参数并执行选中的子命令
func Run(args []string) error {
	opts := &Options{}
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			parser.WriteHelp(os.Stdout)
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch parser.Active.Name {
	case "serve":
		return opts.Serve.run(ctx, opts)
	case "chat":
		return opts.Chat.run(ctx, opts)
	case "tools":
		return opts.Tools.run(ctx, opts)
	default:
		logger.Warn("Unknown command %s", parser.Active.Name)
		return errors.Newf("unknown command %s", parser.Active.Name)
	}
}
