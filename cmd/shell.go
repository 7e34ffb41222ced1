package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"grimm.is/nftctl/internal/brand"
	"grimm.is/nftctl/internal/nft"
)

// ShellOptions control RunShell.
type ShellOptions struct {
	// MetricsListen serves /metrics on this address while the shell runs.
	MetricsListen string
	// Quiet suppresses the prompt, for piped input.
	Quiet bool
}

// RunShell reads nft commands line by line from in and runs each through
// the session. A failing command is reported and the loop goes on.
func RunShell(ctx context.Context, env *Env, in io.Reader, opts ShellOptions) error {
	listen := opts.MetricsListen
	if listen == "" && env.Config.Metrics != nil {
		listen = env.Config.Metrics.Listen
	}
	if listen != "" {
		stop, err := serveMetrics(env, listen)
		if err != nil {
			return err
		}
		defer stop()
	}

	rs, err := env.Open(ctx)
	if err != nil {
		return err
	}
	defer rs.Close()

	prompt := brand.BinaryName + "> "
	scanner := bufio.NewScanner(in)
	for {
		if !opts.Quiet {
			env.printf("%s", prompt)
		}
		if !scanner.Scan() {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}

		out, err := rs.Exec(ctx, strings.Fields(line)...)
		if err != nil {
			env.printf("Error: %v\n", err)
			if errors.Is(err, nft.ErrSessionDead) && !rs.Session().Running() {
				return err
			}
			continue
		}
		if out != "" {
			env.printf("%s\n", out)
		}
	}
	if !opts.Quiet {
		env.printf("\n")
	}
	return scanner.Err()
}

func serveMetrics(env *Env, addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", env.Metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			env.Logger.Error("metrics server failed", "error", err)
		}
	}()
	env.Logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

var shellOpts ShellOptions

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run nft commands through a managed session",
	Long: `Read nft commands from stdin and run each through the session,
restarting nft if it hangs. Type "quit" or send EOF to leave.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newEnv(cmd)
		if err != nil {
			return err
		}
		opts := shellOpts
		if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
			opts.Quiet = true
		}
		return RunShell(cmd.Context(), env, cmd.InOrStdin(), opts)
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
	shellCmd.Flags().StringVar(&shellOpts.MetricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address (e.g. :9110)")
}
