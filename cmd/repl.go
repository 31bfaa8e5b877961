package cmd

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/leftmike/rowdis/repl"
)

var (
	replCmd = &cobra.Command{
		Use:   "repl",
		Short: "Run with an interactive console session",
		Long: "Run with an interactive console session. Without --connect, " +
			"an in-process server is started on a loopback address.",
		RunE: replRun,
	}

	connect = ""
)

func init() {
	replCmd.Flags().StringVarP(&connect, "connect", "c", connect,
		"`address` of a running server to connect to")

	rowdisCmd.AddCommand(replCmd)
}

func replRun(cmd *cobra.Command, args []string) error {
	addr := connect
	if addr == "" {
		e, rst, err := openEngine()
		if err != nil {
			return err
		}
		defer rst.Close()

		svr := newServer("127.0.0.1:0", e)
		go svr.ListenAndServe()
		defer svr.Close()

		a := svr.Addr()
		if a == nil {
			return fmt.Errorf("rowdis: console server failed to listen")
		}
		addr = a.String()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Protocol: 2,
	})
	defer rdb.Close()

	return repl.Interact(context.Background(), rdb)
}
