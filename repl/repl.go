// Package repl runs commands typed at a console against a server, printing
// the replies the way redis-cli does.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/olekukonko/tablewriter"
	"github.com/redis/go-redis/v9"
)

// LineReader returns the next line of input; io.EOF ends the session.
type LineReader interface {
	ReadLine() (string, error)
}

// Eval runs a single line as a command using rdb and writes the reply to w.
// Blank lines are ignored.
func Eval(ctx context.Context, rdb *redis.Client, line string, w io.Writer) error {
	args, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(w, "(error) %s\n", err)
		return nil
	}
	if len(args) == 0 {
		return nil
	}

	cmdArgs := make([]interface{}, len(args))
	for adx, arg := range args {
		cmdArgs[adx] = arg
	}
	val, err := rdb.Do(ctx, cmdArgs...).Result()
	if err == redis.Nil {
		fmt.Fprintln(w, "(nil)")
		return nil
	}
	var rerr redis.Error
	if errors.As(err, &rerr) {
		fmt.Fprintf(w, "(error) %s\n", rerr.Error())
		return nil
	} else if err != nil {
		return err
	}

	if vals, ok := val.([]interface{}); ok {
		if len(vals) == 0 {
			fmt.Fprintln(w, "(empty array)")
			return nil
		}
		tw := tablewriter.NewWriter(w)
		tw.SetAutoFormatHeaders(false)
		tw.SetHeader([]string{"#", "value"})
		for vdx, v := range vals {
			tw.Append([]string{strconv.Itoa(vdx + 1), format(v)})
		}
		tw.Render()
		return nil
	}

	fmt.Fprintln(w, format(val))
	return nil
}

func format(val interface{}) string {
	switch val := val.(type) {
	case nil:
		return "(nil)"
	case string:
		return strconv.Quote(val)
	case int64:
		return fmt.Sprintf("(integer) %d", val)
	case []interface{}:
		strs := make([]string, len(val))
		for vdx, v := range val {
			strs[vdx] = format(v)
		}
		return "[" + strings.Join(strs, " ") + "]"
	}
	return fmt.Sprintf("%v", val)
}

// Run evaluates lines from lr until it returns io.EOF or the connection
// fails.
func Run(ctx context.Context, rdb *redis.Client, lr LineReader, w io.Writer) error {
	for {
		line, err := lr.ReadLine()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			return nil
		}
		err = Eval(ctx, rdb, line, w)
		if err != nil {
			return err
		}
	}
}
