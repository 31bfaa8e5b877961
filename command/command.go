// Package command executes parsed client commands against the engine and
// encodes their replies.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/rowdis/engine"
)

// Store is the set of engine operations used by commands.
type Store interface {
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	Set(ctx context.Context, key, value []byte) error
	MGet(ctx context.Context, keys [][]byte) ([][]byte, error)
	MSet(ctx context.Context, pairs [][]byte) error
	Incr(ctx context.Context, key []byte) (int64, error)
	Del(ctx context.Context, keys [][]byte) (int64, error)
	HGet(ctx context.Context, hash, field []byte) ([]byte, bool, error)
	HMGet(ctx context.Context, hash []byte, fields [][]byte) ([][]byte, error)
	HSet(ctx context.Context, hash []byte, pairs [][]byte) (int64, error)
	HIncr(ctx context.Context, hash, field []byte) (int64, error)
	HDel(ctx context.Context, hash []byte, fields [][]byte) (int64, error)
}

type arity int

const (
	exactly arity = iota
	atLeast
	pairs
	keyPairs
)

type command struct {
	name  string
	arity arity
	nargs int
	fn    func(ctx context.Context, st Store, args [][]byte, reply []byte) ([]byte, error)
}

var commands = map[string]*command{}

func init() {
	for _, cmd := range []*command{
		{name: "ping", arity: atLeast, nargs: 0, fn: ping},
		{name: "echo", arity: exactly, nargs: 1, fn: echo},
		{name: "get", arity: exactly, nargs: 1, fn: get},
		{name: "set", arity: exactly, nargs: 2, fn: set},
		{name: "mget", arity: atLeast, nargs: 1, fn: mget},
		{name: "mset", arity: pairs, fn: mset},
		{name: "incr", arity: exactly, nargs: 1, fn: incr},
		{name: "del", arity: atLeast, nargs: 1, fn: del},
		{name: "hget", arity: exactly, nargs: 2, fn: hget},
		{name: "hmget", arity: atLeast, nargs: 2, fn: hmget},
		{name: "hset", arity: keyPairs, fn: hset},
		{name: "hmset", arity: keyPairs, fn: hmset},
		{name: "hincr", arity: exactly, nargs: 2, fn: hincr},
		{name: "hdel", arity: atLeast, nargs: 2, fn: hdel},
	} {
		commands[cmd.name] = cmd
	}
}

func (cmd *command) checkArity(args [][]byte) bool {
	switch cmd.arity {
	case exactly:
		return len(args) == cmd.nargs
	case atLeast:
		return len(args) >= cmd.nargs
	case pairs:
		return len(args) >= 2 && len(args)%2 == 0
	case keyPairs:
		return len(args) >= 3 && len(args)%2 == 1
	}
	panic(fmt.Sprintf("unexpected arity: %d", cmd.arity))
}

// Execute runs the command name with args and appends its reply to reply.
// An error is returned, along with the error reply, only when the
// connection must not be used any further.
func Execute(ctx context.Context, st Store, name []byte, args [][]byte,
	reply []byte) ([]byte, error) {

	lname := strings.ToLower(string(name))
	cmd, ok := commands[lname]
	if !ok {
		commandCounter.WithLabelValues("unknown", "error").Inc()
		return AppendError(reply, fmt.Sprintf("ERR unknown command '%s'", name)), nil
	}
	if !cmd.checkArity(args) {
		commandCounter.WithLabelValues(cmd.name, "error").Inc()
		return AppendError(reply,
			fmt.Sprintf("ERR wrong number of arguments for '%s' command", lname)), nil
	}

	start := time.Now()
	r, err := cmd.fn(ctx, st, args, reply)
	commandDuration.WithLabelValues(cmd.name).Observe(time.Since(start).Seconds())
	if err == nil {
		commandCounter.WithLabelValues(cmd.name, "ok").Inc()
		return r, nil
	}

	commandCounter.WithLabelValues(cmd.name, "error").Inc()
	reply = AppendError(reply, "ERR "+err.Error())

	var eerr *engine.Error
	if errors.As(err, &eerr) {
		switch eerr.Kind {
		case engine.InternalConsistencyFault:
			return reply, err
		case engine.ValidationError, engine.MultiRowIncrementError, engine.NotIntegerError:
			return reply, nil
		}
	}
	log.WithFields(log.Fields{
		"command": cmd.name,
		"error":   err,
	}).Warn("command failed")
	return reply, nil
}

func ping(ctx context.Context, st Store, args [][]byte, reply []byte) ([]byte, error) {
	if len(args) > 1 {
		return AppendError(reply, "ERR wrong number of arguments for 'ping' command"), nil
	} else if len(args) == 1 {
		return AppendBulk(reply, args[0]), nil
	}
	return AppendSimple(reply, "PONG"), nil
}

func echo(ctx context.Context, st Store, args [][]byte, reply []byte) ([]byte, error) {
	return AppendBulk(reply, args[0]), nil
}

func get(ctx context.Context, st Store, args [][]byte, reply []byte) ([]byte, error) {
	val, _, err := st.Get(ctx, args[0])
	if err != nil {
		return nil, err
	}
	return AppendValue(reply, val), nil
}

func set(ctx context.Context, st Store, args [][]byte, reply []byte) ([]byte, error) {
	err := st.Set(ctx, args[0], args[1])
	if err != nil {
		return nil, err
	}
	return AppendOK(reply), nil
}

func appendValues(reply []byte, vals [][]byte) []byte {
	reply = AppendArray(reply, len(vals))
	for _, val := range vals {
		reply = AppendValue(reply, val)
	}
	return reply
}

func mget(ctx context.Context, st Store, args [][]byte, reply []byte) ([]byte, error) {
	vals, err := st.MGet(ctx, args)
	if err != nil {
		return nil, err
	}
	return appendValues(reply, vals), nil
}

func mset(ctx context.Context, st Store, args [][]byte, reply []byte) ([]byte, error) {
	err := st.MSet(ctx, args)
	if err != nil {
		return nil, err
	}
	return AppendOK(reply), nil
}

func incr(ctx context.Context, st Store, args [][]byte, reply []byte) ([]byte, error) {
	n, err := st.Incr(ctx, args[0])
	if err != nil {
		return nil, err
	}
	return AppendInteger(reply, n), nil
}

func del(ctx context.Context, st Store, args [][]byte, reply []byte) ([]byte, error) {
	n, err := st.Del(ctx, args)
	if err != nil {
		return nil, err
	}
	return AppendInteger(reply, n), nil
}

func hget(ctx context.Context, st Store, args [][]byte, reply []byte) ([]byte, error) {
	val, _, err := st.HGet(ctx, args[0], args[1])
	if err != nil {
		return nil, err
	}
	return AppendValue(reply, val), nil
}

func hmget(ctx context.Context, st Store, args [][]byte, reply []byte) ([]byte, error) {
	vals, err := st.HMGet(ctx, args[0], args[1:])
	if err != nil {
		return nil, err
	}
	return appendValues(reply, vals), nil
}

func hset(ctx context.Context, st Store, args [][]byte, reply []byte) ([]byte, error) {
	n, err := st.HSet(ctx, args[0], args[1:])
	if err != nil {
		return nil, err
	}
	return AppendInteger(reply, n), nil
}

func hmset(ctx context.Context, st Store, args [][]byte, reply []byte) ([]byte, error) {
	_, err := st.HSet(ctx, args[0], args[1:])
	if err != nil {
		return nil, err
	}
	return AppendOK(reply), nil
}

func hincr(ctx context.Context, st Store, args [][]byte, reply []byte) ([]byte, error) {
	n, err := st.HIncr(ctx, args[0], args[1])
	if err != nil {
		return nil, err
	}
	return AppendInteger(reply, n), nil
}

func hdel(ctx context.Context, st Store, args [][]byte, reply []byte) ([]byte, error) {
	n, err := st.HDel(ctx, args[0], args[1:])
	if err != nil {
		return nil, err
	}
	return AppendInteger(reply, n), nil
}
