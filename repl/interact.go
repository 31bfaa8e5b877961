package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/peterh/liner"
	"github.com/redis/go-redis/v9"
)

const (
	rowdisHistory = ".rowdis_history"
)

type lineReader struct {
	line   *liner.State
	prompt string
}

func (lr lineReader) ReadLine() (string, error) {
	s, err := lr.line.Prompt(lr.prompt)
	if err == liner.ErrPromptAborted {
		return "", io.EOF
	} else if err != nil {
		return "", err
	}
	if s != "" {
		lr.line.AppendHistory(s)
	}
	return s, nil
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return rowdisHistory
	}
	return filepath.Join(home, rowdisHistory)
}

// Interact runs an interactive console session against rdb, keeping the
// line history between sessions.
func Interact(ctx context.Context, rdb *redis.Client) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	history := historyFile()
	if f, err := os.Open(history); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	err := Run(ctx, rdb, lineReader{line: line, prompt: rdb.Options().Addr + "> "}, os.Stdout)

	if f, err := os.Create(history); err != nil {
		fmt.Fprintf(os.Stderr, "rowdis: error writing history file, %s: %s\n", history, err)
	} else {
		line.WriteHistory(f)
		f.Close()
	}
	return err
}
