package cmd

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestPreRun(t *testing.T) {
	dir := t.TempDir()
	writeFile := func(name, s string) string {
		filename := filepath.Join(dir, name)
		err := os.WriteFile(filename, []byte(s), 0644)
		if err != nil {
			t.Fatal(err)
		}
		return filename
	}

	*logStderr = true
	defer func() {
		*configFile = "rowdis.hcl"
		*noConfig = false
		log.SetLevel(log.InfoLevel)
	}()

	*configFile = filepath.Join(dir, "missing.hcl")
	err := rowdisPreRun(rowdisCmd, nil)
	if err != nil {
		t.Errorf("rowdisPreRun(missing default) failed with %s", err)
	}

	*configFile = writeFile("bad.hcl", "no-such-variable = 1\n")
	*noConfig = true
	err = rowdisPreRun(rowdisCmd, nil)
	if err != nil {
		t.Errorf("rowdisPreRun(no config) failed with %s", err)
	}
	*noConfig = false
	if rowdisPreRun(rowdisCmd, nil) == nil {
		t.Error("rowdisPreRun(unknown variable) did not fail")
	}

	*configFile = writeFile("file.hcl", "config-file = \"other.hcl\"\n")
	if rowdisPreRun(rowdisCmd, nil) == nil {
		t.Error("rowdisPreRun(config-file in config) did not fail")
	}

	*configFile = writeFile("rowdis.hcl", "log-level = \"debug\"\nwindow = 7\n")
	err = rowdisPreRun(rowdisCmd, nil)
	if err != nil {
		t.Fatalf("rowdisPreRun(%s) failed with %s", *configFile, err)
	}
	if *logLevel != "debug" {
		t.Errorf("log-level got %s want debug", *logLevel)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("log.GetLevel() got %s want debug", log.GetLevel())
	}
	if *window != 7 {
		t.Errorf("window got %d want 7", *window)
	}
}
