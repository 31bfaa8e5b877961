package config_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/leftmike/rowdis/config"
	"github.com/leftmike/rowdis/testutil"
)

func TestFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test_flags", pflag.ContinueOnError)
	cfg := config.NewConfig(fs)
	b := cfg.Var(new(bool), "bool").Usage("bool variable").Bool(true)
	i := cfg.Var(new(int), "int").Usage("int variable").Int(123)
	s := cfg.Var(new(string), "string").String("default")
	d := cfg.Var(new(time.Duration), "duration").Duration(time.Second)
	sz := cfg.Var(new(int64), "size").Size(1024)
	q := cfg.Var(new(bool), "quiet").Short("q").Bool(false)
	if *b != true {
		t.Errorf("*b != true")
	}
	if *i != 123 {
		t.Errorf("*i != 123")
	}
	if *s != "default" {
		t.Errorf("*s != \"default\"")
	}
	if *d != time.Second {
		t.Errorf("*d != time.Second")
	}
	err := fs.Parse([]string{"--bool=false", "--int", "456", "--duration=5m", "--size=4MB",
		"-q"})
	if err != nil {
		t.Fatalf("fs.Parse() failed with %s", err)
	}
	if *b != false {
		t.Errorf("*b != false")
	}
	if *i != 456 {
		t.Errorf("*i != 456")
	}
	if *s != "default" {
		t.Errorf("*s != \"default\"")
	}
	if *d != 5*time.Minute {
		t.Errorf("*d != 5*time.Minute")
	}
	if *sz != 4*1024*1024 {
		t.Errorf("*sz != 4MB: %d", *sz)
	}
	if *q != true {
		t.Errorf("*q != true")
	}

	err = fs.Parse([]string{"--int", "abc"})
	if err == nil {
		t.Errorf("fs.Parse(--int abc) did not fail")
	}
}

func TestEnv(t *testing.T) {
	fs := pflag.NewFlagSet("test_flags", pflag.ContinueOnError)
	cfg := config.NewConfig(fs)
	b := cfg.Var(new(bool), "bool").Env("X_BOOL").Usage("bool variable").Bool(true)
	i := cfg.Var(new(int), "int").Usage("int variable").Env("X_INT").Int(123)
	s := cfg.Var(new(string), "string").Usage("string variable").Env("X_STRING").
		String("default")
	if *b != true {
		t.Errorf("*b != true")
	}
	if *i != 123 {
		t.Errorf("*i != 123")
	}
	if *s != "default" {
		t.Errorf("*s != \"default\"")
	}
	t.Setenv("X_BOOL", "true")
	t.Setenv("X_STRING", "from environment")
	err := fs.Parse([]string{"--bool=false", "--int", "456"})
	if err != nil {
		t.Fatalf("fs.Parse() failed with %s", err)
	}
	err = cfg.Env()
	if err != nil {
		t.Errorf("cfg.Env() failed with %s", err)
	}
	if *b != false {
		t.Errorf("*b != false")
	}
	if *i != 456 {
		t.Errorf("*i != 456")
	}
	if *s != "from environment" {
		t.Errorf("*s != \"from environment\"")
	}

	t.Setenv("X_INT", "not a number")
	fs = pflag.NewFlagSet("test_flags", pflag.ContinueOnError)
	cfg = config.NewConfig(fs)
	cfg.Var(new(int), "int").Env("X_INT").Int(123)
	if cfg.Env() == nil {
		t.Errorf("cfg.Env() did not fail")
	}
}

func TestArray(t *testing.T) {
	fs := pflag.NewFlagSet("test_flags", pflag.ContinueOnError)
	cfg := config.NewConfig(fs)
	a := cfg.Var(new(config.Array), "array").Usage("array variable").Array()
	err := fs.Parse([]string{"--array=abc", "--array=def"})
	if err != nil {
		t.Fatalf("fs.Parse() failed with %s", err)
	}
	if !reflect.DeepEqual(*a, config.Array{"abc", "def"}) {
		t.Errorf("*a != Array{\"abc\", \"def\"}")
	}
}

func TestMapEnv(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("c.Var(make(config.Map)).Env() did not fail")
		}
	}()

	c := config.NewConfig(pflag.NewFlagSet("test", pflag.ContinueOnError))
	c.Var(make(config.Map), "map").Env("X_MAP").Map()
}

func TestLoad(t *testing.T) {
	dir := testutil.DataDir(t, "config")
	filename := filepath.Join(dir, "rowdis.hcl")
	err := os.WriteFile(filename, []byte(`
address = ":7000"
window = 50
max-outstanding-bytes = "8MB"
`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg := config.NewConfig(fs)
	addr := cfg.Var(new(string), "address").String(":6379")
	window := cfg.Var(new(int), "window").Int(100)
	outstanding := cfg.Var(new(int64), "max-outstanding-bytes").Size(4 * 1024 * 1024)
	err = fs.Parse([]string{"--window=10"})
	if err != nil {
		t.Fatal(err)
	}
	err = cfg.Load(filename)
	if err != nil {
		t.Fatalf("Load() failed with %s", err)
	}
	if *addr != ":7000" {
		t.Errorf("address got %s want :7000", *addr)
	}
	if *window != 10 {
		t.Errorf("window got %d want 10", *window)
	}
	if *outstanding != 8*1024*1024 {
		t.Errorf("max-outstanding-bytes got %d want 8MB", *outstanding)
	}

	want := []config.Setting{
		{Name: "address", Value: ":7000", By: "config"},
		{Name: "max-outstanding-bytes", Value: "8MiB", By: "config"},
		{Name: "window", Value: "10", By: "flag"},
	}
	if got := cfg.Settings(); !reflect.DeepEqual(got, want) {
		t.Errorf("Settings() got %v want %v", got, want)
	}

	if cfg.Load(filepath.Join(dir, "missing.hcl")) == nil {
		t.Errorf("Load(missing.hcl) did not fail")
	}
}
