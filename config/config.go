// Package config manages variables which can be set, in order of precedence,
// from command line flags, the environment, and a config file.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/pflag"
)

type setBy int

const (
	byDefault setBy = iota
	byConfig
	byEnv
	byFlag
)

func (sb setBy) String() string {
	switch sb {
	case byDefault:
		return "default"
	case byConfig:
		return "config"
	case byEnv:
		return "environment"
	case byFlag:
		return "flag"
	}
	return fmt.Sprintf("setBy(%d)", int(sb))
}

type Config struct {
	fs   *pflag.FlagSet
	vars map[string]*Variable
}

type Variable struct {
	c        *Config
	name     string
	usage    string
	env      string
	short    string
	p        interface{}
	val      Value
	by       setBy
	noConfig bool
	noFlag   bool
}

// flagValue records that the variable was set by a flag.
type flagValue struct {
	v *Variable
}

func (fv flagValue) Set(s string) error {
	err := fv.v.val.Set(s)
	if err != nil {
		return err
	}
	fv.v.by = byFlag
	return nil
}

func (fv flagValue) String() string {
	if fv.v.val == nil {
		return ""
	}
	return fv.v.val.String()
}

func (fv flagValue) Type() string {
	return fv.v.val.Type()
}

func NewConfig(fs *pflag.FlagSet) *Config {
	return &Config{
		fs:   fs,
		vars: map[string]*Variable{},
	}
}

// Var declares a variable called name; p must point to a variable of the
// type given by the method used to complete the declaration.
func (c *Config) Var(p interface{}, name string) *Variable {
	if _, ok := c.vars[name]; ok {
		panic(fmt.Sprintf("config: variable %s already declared", name))
	}
	v := &Variable{
		c:    c,
		name: name,
		p:    p,
	}
	c.vars[name] = v
	return v
}

func (v *Variable) Usage(usage string) *Variable {
	v.usage = usage
	return v
}

func (v *Variable) Env(env string) *Variable {
	v.env = env
	return v
}

func (v *Variable) Short(short string) *Variable {
	v.short = short
	return v
}

// NoConfig variables can not be set in a config file.
func (v *Variable) NoConfig() *Variable {
	v.noConfig = true
	return v
}

// NoFlag variables do not have a command line flag.
func (v *Variable) NoFlag() *Variable {
	v.noFlag = true
	return v
}

func (v *Variable) declare(val Value) {
	v.val = val
	if v.noFlag || v.c.fs == nil {
		return
	}
	flg := v.c.fs.VarPF(flagValue{v}, v.name, v.short, v.usage)
	if val.Type() == "bool" {
		flg.NoOptDefVal = "true"
	}
}

func (v *Variable) Bool(d bool) *bool {
	p := v.p.(*bool)
	*p = d
	v.declare((*boolValue)(p))
	return p
}

func (v *Variable) Int(d int) *int {
	p := v.p.(*int)
	*p = d
	v.declare((*intValue)(p))
	return p
}

func (v *Variable) String(d string) *string {
	p := v.p.(*string)
	*p = d
	v.declare((*stringValue)(p))
	return p
}

func (v *Variable) Duration(d time.Duration) *time.Duration {
	p := v.p.(*time.Duration)
	*p = d
	v.declare((*durationValue)(p))
	return p
}

// Size is a number of bytes; it may be given with a unit, such as 4MB.
func (v *Variable) Size(d int64) *int64 {
	p := v.p.(*int64)
	*p = d
	v.declare((*sizeValue)(p))
	return p
}

func (v *Variable) Array() *Array {
	p := v.p.(*Array)
	v.declare(p)
	return p
}

// Map variables can only be set in a config file.
func (v *Variable) Map() Map {
	m := v.p.(Map)
	if v.env != "" {
		panic(fmt.Sprintf("config: map variable %s can't be set from the environment", v.name))
	}
	v.noFlag = true
	v.declare(m)
	return m
}

// Env sets any variables which were not set by a flag from their
// environment variables.
func (c *Config) Env() error {
	for _, v := range c.vars {
		if v.env == "" || v.by == byFlag || v.val == nil {
			continue
		}
		s, ok := os.LookupEnv(v.env)
		if !ok {
			continue
		}
		err := v.val.Set(s)
		if err != nil {
			return fmt.Errorf("config: %s: %s", v.env, err)
		}
		v.by = byEnv
	}
	return nil
}

// Load sets any variables which are still set to their defaults from the
// config file.
func (c *Config) Load(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	err = c.load(f)
	if err != nil {
		return fmt.Errorf("config: %s: %s", filename, err)
	}
	return nil
}

type Setting struct {
	Name  string
	Value string
	By    string
	Usage string
}

// Settings returns the current value of every variable, sorted by name.
func (c *Config) Settings() []Setting {
	var settings []Setting
	for _, v := range c.vars {
		s := Setting{
			Name:  v.name,
			By:    v.by.String(),
			Usage: v.usage,
		}
		if v.val != nil {
			s.Value = v.val.String()
		}
		settings = append(settings, s)
	}
	sort.Slice(settings, func(i, j int) bool {
		return settings[i].Name < settings[j].Name
	})
	return settings
}
