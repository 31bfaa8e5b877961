package config

import (
	"fmt"
	"io"
	"io/ioutil"

	"github.com/hashicorp/hcl"
)

func (c *Config) load(r io.Reader) error {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return err
	}

	var cfg map[string]interface{}
	err = hcl.Decode(&cfg, string(b))
	if err != nil {
		return err
	}
	for name, val := range cfg {
		v, ok := c.vars[name]
		if !ok || v.val == nil {
			return fmt.Errorf("%s is not a config variable", name)
		}
		if v.noConfig {
			return fmt.Errorf("%s can't be set in config file", name)
		}

		if v.by == byDefault {
			err := v.val.SetValue(val)
			if err != nil {
				return fmt.Errorf("%s: %s", v.name, err)
			}
			v.by = byConfig
		}
	}

	return nil
}
