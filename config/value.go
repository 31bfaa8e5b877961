package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	units "github.com/docker/go-units"
)

// Value is a variable which can be set from a flag, the environment, or a
// config file.
type Value interface {
	Set(s string) error
	SetValue(v interface{}) error
	String() string
	Type() string
}

type boolValue bool

func (b *boolValue) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*b = boolValue(v)
	return nil
}

func (b *boolValue) SetValue(v interface{}) error {
	bv, ok := v.(bool)
	if !ok {
		return fmt.Errorf("parsing %v: invalid syntax", v)
	}
	*b = boolValue(bv)
	return nil
}

func (b *boolValue) String() string {
	return strconv.FormatBool(bool(*b))
}

func (_ *boolValue) Type() string {
	return "bool"
}

type intValue int

func (i *intValue) Set(s string) error {
	v, err := strconv.ParseInt(s, 0, strconv.IntSize)
	if err != nil {
		return err
	}
	*i = intValue(v)
	return nil
}

func (i *intValue) SetValue(v interface{}) error {
	iv, ok := v.(int)
	if !ok {
		return fmt.Errorf("parsing %v: invalid syntax", v)
	}
	*i = intValue(iv)
	return nil
}

func (i *intValue) String() string {
	return strconv.Itoa(int(*i))
}

func (_ *intValue) Type() string {
	return "int"
}

type stringValue string

func (s *stringValue) Set(val string) error {
	*s = stringValue(val)
	return nil
}

func (s *stringValue) SetValue(v interface{}) error {
	sv, ok := v.(string)
	if !ok {
		return fmt.Errorf("parsing %v: invalid syntax", v)
	}
	return s.Set(sv)
}

func (s *stringValue) String() string {
	return string(*s)
}

func (_ *stringValue) Type() string {
	return "string"
}

type durationValue time.Duration

func (d *durationValue) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = durationValue(v)
	return nil
}

func (d *durationValue) SetValue(v interface{}) error {
	switch v := v.(type) {
	case string:
		return d.Set(v)
	case int:
		*d = durationValue(time.Duration(v) * time.Second)
		return nil
	}
	return fmt.Errorf("parsing %v: invalid syntax", v)
}

func (d *durationValue) String() string {
	return (*time.Duration)(d).String()
}

func (_ *durationValue) Type() string {
	return "duration"
}

// sizeValue is a number of bytes, written with an optional unit: 512KB, 4MB,
// 1GiB.
type sizeValue int64

func (sz *sizeValue) Set(s string) error {
	v, err := units.RAMInBytes(s)
	if err != nil {
		return err
	}
	*sz = sizeValue(v)
	return nil
}

func (sz *sizeValue) SetValue(v interface{}) error {
	switch v := v.(type) {
	case string:
		return sz.Set(v)
	case int:
		*sz = sizeValue(v)
		return nil
	}
	return fmt.Errorf("parsing %v: invalid syntax", v)
}

func (sz *sizeValue) String() string {
	return units.BytesSize(float64(*sz))
}

func (_ *sizeValue) Type() string {
	return "size"
}

type Array []interface{} // int, float64, bool, string, []interface{}, map[string]interface{}

func (a *Array) Set(s string) error {
	*a = append(*a, s)
	return nil
}

func (a *Array) SetValue(v interface{}) error {
	av, ok := v.([]interface{})
	if !ok {
		return fmt.Errorf("parsing %v: invalid syntax", v)
	}
	*a = Array(av)
	return nil
}

func (a *Array) String() string {
	return fmt.Sprintf("%v", *a)
}

func (_ *Array) Type() string {
	return "array"
}

type Map map[string]interface{} // int, float64, bool, string, []interface{}, map[string]interface{}

func (m Map) Set(s string) error {
	return fmt.Errorf("config: map can only be set in a config file")
}

func (m Map) SetValue(v interface{}) error {
	mv, ok := v.([]map[string]interface{})
	if !ok || len(mv) != 1 {
		return fmt.Errorf("parsing %v: invalid syntax", v)
	}
	for k, v := range mv[0] {
		m[k] = v
	}
	return nil
}

func (m Map) String() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteRune('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteRune(' ')
		}
		fmt.Fprintf(&b, "%s: %v", k, m[k])
	}
	b.WriteRune('}')
	return b.String()
}

func (_ Map) Type() string {
	return "map"
}
