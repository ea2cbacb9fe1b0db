// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides basic infrastructure to set configuration settings
// for barrierctl. Each setting that can be changed from the command line must
// have a field in Config with a "flag" tag naming the flag.
package config

import (
	"flag"
	"fmt"
	"reflect"
	"strconv"

	"github.com/BurntSushi/toml"
	"gvisor.dev/barrier/pkg/kernel/barrier"
	"gvisor.dev/barrier/pkg/log"
)

// Config holds configuration that is not part of a single command.
type Config struct {
	// ConfigFile is the path of a TOML file holding flag values. Values given
	// on the command line take precedence.
	ConfigFile string `flag:"config"`

	// LogFormat is the format of the log written to stderr: text, json or
	// logrus.
	LogFormat string `flag:"log-format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// LogDir is the directory where per-barrier activity logs are written.
	// Empty disables them.
	LogDir string `flag:"log-dir"`

	// MaxBarriers is the maximum number of live barriers. Zero selects the
	// kernel default.
	MaxBarriers int `flag:"max-barriers"`

	// Metrics indicates that metrics should be printed in Prometheus text
	// format when the command completes.
	Metrics bool `flag:"metrics"`
}

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String("config", "", "path of a TOML file with flag values under [flags]; command line flags take precedence.")
	flagSet.String("log-format", "text", "log format: text (default), json, or logrus.")
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("log-dir", "", "directory where per-barrier activity logs are written. Empty disables them.")
	flagSet.Int("max-barriers", 0, "maximum number of live barriers; 0 selects the default.")
	flagSet.Bool("metrics", false, "print metrics in Prometheus text format on exit.")
}

// fileConfig is the layout of the file named by --config.
type fileConfig struct {
	// Flags maps flag names to values, as they would be given on the command
	// line.
	Flags map[string]string `toml:"flags"`
}

// loadFile applies the flag values from the TOML file at path to flagSet,
// skipping flags that were set explicitly.
func loadFile(flagSet *flag.FlagSet, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("error reading config file %q: %w", path, err)
	}
	explicit := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})
	for name, value := range fc.Flags {
		if name == "config" {
			return fmt.Errorf("config file %q cannot set flag %q", path, name)
		}
		if flagSet.Lookup(name) == nil {
			return fmt.Errorf("config file %q sets unknown flag %q", path, name)
		}
		if explicit[name] {
			continue
		}
		if err := flagSet.Set(name, value); err != nil {
			return fmt.Errorf("config file %q: error setting flag %s=%q: %w", path, name, value, err)
		}
	}
	return nil
}

// NewFromFlags creates a new Config with values coming from command line flags
// and, if --config is set, from the named file.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	if fl := flagSet.Lookup("config"); fl != nil && fl.Value.String() != "" {
		if err := loadFile(flagSet, fl.Value.String()); err != nil {
			return nil, err
		}
	}

	conf := &Config{}
	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		x := reflect.ValueOf(fl.Value.(flag.Getter).Get())
		obj.Field(i).Set(x)
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json", "logrus":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text', 'json', or 'logrus'", c.LogFormat)
	}
	if c.MaxBarriers < 0 {
		return fmt.Errorf("max-barriers must be positive or zero, got %d", c.MaxBarriers)
	}
	if c.MaxBarriers > barrier.DefaultMaxBarriers {
		return fmt.Errorf("max-barriers must be at most %d, got %d", barrier.DefaultMaxBarriers, c.MaxBarriers)
	}
	return nil
}

// ToFlags returns a slice of flags that correspond to the given Config.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		val := getVal(obj.Field(i))

		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == fl.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", fl.Name, val))
	}
	return rv
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config.LogFormat: %s", c.LogFormat)
	log.Infof("Config.Debug: %t", c.Debug)
	log.Infof("Config.LogDir: %q", c.LogDir)
	log.Infof("Config.MaxBarriers: %d", c.MaxBarriers)
	if c.ConfigFile != "" {
		log.Infof("Config.ConfigFile: %q", c.ConfigFile)
	}
	log.Debugf("Config.Flags: %v", c.ToFlags())
}

func getVal(field reflect.Value) string {
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(field.Uint(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
