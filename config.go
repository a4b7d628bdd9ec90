package ylisp

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Mode names how a host handles a fatal condition, per the host
// system vector. NewConfig stores it under "mode"; the runtime itself
// never reads that key, so errors are returned to the caller in either
// mode.
type Mode int

const (
	// ModeBatch names abort-the-process handling.
	ModeBatch Mode = iota
	// ModeRepl names return-the-error-to-the-host handling.
	ModeRepl
)

func (m Mode) String() string {
	if m == ModeBatch {
		return "batch"
	}
	return "repl"
}

// Config is a map of typed tunables, directly modeled on the teacher's
// Config/cfgVal pattern: a name-keyed registry with typed accessors
// that panic on a programmer's type mismatch, not on a missing
// setting -- NewConfig always primes every key the runtime consults.
type Config map[string]*cfgVal

type cfgValType int

const (
	cfgValUndefined cfgValType = iota
	cfgValBool
	cfgValInt
	cfgValFloat
	cfgValString
)

func (t cfgValType) String() string {
	return map[cfgValType]string{
		cfgValUndefined: "undefined",
		cfgValBool:      "bool",
		cfgValInt:       "int",
		cfgValFloat:     "float",
		cfgValString:    "string",
	}[t]
}

type cfgVal struct {
	typ      cfgValType
	asBool   bool
	asInt    int
	asFloat  float64
	asString string
}

// NewConfig returns a Config primed with every tunable the runtime
// consults, plus the host's "mode", at the defaults named throughout
// the design.
func NewConfig() *Config {
	c := make(Config)
	c.SetInt("pool.capacity", 65536)
	c.SetFloat("pool.gc_trigger_percent", 0.80)
	c.SetFloat("pool.gc_min_effect_percent", 0.05)
	c.SetInt("eval.recursion_limit", 1000)
	c.SetInt("eval.while_iteration_limit", 1000000)
	c.SetInt("reader.max_atom_bytes", 4096)
	c.SetString("mode", ModeBatch.String())
	return &c
}

// LoadConfigFile reads a YAML document and merges its values onto a
// freshly created default Config, the way a host ships a small
// ylisp.yaml next to its binary to retune pool capacity or the GC
// trigger point without recompiling.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InternalError{Reason: fmt.Sprintf("reading config %s: %s", path, err)}
	}
	return LoadConfigBytes(data)
}

// LoadConfigBytes parses a YAML document of untyped values and merges
// it onto NewConfig()'s defaults.
func LoadConfigBytes(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &InternalError{Reason: fmt.Sprintf("parsing config: %s", err)}
	}
	cfg := NewConfig()
	for path, v := range raw {
		switch val := v.(type) {
		case bool:
			cfg.SetBool(path, val)
		case int:
			cfg.SetInt(path, val)
		case float64:
			cfg.SetFloat(path, val)
		case string:
			cfg.SetString(path, val)
		default:
			return nil, &InternalError{Reason: fmt.Sprintf("config %q: unsupported value type %T", path, v)}
		}
	}
	return cfg, nil
}

func (v *cfgVal) assignType(t cfgValType) {
	if v.typ != t && v.typ != cfgValUndefined {
		panic(fmt.Sprintf("can't assign %v to a %v config value", t, v.typ))
	}
	v.typ = t
}

func (v *cfgVal) checkType(t cfgValType) {
	if v.typ != t {
		panic(fmt.Sprintf("can't retrieve %v from a %v config value", t, v.typ))
	}
}

func (c *Config) SetBool(path string, v bool) {
	val := &cfgVal{}
	val.assignType(cfgValBool)
	val.asBool = v
	(*c)[path] = val
}

func (c *Config) SetInt(path string, v int) {
	val := &cfgVal{}
	val.assignType(cfgValInt)
	val.asInt = v
	(*c)[path] = val
}

func (c *Config) SetFloat(path string, v float64) {
	val := &cfgVal{}
	val.assignType(cfgValFloat)
	val.asFloat = v
	(*c)[path] = val
}

func (c *Config) SetString(path string, v string) {
	val := &cfgVal{}
	val.assignType(cfgValString)
	val.asString = v
	(*c)[path] = val
}

func (c *Config) GetBool(path string) bool {
	v := (*c)[path]
	v.checkType(cfgValBool)
	return v.asBool
}

func (c *Config) GetInt(path string) int {
	v := (*c)[path]
	v.checkType(cfgValInt)
	return v.asInt
}

func (c *Config) GetFloat(path string) float64 {
	v := (*c)[path]
	v.checkType(cfgValFloat)
	return v.asFloat
}

func (c *Config) GetString(path string) string {
	v := (*c)[path]
	v.checkType(cfgValString)
	return v.asString
}
