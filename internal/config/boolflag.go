package config

import (
	"errors"
	"strconv"
	"strings"
)

// ErrBoolExpected is returned for strings that are neither truthy nor falsy.
var ErrBoolExpected = errors.New("boolean value expected")

// ParseBool accepts the common yes/no spellings, case-insensitively.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "t", "y", "1":
		return true, nil
	case "no", "false", "f", "n", "0":
		return false, nil
	default:
		return false, ErrBoolExpected
	}
}

// BoolUsageValues names the spellings ParseBool accepts, for flag help.
const BoolUsageValues = "yes|no|true|false|y|n|t|f|1|0"

// BoolValue is a pflag.Value backed by ParseBool. Rejected text fails at
// flag parsing instead of reaching the config.
type BoolValue struct {
	value bool
}

// NewBoolValue returns a BoolValue starting at def.
func NewBoolValue(def bool) *BoolValue {
	return &BoolValue{value: def}
}

func (b *BoolValue) Set(s string) error {
	v, err := ParseBool(s)
	if err != nil {
		return err
	}
	b.value = v
	return nil
}

// Value reports the parsed flag value.
func (b *BoolValue) Value() bool { return b.value }

func (b *BoolValue) String() string { return strconv.FormatBool(b.value) }

// Type reports "string" so viper hands the raw text back to ParseBool
// instead of casting it.
func (b *BoolValue) Type() string { return "string" }
