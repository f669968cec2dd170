package cli

import (
	"strings"

	"github.com/morikuni/failure/v2"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
)

// enumFlag is a string flag restricted to a fixed set of values
type enumFlag struct {
	IsSet   bool
	Value   string
	allowed []string
}

func newEnumFlag(def string, allowed ...string) *enumFlag {
	return &enumFlag{Value: def, allowed: allowed}
}

// String implements pflag.Value.
func (f *enumFlag) String() string {
	return f.Value
}

func (f *enumFlag) Set(value string) error {
	value = strings.ToLower(strings.TrimSpace(value))
	if !lo.Contains(f.allowed, value) {
		return failure.New(InvalidFlagValue,
			failure.Message("must be one of "+strings.Join(f.allowed, ", ")),
			failure.Context{"value": value},
		)
	}
	f.Value = value
	f.IsSet = true
	return nil
}

func (f *enumFlag) Type() string {
	return strings.Join(f.allowed, "|")
}

var _ pflag.Value = &enumFlag{}
