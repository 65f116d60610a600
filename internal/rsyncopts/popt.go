package rsyncopts

import (
	"fmt"
	"strconv"
	"strings"
)

// Minimal popt(3)-alike engine backing the option table in
// rsyncopts.go. Supports the subset of popt actually exercised by that
// table: long options (--name, --name=value, --name value), single
// short options (-x, -x value), and the "return a code, let the
// caller switch on it" convention for options with special-case
// handling.

const (
	POPT_ARG_NONE = iota
	POPT_ARG_VAL
	POPT_ARG_STRING
	POPT_ARG_INT
	POPT_BIT_SET
)

const (
	POPT_ERROR_BADOPT = -(iota + 1)
	POPT_ERROR_NOARG
	POPT_ERROR_BADNUMBER
)

type poptOption struct {
	longName  string
	shortName string
	argInfo   int
	arg       interface{} // *int, *string, or nil
	val       int
}

// PoptError is returned by poptGetNextOpt for malformed command
// lines; ParseArguments tags DaemonMode when the error occurred while
// re-parsing under the daemon option table.
type PoptError struct {
	Option     string
	Errno      int
	DaemonMode bool
}

func (e *PoptError) Error() string {
	switch e.Errno {
	case POPT_ERROR_NOARG:
		return fmt.Sprintf("option %s requires an argument", e.Option)
	case POPT_ERROR_BADNUMBER:
		return fmt.Sprintf("option %s requires a numeric argument", e.Option)
	default:
		return fmt.Sprintf("unknown option %s", e.Option)
	}
}

// Context carries one parse over args against table, accumulating
// leftover non-option arguments in RemainingArgs.
type Context struct {
	Options *Options

	table []poptOption
	args  []string
	pos   int

	RemainingArgs []string

	lastValue string
}

func (pc *Context) findLong(name string) *poptOption {
	for i := range pc.table {
		if pc.table[i].longName != "" && pc.table[i].longName == name {
			return &pc.table[i]
		}
	}
	return nil
}

func (pc *Context) findShort(name string) *poptOption {
	for i := range pc.table {
		if pc.table[i].shortName != "" && pc.table[i].shortName == name {
			return &pc.table[i]
		}
	}
	return nil
}

// poptGetOptArg returns the string value consumed by the most
// recently returned ARG_STRING option, for table entries that leave
// arg nil and expect the caller to read it back (OPT_INFO, OPT_DEBUG).
func (pc *Context) poptGetOptArg() string {
	return pc.lastValue
}

func (pc *Context) apply(opt *poptOption, value string, raw string) (int, error) {
	switch opt.argInfo {
	case POPT_ARG_NONE:
		if p, ok := opt.arg.(*int); ok {
			*p = 1
		}
		return opt.val, nil
	case POPT_ARG_VAL:
		if p, ok := opt.arg.(*int); ok {
			*p = opt.val
		}
		return 0, nil
	case POPT_ARG_STRING:
		pc.lastValue = value
		if p, ok := opt.arg.(*string); ok {
			*p = value
		}
		return opt.val, nil
	case POPT_ARG_INT:
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, &PoptError{Option: raw, Errno: POPT_ERROR_BADNUMBER}
		}
		if p, ok := opt.arg.(*int); ok {
			*p = n
		}
		return opt.val, nil
	case POPT_BIT_SET:
		if p, ok := opt.arg.(*int); ok {
			*p |= opt.val
		}
		return 0, nil
	}
	return 0, nil
}

func needsArg(argInfo int) bool {
	return argInfo == POPT_ARG_STRING || argInfo == POPT_ARG_INT
}

// poptGetNextOpt returns the next option's val (or the rune-like code
// stored in the table for special-cased options), -1 at end of
// arguments, or a *PoptError for malformed input. Options whose code
// is 0 are applied and skipped, so only special cases are returned.
// Non-option arguments are collected into pc.RemainingArgs as
// encountered.
func (pc *Context) poptGetNextOpt() (int, error) {
	for pc.pos < len(pc.args) {
		arg := pc.args[pc.pos]

		if arg == "--" {
			pc.pos++
			pc.RemainingArgs = append(pc.RemainingArgs, pc.args[pc.pos:]...)
			pc.pos = len(pc.args)
			return -1, nil
		}

		if len(arg) < 2 || arg[0] != '-' {
			pc.RemainingArgs = append(pc.RemainingArgs, arg)
			pc.pos++
			continue
		}

		pc.pos++

		if strings.HasPrefix(arg, "--") {
			name := arg[2:]
			value := ""
			hasValue := false
			if idx := strings.IndexByte(name, '='); idx >= 0 {
				value = name[idx+1:]
				name = name[:idx]
				hasValue = true
			}
			opt := pc.findLong(name)
			if opt == nil {
				return 0, &PoptError{Option: arg, Errno: POPT_ERROR_BADOPT}
			}
			if needsArg(opt.argInfo) && !hasValue {
				if pc.pos >= len(pc.args) {
					return 0, &PoptError{Option: arg, Errno: POPT_ERROR_NOARG}
				}
				value = pc.args[pc.pos]
				pc.pos++
			}
			if code, err := pc.apply(opt, value, arg); err != nil || code != 0 {
				return code, err
			}
			continue
		}

		// Short option, possibly clustered (-avz).
		name := arg[1:2]
		opt := pc.findShort(name)
		if opt == nil {
			return 0, &PoptError{Option: arg, Errno: POPT_ERROR_BADOPT}
		}
		rest := arg[2:]

		if !needsArg(opt.argInfo) {
			if rest != "" {
				pc.args[pc.pos-1] = "-" + rest
				pc.pos--
			}
			if code, err := pc.apply(opt, "", arg); err != nil || code != 0 {
				return code, err
			}
			continue
		}

		value := rest
		if value == "" {
			if pc.pos >= len(pc.args) {
				return 0, &PoptError{Option: arg, Errno: POPT_ERROR_NOARG}
			}
			value = pc.args[pc.pos]
			pc.pos++
		}
		if code, err := pc.apply(opt, value, arg); err != nil || code != 0 {
			return code, err
		}
	}
	return -1, nil
}
