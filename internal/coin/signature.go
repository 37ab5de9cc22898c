package coin

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ParseEventSignature parses a human-readable event declaration such as
// "Transfer(address indexed from, address indexed to, uint256 value)".
// A leading "event" keyword is accepted. Tuple arguments are not supported.
func ParseEventSignature(sig string) (abi.Event, error) {
	sig = strings.TrimSpace(sig)
	sig = strings.TrimSuffix(sig, ";")
	sig = strings.TrimSpace(strings.TrimPrefix(sig, "event "))

	open := strings.Index(sig, "(")
	if open <= 0 || !strings.HasSuffix(sig, ")") {
		return abi.Event{}, fmt.Errorf("malformed event signature: %q", sig)
	}

	name := strings.TrimSpace(sig[:open])
	if !isIdentifier(name) {
		return abi.Event{}, fmt.Errorf("invalid event name: %q", name)
	}

	body := sig[open+1 : len(sig)-1]
	if strings.ContainsAny(body, "()") {
		return abi.Event{}, fmt.Errorf("tuple arguments are not supported: %q", sig)
	}

	args := make(abi.Arguments, 0)
	if strings.TrimSpace(body) != "" {
		for i, part := range strings.Split(body, ",") {
			arg, err := parseArgument(part, i)
			if err != nil {
				return abi.Event{}, err
			}
			args = append(args, arg)
		}
	}

	indexed := 0
	for _, arg := range args {
		if arg.Indexed {
			indexed++
		}
	}
	if indexed > 3 {
		return abi.Event{}, fmt.Errorf("event %s has %d indexed arguments, max 3", name, indexed)
	}

	return abi.NewEvent(name, name, false, args), nil
}

func parseArgument(part string, position int) (abi.Argument, error) {
	fields := strings.Fields(part)
	if len(fields) == 0 {
		return abi.Argument{}, fmt.Errorf("empty argument at position %d", position)
	}

	typeName := canonicalType(fields[0])
	typ, err := abi.NewType(typeName, "", nil)
	if err != nil {
		return abi.Argument{}, fmt.Errorf("argument %d: %w", position, err)
	}

	arg := abi.Argument{Type: typ}
	for _, field := range fields[1:] {
		switch {
		case field == "indexed":
			if arg.Indexed {
				return abi.Argument{}, fmt.Errorf("argument %d: duplicate indexed keyword", position)
			}
			arg.Indexed = true
		case arg.Name == "" && isIdentifier(field):
			arg.Name = field
		default:
			return abi.Argument{}, fmt.Errorf("argument %d: unexpected token %q", position, field)
		}
	}
	if arg.Name == "" {
		arg.Name = fmt.Sprintf("arg%d", position)
	}

	return arg, nil
}

// canonicalType expands the int/uint aliases, including inside array types.
func canonicalType(t string) string {
	base, suffix := t, ""
	if i := strings.Index(t, "["); i >= 0 {
		base, suffix = t[:i], t[i:]
	}
	switch base {
	case "uint":
		base = "uint256"
	case "int":
		base = "int256"
	}
	return base + suffix
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
