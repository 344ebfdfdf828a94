package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"aetos-counter/go-backend/internal/clarity"
)

const maxCallArgs = 16

var errInvalidParams = errors.New("invalid params")

// decodeCallParams accepts ["function", ["0x..", ...]] or
// {"function": "...", "args": [...]}. Args must be serialized Clarity values.
func decodeCallParams(raw json.RawMessage) (string, []string, error) {
	var function string
	var args []string

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) < 1 || len(arr) > 2 {
			return "", nil, errInvalidParams
		}
		if err := json.Unmarshal(arr[0], &function); err != nil {
			return "", nil, errInvalidParams
		}
		if len(arr) == 2 {
			if err := json.Unmarshal(arr[1], &args); err != nil {
				return "", nil, errInvalidParams
			}
		}
	} else {
		var obj struct {
			Function string   `json:"function"`
			Args     []string `json:"args"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", nil, errInvalidParams
		}
		function, args = obj.Function, obj.Args
	}

	function = strings.TrimSpace(function)
	if function == "" {
		return "", nil, errors.New("function name is required")
	}
	if err := clarity.ValidateFunctionName(function); err != nil {
		return "", nil, fmt.Errorf("function name %q: %w", function, err)
	}
	if len(args) > maxCallArgs {
		return "", nil, fmt.Errorf("at most %d args", maxCallArgs)
	}
	for i, arg := range args {
		v, err := clarity.DecodeHex(arg)
		if err != nil {
			return "", nil, fmt.Errorf("arg %d: %w", i, err)
		}
		// Re-serialize so the wallet always sees the canonical 0x form.
		canonical, err := clarity.SerializeHex(v)
		if err != nil {
			return "", nil, fmt.Errorf("arg %d: %w", i, err)
		}
		args[i] = canonical
	}
	return function, args, nil
}

// decodeIncrementByParams accepts [n] or {"n": n}. n may be a JSON number or
// a decimal string and must fit in 64 bits.
func decodeIncrementByParams(raw json.RawMessage) (uint64, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) != 1 {
			return 0, errInvalidParams
		}
		return decodeStrictUint(arr[0])
	}
	var obj struct {
		N json.RawMessage `json:"n"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj.N) == 0 {
		return 0, errInvalidParams
	}
	return decodeStrictUint(obj.N)
}

func decodeStrictUint(raw json.RawMessage) (uint64, error) {
	text := string(bytes.TrimSpace(raw))
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = unquoted
	}
	n, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("n must be a non-negative integer")
	}
	return n, nil
}
