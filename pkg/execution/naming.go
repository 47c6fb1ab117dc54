package execution

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// QueryCodeLen is the length of a query code.
const QueryCodeLen = 16

var ErrInvalidFunctionName = errors.New("invalid function name")

// QueryCode derives a short stable identifier from a query text.
func QueryCode(sql string) string {
	sum := blake2b.Sum256([]byte(sql))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:QueryCodeLen]
}

// FunctionName names the function running sub-plan index of a query.
func FunctionName(code string, index int, ts time.Time) string {
	return fmt.Sprintf("%s-%02d-%s", code, index, ts.UTC().Format(time.RFC3339Nano))
}

// ParseFunctionName is the inverse of FunctionName.
func ParseFunctionName(name string) (code string, index int, ts time.Time, err error) {
	if len(name) < QueryCodeLen+2 || name[QueryCodeLen] != '-' {
		return "", 0, time.Time{}, errors.WithMessagef(ErrInvalidFunctionName, "%q", name)
	}
	code = name[:QueryCodeLen]
	parts := strings.SplitN(name[QueryCodeLen+1:], "-", 2)
	if len(parts) != 2 {
		return "", 0, time.Time{}, errors.WithMessagef(ErrInvalidFunctionName, "%q", name)
	}
	if index, err = strconv.Atoi(parts[0]); err != nil {
		return "", 0, time.Time{}, errors.Wrapf(ErrInvalidFunctionName, "%q: %s", name, err)
	}
	if ts, err = time.Parse(time.RFC3339Nano, parts[1]); err != nil {
		return "", 0, time.Time{}, errors.Wrapf(ErrInvalidFunctionName, "%q: %s", name, err)
	}
	return code, index, ts, nil
}
