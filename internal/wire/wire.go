// Package wire implements the JSON interchange format of the POS backend on
// top of go-faster/jx. The same encoding is used by the REST API, the sales
// journal and catalog dumps.
package wire

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// ErrInvalidPayload is matched by errors caused by malformed request bodies
// that are not sale payloads.
var ErrInvalidPayload = errors.New("invalid payload")

// FieldError reports a missing or invalid field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// PayloadError wraps a decoding failure of an admin request body. It matches
// ErrInvalidPayload.
type PayloadError struct {
	Err error
}

func (e *PayloadError) Error() string {
	return "invalid payload: " + e.Err.Error()
}

func (e *PayloadError) Unwrap() error { return e.Err }

// Is reports whether target is ErrInvalidPayload.
func (e *PayloadError) Is(target error) bool {
	return target == ErrInvalidPayload
}

func missing(field string) error {
	return &FieldError{Field: field, Reason: "required"}
}

// Money encodes an amount with exactly two fraction digits.
func Money(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}

// Decimal encodes v in its shortest exact form.
func Decimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

// DecodeDecimal reads a JSON number, also accepting a quoted number.
func DecodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Decimal{}, err
	}
	v, err := decimal.NewFromString(strings.Trim(string(n), `"`))
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "parse decimal")
	}
	return v, nil
}

// skipNull consumes a JSON null and reports whether one was present.
func skipNull(d *jx.Decoder) (bool, error) {
	if d.Next() != jx.Null {
		return false, nil
	}
	return true, d.Null()
}

func intKey[K ~int | ~int64](k K) string {
	return strconv.FormatInt(int64(k), 10)
}
