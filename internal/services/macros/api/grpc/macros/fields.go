package macros

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/macrotable/internal/platform/errors"
	"google.golang.org/protobuf/types/known/structpb"
)

// fieldReader pulls typed fields from a request document. The first bad field
// is kept and reported by err.
type fieldReader struct {
	fields map[string]*structpb.Value
	bad    error
}

func newFieldReader(in *structpb.Struct) *fieldReader {
	return &fieldReader{fields: in.GetFields()}
}

func (r *fieldReader) err() error {
	return r.bad
}

func (r *fieldReader) fail(name, reason string) {
	if r.bad != nil {
		return
	}
	r.bad = apperrors.WithMetadata(apperrors.CodeInvalidArgument, fmt.Sprintf("field %s: %s", name, reason), map[string]string{
		"Reason": fmt.Sprintf("%s %s", name, reason),
	})
}

func (r *fieldReader) lookup(name string) (*structpb.Value, bool) {
	value, ok := r.fields[name]
	if !ok || value == nil {
		return nil, false
	}
	if _, isNull := value.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return value, true
}

func (r *fieldReader) string(name string) string {
	value, ok := r.lookup(name)
	if !ok {
		return ""
	}
	kind, ok := value.GetKind().(*structpb.Value_StringValue)
	if !ok {
		r.fail(name, "must be a string")
		return ""
	}
	return strings.TrimSpace(kind.StringValue)
}

func (r *fieldReader) bool(name string) bool {
	value, ok := r.lookup(name)
	if !ok {
		return false
	}
	kind, ok := value.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		r.fail(name, "must be a boolean")
		return false
	}
	return kind.BoolValue
}

func (r *fieldReader) int(name string) int {
	value, ok := r.lookup(name)
	if !ok {
		return 0
	}
	number, ok := value.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		r.fail(name, "must be a number")
		return 0
	}
	n := number.NumberValue
	if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
		r.fail(name, "must be an integer")
		return 0
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		r.fail(name, "is out of range")
		return 0
	}
	return int(n)
}

// seed accepts a number or a decimal string; strings carry seeds that do not
// fit in a float64 without loss.
func (r *fieldReader) seed(name string) *int64 {
	value, ok := r.lookup(name)
	if !ok {
		return nil
	}
	switch kind := value.GetKind().(type) {
	case *structpb.Value_StringValue:
		parsed, err := strconv.ParseInt(strings.TrimSpace(kind.StringValue), 10, 64)
		if err != nil {
			r.fail(name, "must be a 64-bit integer")
			return nil
		}
		return &parsed
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			r.fail(name, "must be an exact integer")
			return nil
		}
		seed := int64(n)
		return &seed
	default:
		r.fail(name, "must be a number or string")
		return nil
	}
}
