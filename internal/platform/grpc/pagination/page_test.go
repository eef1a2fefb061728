package pagination

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestPolicySize(t *testing.T) {
	tests := []struct {
		policy    Policy
		requested int32
		want      int
	}{
		{History, 0, 50},
		{History, -4, 50},
		{History, 10, 10},
		{History, 1000, 200},
		{Policy{Default: 5}, 1000, 1000},
		{Policy{}, 0, 1},
	}
	for _, tc := range tests {
		if got := tc.policy.Size(tc.requested); got != tc.want {
			t.Errorf("%+v.Size(%d) = %d, want %d", tc.policy, tc.requested, got, tc.want)
		}
	}
}

func TestCursorRoundTrip(t *testing.T) {
	for _, after := range []int64{0, 4, 1 << 40} {
		got, err := DecodeCursor(EncodeCursor(after))
		if err != nil {
			t.Fatalf("decode cursor for %d: %v", after, err)
		}
		if got != after {
			t.Fatalf("cursor = %d, want %d", got, after)
		}
	}
}

func TestDecodeCursorRejectsForeignTokens(t *testing.T) {
	for _, token := range []string{
		"4",
		"!!",
		base64.RawURLEncoding.EncodeToString([]byte("before:4")),
		base64.RawURLEncoding.EncodeToString([]byte("after:-1")),
		base64.RawURLEncoding.EncodeToString([]byte("after:x")),
	} {
		if _, err := DecodeCursor(token); !errors.Is(err, ErrInvalidCursor) {
			t.Errorf("DecodeCursor(%q) err = %v, want ErrInvalidCursor", token, err)
		}
	}
}
