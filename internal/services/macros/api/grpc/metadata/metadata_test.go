package metadata

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/metadata"
)

func TestAppendIdentityRoundTrip(t *testing.T) {
	out := AppendIdentity(context.Background(), Identity{UserID: " gm-1 ", Locale: "pt-BR"})
	md, _ := metadata.FromOutgoingContext(out)

	got := IdentityFromContext(metadata.NewIncomingContext(context.Background(), md))
	if got != (Identity{UserID: "gm-1", Locale: "pt-BR"}) {
		t.Fatalf("identity = %+v", got)
	}
	if UserIDFromContext(context.Background()) != "" || LocaleFromContext(nil) != "" {
		t.Fatal("expected empty identity without metadata")
	}
}

func TestAppendIdentitySkipsEmptyFields(t *testing.T) {
	ctx := context.Background()
	if AppendIdentity(ctx, Identity{}) != ctx {
		t.Fatal("empty identity should leave the context untouched")
	}
	md, _ := metadata.FromOutgoingContext(AppendIdentity(ctx, Identity{Locale: "en-US"}))
	if len(md.Get(UserIDHeader)) != 0 || len(md.Get(LocaleHeader)) != 1 {
		t.Fatalf("md = %v", md)
	}
}

func TestRequestIDContext(t *testing.T) {
	if RequestIDFromContext(nil) != "" {
		t.Fatal("nil context has no request id")
	}
	if got := RequestIDFromContext(WithRequestID(nil, "req-1")); got != "req-1" {
		t.Fatalf("request id = %q", got)
	}
}

func TestFirstMetadataValueSkipsUnprintable(t *testing.T) {
	md := metadata.MD{"X-Macrotable-Locale": {"pt\x00BR", "ação", "pt-BR"}}
	if got := FirstMetadataValue(md, LocaleHeader); got != "pt-BR" {
		t.Fatalf("value = %q", got)
	}
	if FirstMetadataValue(nil, LocaleHeader) != "" {
		t.Fatal("nil metadata has no values")
	}
	for value, want := range map[string]bool{"": false, "ok": true, "tab\t": false, "\x7f": false} {
		if IsPrintableASCII(value) != want {
			t.Errorf("IsPrintableASCII(%q) != %v", value, want)
		}
	}
}

func TestResolveRequestID(t *testing.T) {
	generated := func() (string, error) { return "generated", nil }
	failing := func() (string, error) { return "", errors.New("entropy") }

	tests := []struct {
		name    string
		md      metadata.MD
		newID   func() (string, error)
		want    string
		wantErr bool
	}{
		{name: "caller id wins", md: metadata.Pairs(RequestIDHeader, "req-1"), newID: failing, want: "req-1"},
		{name: "generated when absent", md: metadata.MD{}, newID: generated, want: "generated"},
		{name: "generated when unprintable", md: metadata.Pairs(RequestIDHeader, "\n"), newID: generated, want: "generated"},
		{name: "generator failure", md: metadata.MD{}, newID: failing, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveRequestID(metadata.NewIncomingContext(context.Background(), tt.md), tt.newID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("request id = %q, want %q", got, tt.want)
			}
		})
	}
}
