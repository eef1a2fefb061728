package random

import "testing"

func TestResolveSeedPrefersRequested(t *testing.T) {
	requested := int64(42)
	seed, source, err := ResolveSeed(&requested)
	if err != nil {
		t.Fatalf("ResolveSeed returned error: %v", err)
	}
	if seed != 42 || source != SeedSourceClient {
		t.Fatalf("ResolveSeed = (%d, %s), want (42, CLIENT)", seed, source)
	}
}

func TestResolveSeedGeneratesServerSeed(t *testing.T) {
	_, source, err := ResolveSeed(nil)
	if err != nil {
		t.Fatalf("ResolveSeed returned error: %v", err)
	}
	if source != SeedSourceServer {
		t.Fatalf("source = %s, want SERVER", source)
	}
}
