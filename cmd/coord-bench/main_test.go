package main

import "testing"

func TestValidateFlags(t *testing.T) {
	for _, tc := range []struct {
		name        string
		concurrency int
		requests    int
		ok          bool
	}{
		{"defaults", 50, 10000, true},
		{"one each", 1, 1, true},
		{"zero concurrency", 0, 100, false},
		{"negative concurrency", -1, 100, false},
		{"fewer requests than workers", 10, 5, false},
		{"zero requests", 1, 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := validateFlags(tc.concurrency, tc.requests)
			if (err == nil) != tc.ok {
				t.Fatalf("validateFlags(%d, %d) = %v, want ok=%v", tc.concurrency, tc.requests, err, tc.ok)
			}
		})
	}
}
