package app

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"clubhouse/cmd/security/token"
)

func TestNewFlashSigner(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cases := []struct {
		name    string
		key     string
		require bool
		wantErr bool
	}{
		{name: "configured key", key: strings.Repeat("k", token.MinKeyBytes)},
		{name: "missing key falls back", key: ""},
		{name: "short key falls back", key: "short"},
		{name: "missing key required", key: "", require: true, wantErr: true},
		{name: "short key required", key: "short", require: true, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(token.FlashKeyEnv, tc.key)

			s, err := newFlashSigner(Config{RequireFlashKey: tc.require}, log)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("newFlashSigner: %v", err)
			}
			payload, err := s.Open(s.Sign([]byte(`{"kind":"success"}`)))
			if err != nil || string(payload) != `{"kind":"success"}` {
				t.Fatalf("round trip failed: %q %v", payload, err)
			}
		})
	}
}
