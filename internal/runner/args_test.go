// SPDX-License-Identifier: MIT

package runner

import (
	"strings"
	"testing"

	"github.com/ManuGH/epgd/internal/fetch"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name     string
		spec     fetch.GrabSpec
		want     []string
		absent   []string
		wantJoin string
	}{
		{
			name: "site fetch",
			spec: fetch.GrabSpec{
				Site:           "dw.com",
				OutputPath:     "/ws/output/guide.xml",
				Days:           3,
				MaxConnections: 1,
				TimeoutMS:      30000,
				DelayMS:        0,
			},
			want:   []string{"--site", "dw.com", "--days", "3", "--maxConnections", "1", "--timeout", "30000", "--delay", "0"},
			absent: []string{"--channels", "--gzip", "--lang"},
		},
		{
			name: "channel list with gzip and lang",
			spec: fetch.GrabSpec{
				ChannelsPath:   "/ws/channels.xml",
				OutputPath:     "/ws/output/guide.xml",
				Days:           7,
				Lang:           "en,de",
				MaxConnections: 5,
				TimeoutMS:      15000,
				DelayMS:        250,
				Gzip:           true,
			},
			want:   []string{"--channels", "/ws/channels.xml", "--lang", "en,de", "--gzip"},
			absent: []string{"--site"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args := buildArgs(tc.spec)
			joined := " " + strings.Join(args, " ") + " "

			if !strings.HasPrefix(strings.Join(args, " "), "run grab ---") {
				t.Fatalf("args must start with the grab entry point: %v", args)
			}
			for _, w := range tc.want {
				if !strings.Contains(joined, " "+w+" ") && !strings.HasSuffix(joined, " "+w+" ") {
					t.Errorf("missing %q in %v", w, args)
				}
			}
			for _, a := range tc.absent {
				if strings.Contains(joined, " "+a+" ") {
					t.Errorf("unexpected %q in %v", a, args)
				}
			}
		})
	}
}

func TestTailBuffer(t *testing.T) {
	var tb tailBuffer
	for i := 0; i < 100; i++ {
		if _, err := tb.Write([]byte(strings.Repeat("x", 100))); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := tb.Write([]byte("THE-END")); err != nil {
		t.Fatal(err)
	}

	out := tb.String()
	if len(out) > tailCap+16 {
		t.Fatalf("tail too large: %d bytes", len(out))
	}
	if !strings.HasSuffix(out, "THE-END") {
		t.Fatalf("tail lost the most recent output: %q", out[len(out)-32:])
	}
	if !strings.HasPrefix(out, "...") {
		t.Fatal("truncated tail should be marked")
	}
}
