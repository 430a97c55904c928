package ftp

import (
	"context"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocdn/pkg/cdn"
)

func TestNewDefaults(t *testing.T) {
	b := New(Config{Host: "ftp.example.com"})
	assert.Equal(t, 21, b.cfg.Port)
	assert.Equal(t, 30*time.Second, b.cfg.Timeout)
}

func TestValidationHalts(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		msg  string
	}{
		{"no host", Config{Username: "u"}, "empty host"},
		{"no username", Config{Host: "h"}, "empty username"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.cfg)
			files := []cdn.File{{Local: "a", Remote: "a"}, {Local: "b", Remote: "b"}}

			count, results := b.Upload(context.Background(), files, false)
			assert.Zero(t, count)
			require.Len(t, results, 2)
			for _, r := range results {
				assert.Equal(t, cdn.OutcomeHalt, r.Outcome)
				assert.Equal(t, tt.msg, r.Message)
			}

			err := b.Test(context.Background())
			assert.EqualError(t, err, tt.msg)
		})
	}
}

func TestDialFailureHalts(t *testing.T) {
	// Port 1 on loopback refuses connections.
	b := New(Config{Host: "127.0.0.1", Port: 1, Username: "u", Timeout: time.Second})
	_, results := b.Delete(context.Background(), []cdn.File{{Local: "a", Remote: "a"}})
	require.Len(t, results, 1)
	assert.Equal(t, cdn.OutcomeHalt, results[0].Outcome)
	assert.Contains(t, results[0].Message, "unable to connect")
}

func TestRemotePath(t *testing.T) {
	s := &session{root: "/public_html"}
	assert.Equal(t, "/public_html/wp-content/a.css", s.remotePath("/wp-content/a.css"))

	s = &session{root: "/"}
	assert.Equal(t, "/a.css", s.remotePath("a.css"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&textproto.Error{Code: 550, Msg: "No such file"}))
	assert.False(t, isNotFound(&textproto.Error{Code: 530, Msg: "Not logged in"}))
	assert.False(t, isNotFound(assert.AnError))
}

func TestVia(t *testing.T) {
	b := New(Config{Domains: []string{"static.example.com"}})
	assert.Equal(t, "Self-hosted / file transfer protocol upload: static.example.com", b.Via())
}
