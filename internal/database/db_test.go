package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "with password",
			cfg:  Config{User: "app", Pass: "s3cret", Host: "db", Port: "3306", Name: "emails"},
			want: "app:s3cret@tcp(db:3306)/emails?charset=utf8mb4&parseTime=true&loc=UTC",
		},
		{
			name: "without password",
			cfg:  Config{User: "app", Host: "127.0.0.1", Port: "3307", Name: "emails"},
			want: "app@tcp(127.0.0.1:3307)/emails?charset=utf8mb4&parseTime=true&loc=UTC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.dsn())
		})
	}
}

func TestWithDefaults(t *testing.T) {
	got := Config{}.withDefaults()
	assert.Equal(t, 25, got.MaxConns)
	assert.Equal(t, 30*time.Minute, got.ConnMaxLifetime)

	// Explicit settings survive.
	got = Config{MaxConns: 5, ConnMaxLifetime: time.Hour}.withDefaults()
	assert.Equal(t, 5, got.MaxConns)
	assert.Equal(t, time.Hour, got.ConnMaxLifetime)
}
