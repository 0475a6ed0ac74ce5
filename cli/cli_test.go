package cli

import (
	"testing"

	"github.com/kahva/goferry/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	cmd := New(cfg)

	assert.Equal(t, "goferry", cmd.Name)

	names := make([]string, 0, len(cmd.Commands))
	for _, c := range cmd.Commands {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"send", "receive", "bench"}, names)

	for _, c := range cmd.Commands {
		if c.Name == "bench" {
			sub := make([]string, 0, len(c.Commands))
			for _, b := range c.Commands {
				sub = append(sub, b.Name)
			}
			assert.ElementsMatch(t, []string{"serve", "run"}, sub)
		}
	}
}
