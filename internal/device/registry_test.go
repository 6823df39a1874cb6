package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr assert.ErrorAssertionFunc
	}{
		{
			name: "valid",
			input: `
devices:
  - id: plug-1
    name: heater
    controlCode: switch_1
    statusCode: switch_1
  - id: aircon-1
    name: aircon
    controlCode: ir_power
    interval: true
`,
			wantErr: assert.NoError,
		},
		{
			name: "missing id",
			input: `
devices:
  - name: heater
    controlCode: switch_1
`,
			wantErr: assert.Error,
		},
		{
			name: "duplicate id",
			input: `
devices:
  - id: plug-1
    controlCode: switch_1
  - id: plug-1
    controlCode: switch_1
`,
			wantErr: assert.Error,
		},
		{
			name: "missing control code",
			input: `
devices:
  - id: plug-1
    name: heater
`,
			wantErr: assert.Error,
		},
		{
			name: "two interval devices",
			input: `
devices:
  - id: aircon-1
    controlCode: ir_power
    interval: true
  - id: aircon-2
    controlCode: ir_power
    interval: true
`,
			wantErr: assert.Error,
		},
		{
			name:    "invalid yaml",
			input:   "devices: [",
			wantErr: assert.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.input))
			tt.wantErr(t, err)
		})
	}
}

func TestRegistry_Get(t *testing.T) {
	registry, err := Load(strings.NewReader(`
devices:
  - id: plug-1
    name: heater
    controlCode: switch_1
    statusCode: switch_1
  - id: aircon-1
    name: aircon
    controlCode: ir_power
    interval: true
`))
	require.NoError(t, err)

	device, found := registry.Get("plug-1")
	require.True(t, found)
	assert.Equal(t, "heater", device.Name)

	_, found = registry.Get("missing")
	assert.False(t, found)

	interval, found := registry.IntervalDevice()
	require.True(t, found)
	assert.Equal(t, "aircon-1", interval.ID)
}
