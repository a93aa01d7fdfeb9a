package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     map[string]string
		want     string
	}{
		{
			name:     "single placeholder",
			template: "Hi {name}, welcome!",
			vars:     map[string]string{"name": "Alice"},
			want:     "Hi Alice, welcome!",
		},
		{
			name:     "repeated placeholder",
			template: "{name} {name}",
			vars:     map[string]string{"name": "Bob"},
			want:     "Bob Bob",
		},
		{
			name:     "unknown placeholder left intact",
			template: "Hi {name}, your code is {code}",
			vars:     map[string]string{"name": "Carol"},
			want:     "Hi Carol, your code is {code}",
		},
		{
			name:     "no placeholders",
			template: "plain message",
			vars:     map[string]string{"name": "Dan"},
			want:     "plain message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.template, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderEmptyTemplate(t *testing.T) {
	_, err := Render("", nil)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("Hi {name}"))
	require.NoError(t, Validate("no placeholders"))
	require.Error(t, Validate("Hi {name"))
	require.Error(t, Validate("Hi name}"))
	require.Error(t, Validate(""))
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("Hi {name}, you are recipient {target} in {name}")
	assert.Equal(t, []string{"{name}", "{target}", "{name}"}, got)

	assert.Empty(t, Placeholders("nothing here"))
}
