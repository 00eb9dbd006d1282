package pagegen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "<html></html>", want: "<html></html>"},
		{name: "html fence", in: "```html\n<html></html>\n```", want: "<html></html>"},
		{name: "bare fence", in: "\n```\n<p>x</p>\n```  \n", want: "<p>x</p>"},
		{name: "unterminated", in: "```html\n<p>x</p>", want: "<p>x</p>"},
		{name: "fence only", in: "```", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, StripFences(tc.in))
		})
	}
}

func TestTitle(t *testing.T) {
	t.Parallel()

	require.Equal(t, "My Shop", Title("<html><head><title> My\n Shop </title></head></html>"))
	require.Equal(t, "Welcome", Title("<body><h1>Welcome</h1></body>"))
	require.Empty(t, Title("<p>no title</p>"))
}
