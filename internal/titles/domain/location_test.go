package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	scope := map[string]string{
		"TITLE_DIR":  `C:\Games\Foo`,
		"TITLE_NAME": "Foo",
	}
	env := func(name string) (string, bool) {
		switch name {
		case "APPDATA":
			return `C:\Users\me\AppData\Roaming`, true
		case "ProgramFiles(x86)":
			return `C:\Program Files (x86)`, true
		}
		return "", false
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"plain", `C:\foo.ini`, `C:\foo.ini`},
		{"percent scope", `%TITLE_DIR%\cfg.ini`, `C:\Games\Foo\cfg.ini`},
		{"percent lower case scope", `%title_dir%\cfg.ini`, `C:\Games\Foo\cfg.ini`},
		{"percent env", `%APPDATA%\Foo`, `C:\Users\me\AppData\Roaming\Foo`},
		{"percent parens", `%ProgramFiles(x86)%\Foo`, `C:\Program Files (x86)\Foo`},
		{"percent unknown verbatim", `%NOPE%\x`, `%NOPE%\x`},
		{"percent unknown then known", `%NOPE%%TITLE_NAME%`, `%NOPE%Foo`},
		{"lone percent", `100%`, `100%`},
		{"percent with spaces", `50% off %TITLE_NAME%`, `50% off Foo`},
		{"dollar", `$TITLE_DIR/x`, `C:\Games\Foo/x`},
		{"dollar braces", `${TITLE_NAME}.cfg`, `Foo.cfg`},
		{"dollar unknown empty", `$NOPE/x`, `/x`},
		{"dollar lone", `cost$`, `cost$`},
		{"dollar unterminated brace", `${TITLE_NAME`, `${TITLE_NAME`},
		{"scope wins over env", `%TITLE_NAME%`, `Foo`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Expand(tt.template, scope, env))
		})
	}
}

func TestExpand_NilEnv(t *testing.T) {
	require.Equal(t, "%HOME%/", Expand("%HOME%/$HOME", nil, nil))
}
