package domain

import "strings"

// LookupFunc resolves a variable name. os.LookupEnv satisfies it.
type LookupFunc func(name string) (string, bool)

// Expand substitutes variables in a location template. Both the Windows
// %VAR% form and the $VAR / ${VAR} forms are recognized. Names are looked
// up in scope first and then through env (which may be nil).
//
// An unknown $VAR expands to the empty string; an unknown %VAR% is left
// verbatim, as cmd.exe does.
func Expand(template string, scope map[string]string, env LookupFunc) string {
	lookup := func(name string) (string, bool) {
		if v, ok := scope[name]; ok {
			return v, true
		}
		if v, ok := scope[strings.ToUpper(name)]; ok {
			return v, true
		}
		if env != nil {
			return env(name)
		}
		return "", false
	}

	var b strings.Builder
	b.Grow(len(template))
	for i := 0; i < len(template); {
		c := template[i]
		switch c {
		case '%':
			end := strings.IndexByte(template[i+1:], '%')
			if end < 0 {
				b.WriteByte('%')
				i++
				continue
			}
			name := template[i+1 : i+1+end]
			if isWindowsVarName(name) {
				if v, ok := lookup(name); ok {
					b.WriteString(v)
					i += end + 2
					continue
				}
			}
			// Leave the opening % and rescan from the closing one, which
			// may begin another variable.
			b.WriteByte('%')
			b.WriteString(name)
			i += end + 1
		case '$':
			if i+1 < len(template) && template[i+1] == '{' {
				end := strings.IndexByte(template[i+2:], '}')
				if end < 0 {
					b.WriteString(template[i:])
					return b.String()
				}
				v, _ := lookup(template[i+2 : i+2+end])
				b.WriteString(v)
				i += end + 3
				continue
			}
			j := i + 1
			for j < len(template) && isShellVarByte(template[j]) {
				j++
			}
			if j == i+1 {
				b.WriteByte('$')
				i++
				continue
			}
			v, _ := lookup(template[i+1 : j])
			b.WriteString(v)
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func isShellVarByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// isWindowsVarName accepts names such as ProgramFiles(x86).
func isWindowsVarName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !isShellVarByte(c) && c != '(' && c != ')' {
			return false
		}
	}
	return true
}
