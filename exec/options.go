package exec

import "maps"

// settings holds one layer of configuration. Command keeps a global layer from
// New and a local layer for the next call.
type settings struct {
	env           map[string]string
	dir           string
	disableColors bool
}

func newSettings() settings {
	return settings{env: make(map[string]string)}
}

func (s settings) clone() settings {
	c := s
	c.env = maps.Clone(s.env)
	if c.env == nil {
		c.env = make(map[string]string)
	}
	return c
}

// merge returns the effective settings, with local values taking precedence.
func merge(global, local settings) settings {
	eff := global.clone()
	maps.Copy(eff.env, local.env)
	if local.dir != "" {
		eff.dir = local.dir
	}
	eff.disableColors = eff.disableColors || local.disableColors
	return eff
}

// environ renders the settings as a process environment layered over
// parent. A nil result makes os/exec inherit the parent environment as is.
func (s settings) environ(parent []string) []string {
	if len(s.env) == 0 && !s.disableColors {
		return nil
	}

	env := append([]string(nil), parent...)
	for k, v := range s.env {
		env = append(env, k+"="+v)
	}
	if s.disableColors {
		env = append(env, "NO_COLOR=1", "TERM=dumb", "CLICOLOR=0", "CLICOLOR_FORCE=0")
	}
	return env
}
