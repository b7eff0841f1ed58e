package config

// EffectiveConfigResult is the merged view of flags, environment and
// config file that the rest of the app consumes.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	// Source names the highest-precedence origin: "flags", "env" or
	// "config".
	Source string
}

// ResolveEffective merges flag values onto the loaded config.
// Explicit flags win over env and file values.
func ResolveEffective(cfg *Config, addrVal, dbVal string, setFlags map[string]bool, envUsed bool) EffectiveConfigResult {
	addr := addrVal
	if !setFlags["addr"] {
		addr = cfg.Addr()
	}
	dbPath := dbVal
	if !setFlags["db"] {
		if p := cfg.Storage.DBPath; p != "" {
			dbPath = p
		}
	}
	source := "config"
	if envUsed {
		source = "env"
	}
	if setFlags["addr"] || setFlags["db"] {
		source = "flags"
	}
	return EffectiveConfigResult{Config: cfg, Addr: addr, DBPath: dbPath, Source: source}
}
