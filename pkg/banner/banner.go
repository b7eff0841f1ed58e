package banner

import (
	"fmt"

	"courierdb/pkg/config"
)

const banner = `
 ██████╗ ██████╗ ██╗   ██╗██████╗ ██╗███████╗██████╗     ██████╗ ██████╗
██╔════╝██╔═══██╗██║   ██║██╔══██╗██║██╔════╝██╔══██╗    ██╔══██╗██╔══██╗
██║     ██║   ██║██║   ██║██████╔╝██║█████╗  ██████╔╝    ██║  ██║██████╔╝
██║     ██║   ██║██║   ██║██╔══██╗██║██╔══╝  ██╔══██╗    ██║  ██║██╔══██╗
╚██████╗╚██████╔╝╚██████╔╝██║  ██║██║███████╗██║  ██║    ██████╔╝██████╔╝
 ╚═════╝ ╚═════╝  ╚═════╝ ╚═╝  ╚═╝╚═╝╚══════╝╚═╝  ╚═╝    ╚═════╝ ╚═════╝
`

// PrintWithEff prints the startup banner with the effective runtime
// configuration summary.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	fmt.Println("\n== Examples ===================================================")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/conversations/bob/messages' -d '{\"text\":\"hello\"}'")
	fmt.Println("curl 'http://<host>:<port>/v1/conversations/bob/messages?limit=50'")
	fmt.Println("\n== Production? =================================================")
	if eff.Config != nil {
		be := len(eff.Config.Security.APIKeys.Backend)
		fe := len(eff.Config.Security.APIKeys.Frontend)
		if be == 0 && fe == 0 {
			fmt.Println("No API keys configured; every request will be rejected.")
			fmt.Println("Set security.api_keys or COURIERDB_API_BACKEND_KEYS / COURIERDB_API_FRONTEND_KEYS.")
		} else {
			fmt.Printf("API keys: %d backend, %d frontend\n", be, fe)
		}
	}
	fmt.Println("Set a proper storage path (--db) and TLS for production use.")
}
