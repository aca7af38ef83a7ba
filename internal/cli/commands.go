package cli

import "fmt"

// PrintUsage shows command help.
func PrintUsage() {
	fmt.Println("TillSync Client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tillsync [OPTIONS] COMMAND")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version         Show version information")
	fmt.Println("  --relay URL       Relay websocket URL (default: ws://localhost:8090)")
	fmt.Println("  --tenant SECRET   Tenant shared secret")
	fmt.Println("  --db PATH         Path to local database (default: tillsync.db)")
	fmt.Println("  --backend NAME    Local database backend: bolt or sqlite (default: bolt)")
	fmt.Println("  --passfile PATH   Path to file containing the encryption passphrase")
	fmt.Println()
	fmt.Println("Passphrase Priority (highest to lowest):")
	fmt.Println("  1. TILLSYNC_PASSPHRASE environment variable")
	fmt.Println("  2. --passfile (file path)")
	fmt.Println("  3. Interactive prompt (fallback)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  status                  Show sync engine status")
	fmt.Println("  sync                    Drain the outbox and pull remote changes")
	fmt.Println("  retry                   Reset failed items and sync again")
	fmt.Println("  rotate-key              Rotate the active data key")
	fmt.Println("  list <kind>             List local records of a kind")
	fmt.Println("  put <kind> <id> <json>  Store a record locally and queue it for sync")
	fmt.Println("  run                     Run the sync daemon until interrupted")
	fmt.Println()
	fmt.Println("Kinds:")
	fmt.Println("  account, journal_entry, customer, promotion, expense,")
	fmt.Println("  audit_log, setting, help_article")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println(`  tillsync --tenant shop42 put customer cust-1 '{"name":"Ada"}'`)
	fmt.Println("  tillsync --tenant shop42 sync")
	fmt.Println("  tillsync --tenant shop42 list customer")
}
