package model

// AllModels returns every table AutoMigrate manages.
// Register new tables here; cmd/migrate picks them up.
func AllModels() []interface{} {
	return []interface{}{
		&EventRecord{},
		&LedgerAccount{},
		&LedgerTransfer{},
	}
}
