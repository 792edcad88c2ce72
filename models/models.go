package models

// All lists every persisted model for AutoMigrate.
func All() []any {
	return []any{
		&WordBankEntry{},
		&Round{},
		&RoundWord{},
		&Guess{},
	}
}
