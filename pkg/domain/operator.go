package domain

import "github.com/google/uuid"

// Operator identifies who issued or lifted a punishment. The console gets
// the zero UUID so audit records stay uniform.
type Operator struct {
	Name string    `json:"name"`
	ID   uuid.UUID `json:"id"`
}

// Console is the operator recorded for punishments issued by the server
// itself (automated bans, expiry sweeps).
var Console = Operator{Name: "Console", ID: uuid.Nil}

// IsConsole reports whether the operator is the server console.
func (o Operator) IsConsole() bool {
	return o.ID == uuid.Nil
}
