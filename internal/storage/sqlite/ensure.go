package sqlite

import (
	"github.com/felixgeelhaar/lectern/internal/progress"
	"github.com/felixgeelhaar/lectern/internal/registration"
)

// Ensure SQLite stores implement the storage interfaces.
var (
	_ registration.RegistrationStore = (*RegistrationStore)(nil)
	_ progress.ReportStore           = (*ReportStore)(nil)
)
