package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// recordHandlers builds repository handlers for models keyed by a string "id"
// column. idField returns nil for a nil record.
func recordHandlers[T any](newRecord func() T, idField func(T) *string) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			field := idField(record)
			if field == nil {
				return uuid.Nil
			}
			return parseUUID(*field)
		},
		SetID: func(record T, id uuid.UUID) {
			if field := idField(record); field != nil {
				*field = id.String()
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			field := idField(record)
			if field == nil {
				return ""
			}
			return strings.TrimSpace(*field)
		},
	}
}

func tenantCredentialHandlers() repository.ModelHandlers[*tenantCredentialRecord] {
	return recordHandlers(
		func() *tenantCredentialRecord { return &tenantCredentialRecord{} },
		func(record *tenantCredentialRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func delegatedTokenHandlers() repository.ModelHandlers[*delegatedTokenRecord] {
	return recordHandlers(
		func() *delegatedTokenRecord { return &delegatedTokenRecord{} },
		func(record *delegatedTokenRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func messagingCredentialHandlers() repository.ModelHandlers[*messagingCredentialRecord] {
	return recordHandlers(
		func() *messagingCredentialRecord { return &messagingCredentialRecord{} },
		func(record *messagingCredentialRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func sharedIntegrationHandlers() repository.ModelHandlers[*sharedIntegrationRecord] {
	return recordHandlers(
		func() *sharedIntegrationRecord { return &sharedIntegrationRecord{} },
		func(record *sharedIntegrationRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func userProfileHandlers() repository.ModelHandlers[*userProfileRecord] {
	return recordHandlers(
		func() *userProfileRecord { return &userProfileRecord{} },
		func(record *userProfileRecord) *string {
			if record == nil {
				return nil
			}
			return &record.ID
		},
	)
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
