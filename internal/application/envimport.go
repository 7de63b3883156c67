package application

import (
	"context"
	"strings"

	"github.com/ericfisherdev/exchangevault/internal/domain/model"
)

// ImportResult summarizes an ImportFromEnv run.
type ImportResult struct {
	Imported []string
	Skipped  []string
	Failed   map[string]error
}

// EnvKeys returns the variable names ImportFromEnv reads for an exchange:
// <ID>_API_KEY, <ID>_SECRET_KEY and <ID>_PASSPHRASE.
func EnvKeys(exchangeID string) (apiKey, secretKey, passphrase string) {
	prefix := strings.ToUpper(exchangeID)
	return prefix + "_API_KEY", prefix + "_SECRET_KEY", prefix + "_PASSPHRASE"
}

// ImportFromEnv saves credentials for every catalog exchange whose key and
// secret are present in the environment exposed by lookup. Exchanges without
// both are skipped. A passphrase variable is only forwarded to exchanges that
// require one, so a stray <ID>_PASSPHRASE never fails an otherwise valid import.
// One exchange failing does not stop the others.
func ImportFromEnv(ctx context.Context, svc *VaultService, password string, lookup func(string) (string, bool)) ImportResult {
	result := ImportResult{Failed: make(map[string]error)}

	for _, def := range svc.Exchanges() {
		apiVar, secretVar, passVar := EnvKeys(def.ID)

		apiKey, _ := lookup(apiVar)
		secretKey, _ := lookup(secretVar)
		if apiKey == "" || secretKey == "" {
			result.Skipped = append(result.Skipped, def.ID)
			continue
		}

		creds := model.Credentials{APIKey: apiKey, SecretKey: secretKey}
		if def.RequiresPassphrase {
			creds.Passphrase, _ = lookup(passVar)
		}

		if err := svc.SaveCredentials(ctx, password, def.ID, creds); err != nil {
			result.Failed[def.ID] = err
			continue
		}
		result.Imported = append(result.Imported, def.ID)
	}

	return result
}
