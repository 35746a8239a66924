package backend

import (
	"errors"
	"fmt"

	"ledger/internal/blob"
	"ledger/internal/config"
	gsheet "ledger/internal/sheets/google"
)

// FromAppConfig converts the application config to backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:         backendType,
		DataDir:      appConfig.DataDir,
		ArchiveDir:   appConfig.ArchiveDir,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		Google: gsheet.Credentials{
			SpreadsheetID:      appConfig.GoogleSpreadsheetID,
			ServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
			ServiceAccountFile: appConfig.GoogleServiceAccountFile,
		},
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
		S3: blob.Config{
			Bucket:       appConfig.S3Bucket,
			Region:       appConfig.S3Region,
			Endpoint:     appConfig.S3Endpoint,
			Prefix:       appConfig.S3Prefix,
			AccessKey:    appConfig.S3AccessKey,
			SecretKey:    appConfig.S3SecretKey,
			UsePathStyle: appConfig.S3PathStyle,
		},
	}, nil
}

// MirrorConfig is the sheets backend used as a mirror target.
func MirrorConfig(appConfig *config.Config) Config {
	return Config{
		Type: SheetsBackend,
		Google: gsheet.Credentials{
			SpreadsheetID:      appConfig.GoogleSpreadsheetID,
			ServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
			ServiceAccountFile: appConfig.GoogleServiceAccountFile,
		},
	}
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case CSVBackend:
		if c.DataDir == "" {
			return errors.New("data directory is required for csv backend")
		}
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite backend")
		}
	case SheetsBackend:
		if c.Google.SpreadsheetID == "" {
			return errors.New("Google Spreadsheet ID is required for sheets backend")
		}
		if c.Google.ServiceAccountJSON == "" && c.Google.ServiceAccountFile == "" {
			return errors.New("a service account JSON or file is required for sheets backend")
		}
	case MemoryBackend:
		// DataDir only seeds the tables and may be empty.
	}

	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		return errors.New("AMQP exchange and queue are required when AMQP_URL is set")
	}
	return nil
}

func GetBackendTypes() []BackendType {
	return []BackendType{CSVBackend, MemoryBackend, SQLiteBackend, SheetsBackend}
}

func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
