package app

import (
	"fmt"
	"os"
	"time"

	"courierdb/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the
// effective configuration before starting long-running services.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, COURIERDB_DB_PATH env, or storage.db_path in config")
	}

	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if w := eff.Config.Messaging.EditWindow; w != "" {
		if _, err := time.ParseDuration(w); err != nil {
			return fmt.Errorf("invalid messaging.edit_window %q: %w", w, err)
		}
	}

	if eff.Config.Media.Enabled {
		if eff.Config.Media.MinIO.Endpoint == "" || eff.Config.Media.MinIO.Bucket == "" {
			return fmt.Errorf("media enabled but media.minio.endpoint or bucket missing")
		}
	}

	if eff.Config.Retention.Enabled && eff.Config.Retention.MaxAge == "" {
		return fmt.Errorf("retention enabled but retention.max_age not set")
	}

	return nil
}
