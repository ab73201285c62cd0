package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/scanhud/scanhud/internal/api"
	"github.com/scanhud/scanhud/internal/config"
)

// loadClientConfig builds the effective configuration. Precedence:
// flags over environment over config file over defaults.
func loadClientConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.ConfigFileUsed())
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	if serverURL != "" {
		cfg.Server.URL = serverURL
	} else if env := viper.GetString("server_url"); env != "" {
		cfg.Server.URL = env
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// newClient builds the REST client for one-shot commands.
func newClient() (*api.Client, *config.Config, error) {
	cfg, err := loadClientConfig()
	if err != nil {
		return nil, nil, err
	}
	return api.NewClient(cfg), cfg, nil
}

// addFilterFlags registers the result-filter flags shared by the
// commands that narrow the stored result set.
func addFilterFlags(flags *pflag.FlagSet, search, status, risk *string) {
	flags.StringVar(search, "search", "", "substring to search for")
	flags.StringVar(status, "status", "", "status class filter (2xx, 3xx, 4xx, 5xx)")
	flags.StringVar(risk, "risk", "", "risk filter (has_vuln, critical, high, medium, low)")
}

// validateFilterFlags rejects unknown filter values before a request
// goes out.
func validateFilterFlags(status, risk string) error {
	if status != "" && !api.ValidStatusFilter(status) {
		return fmt.Errorf("invalid status filter %q (want 2xx, 3xx, 4xx or 5xx)", status)
	}
	if risk != "" && !api.ValidRiskFilter(risk) {
		return fmt.Errorf("invalid risk filter %q (want has_vuln, critical, high, medium or low)", risk)
	}
	return nil
}

// parsePorts turns "80,443" into a port slice. Entries outside the
// server's allow list fail here with a clear message instead of a
// request rejection later.
func parsePorts(spec string) ([]int, error) {
	parts := strings.Split(spec, ",")
	ports := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		port, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", part)
		}
		if !api.ValidPort(port) {
			return nil, fmt.Errorf("unsupported port %d (valid: %v)", port, api.ValidPorts)
		}
		ports = append(ports, port)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("empty port specification")
	}
	return ports, nil
}
