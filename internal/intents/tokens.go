package intents

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/example/court-scheduler/internal/internaltypes"
)

// ReadRefreshToken reads the bootstrap file {"refresh_token": "..."}.
func ReadRefreshToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", internaltypes.Wrapf(err, "read tokens %s", path)
	}
	var doc struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", internaltypes.Configf("tokens", path, "%v", err)
	}
	tok := strings.TrimSpace(doc.RefreshToken)
	if tok == "" {
		return "", internaltypes.Configf("refresh_token", "", "missing from %s", path)
	}
	return tok, nil
}
