package tsp

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Describe renders a sealed envelope as a human-readable summary for
// transport logging: the decoded protected header plus the size of each
// compact segment. The payload itself stays opaque.
func Describe(raw string) string {
	segments := strings.Split(raw, ".")
	if len(segments) != 5 {
		return fmt.Sprintf("opaque envelope (%d bytes)", len(raw))
	}

	var b strings.Builder
	b.WriteString("TSP envelope")

	headerBytes, err := base64.RawURLEncoding.DecodeString(segments[0])
	if err == nil {
		var header map[string]interface{}
		if json.Unmarshal(headerBytes, &header) == nil {
			if skid, ok := header[senderHeader].(string); ok {
				fmt.Fprintf(&b, "\n  sender:   %s", skid)
			}
			if kid, ok := header["kid"].(string); ok {
				fmt.Fprintf(&b, "\n  receiver: %s", kid)
			}
			if alg, ok := header["alg"].(string); ok {
				if enc, ok := header["enc"].(string); ok {
					fmt.Fprintf(&b, "\n  alg:      %s+%s", alg, enc)
				}
			}
		}
	}

	names := [5]string{"header", "encrypted key", "iv", "ciphertext", "tag"}
	for i, seg := range segments {
		fmt.Fprintf(&b, "\n  %-13s %4d bytes", names[i]+":", len(seg))
	}

	return b.String()
}
