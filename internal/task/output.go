// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package task

import "strings"

// GenerateOutput appends secret to the trimmed server address, inserting a
// slash only when neither side already supplies one at the join. An empty
// secret leaves the server as is.
func GenerateOutput(server, secret string) string {
	trimmed := strings.TrimSpace(server)
	sep := "/"
	if strings.HasSuffix(trimmed, "/") || secret == "" || strings.HasPrefix(secret, "/") {
		sep = ""
	}
	return trimmed + sep + secret
}
