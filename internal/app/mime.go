package app

import (
	"log/slog"
	"mime"
)

// Minimal container images ship without /etc/mime.types, which leaves
// stylesheets served as text/plain.
func init() {
	for ext, typ := range map[string]string{
		".css": "text/css; charset=utf-8",
		".svg": "image/svg+xml",
	} {
		if mime.TypeByExtension(ext) != "" {
			continue
		}
		if err := mime.AddExtensionType(ext, typ); err != nil {
			slog.Default().Warn("register mime type", slog.String("ext", ext), slog.Any("error", err))
		}
	}
}
