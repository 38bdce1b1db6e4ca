package server

import (
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

const (
	schemeBearer = "bearerAuth"
	schemeAPIKey = "apiKeyAuth"
)

// apiConfig serves the document and docs page under basePath and declares both credential schemes
// as required unless an operation opts out.
func apiConfig(basePath string) huma.Config {
	hcfg := huma.DefaultConfig("ComplianceKit API", "0.1.0")
	hcfg.Info.Description = "Compliance checklists and reminders for small businesses. " +
		"Authenticate with Authorization: Bearer <token> or X-Api-Key."
	hcfg.OpenAPIPath = path.Join(basePath, "openapi")
	hcfg.DocsPath = path.Join(basePath, "docs")
	if hcfg.Components == nil {
		hcfg.Components = &huma.Components{}
	}
	hcfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		schemeBearer: {Type: "http", Scheme: "bearer", BearerFormat: "JWT"},
		schemeAPIKey: {Type: "apiKey", In: "header", Name: "X-Api-Key"},
	}
	hcfg.Security = []map[string][]string{{schemeBearer: {}}, {schemeAPIKey: {}}}
	return hcfg
}

// markPublic sets an empty security requirement on the named operations.
func markPublic(oas *huma.OpenAPI, operationIDs ...string) {
	public := make(map[string]bool, len(operationIDs))
	for _, id := range operationIDs {
		public[id] = true
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op != nil && public[op.OperationID] {
				op.Security = []map[string][]string{{}}
			}
		}
	}
}

// publicPath reports whether p is served without credentials.
func publicPath(basePath, p string, devLogin bool) bool {
	base := path.Join("/", basePath)
	switch p {
	case path.Join(base, "health"), path.Join(base, "docs"):
		return true
	case path.Join(base, "auth/dev/login"):
		return devLogin
	}
	// openapi.json, openapi.yaml and the versioned variants served next to them.
	dir, file := path.Split(p)
	return path.Clean(dir) == base && strings.HasPrefix(file, "openapi")
}
