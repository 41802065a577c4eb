// Package insight turns a list of time-log records into a one-sentence
// encouragement using an external text-generation provider.
//
// Invariants:
// - Generate never fails; any error yields the configured fallback text.
// - A successful provider response is returned verbatim.
// - The generator owns no package-level client; providers are injected.
//
// Usage:
//
//	key, missing := insight.ResolveAPIKey("")
//	provider, _ := insight.NewProvider(insight.ProviderConfig{Name: "gemini", APIKey: key})
//	gen, _ := insight.NewGenerator(insight.Config{Provider: provider, CredentialMissing: missing})
//	text := gen.Generate(ctx, records)
//	_ = text
package insight
