// Package sitterscan continuously scans a source tree with externally
// supplied tree-sitter queries and reports matches, or their absence, to a
// remote findings service.
//
// # Pipeline
//
// Each polling round has three phases:
//
//  1. Fetch: the active query set is read from the findings service for the
//     session's report identifier.
//
//  2. Scan: every target file is parsed once per session through the
//     [TreeCache]; queries are grouped by file type with [RouteQueries] and
//     each file is matched only against queries for its extension.
//
//  3. Report: every fetched query yields exactly one [EvidencePayload]. A
//     query with no captures reports the [NoMatchEvidence] sentinel.
//
// # Usage
//
//	engine, err := grammar.NewEngine()
//	if err != nil { ... }
//	defer engine.Close()
//
//	scanner := sitterscan.NewScanner(engine,
//		sitterscan.WithOrganization(orgID),
//		sitterscan.WithCodeVersion(commit),
//	)
//	defer scanner.Close()
//
//	p := sitterscan.NewPoller(client, scanner, sitterscan.PollerConfig{
//		PollInterval: 5 * time.Second,
//		MaxPolls:     20,
//	})
//	if _, err := p.Initialize(ctx, req); err != nil { ... }
//	err = p.Run(ctx, files)
//
// # Caching
//
// Trees are cached by path for the lifetime of a [TreeCache] and are never
// replaced. A file edited mid-session keeps producing results for the
// content that was first parsed.
package sitterscan
